package batch

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/Robogera/kinematics/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestImageFolder(t *testing.T) {
	dir := t.TempDir()
	for name, cols := range map[string]int{"b.png": 20, "a.png": 10} {
		m := gocv.NewMatWithSize(8, cols, gocv.MatTypeCV8UC3)
		require.True(t, gocv.IMWrite(filepath.Join(dir, name), m))
		m.Close()
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))

	f, err := OpenImageFolder(dir, 12)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, 2, f.FrameCount())
	assert.Equal(t, 12.0, f.FPS())
	assert.Equal(t, image.Pt(10, 8), f.Size(), "known before the first read")

	img := gocv.NewMat()
	defer img.Close()
	require.True(t, f.Read(&img))
	assert.Equal(t, 10, img.Cols(), "name order")
	assert.Equal(t, image.Pt(10, 8), f.Size())
	require.True(t, f.Read(&img))
	assert.Equal(t, 20, img.Cols())
	assert.False(t, f.Read(&img))

	f.Seek(1)
	require.True(t, f.Read(&img))
	assert.Equal(t, 20, img.Cols())
}

func TestImageFolderEmpty(t *testing.T) {
	_, err := OpenImageFolder(t.TempDir(), 30)
	assert.ErrorIs(t, err, ERR_CANT_OPEN_VIDEO)
	_, err = OpenImageFolder(filepath.Join(t.TempDir(), "missing"), 30)
	assert.ErrorIs(t, err, ERR_CANT_OPEN_VIDEO)
}

func TestOpenInput(t *testing.T) {
	_, err := OpenInput(&config.InputConfig{Type: "carrier pigeon"})
	assert.ErrorIs(t, err, config.ERR_VALUE)

	_, err = OpenInput(&config.InputConfig{Type: string(config.InputTypeFolder), Path: t.TempDir()})
	assert.ErrorIs(t, err, ERR_CANT_OPEN_VIDEO)
}

func TestOpenPath(t *testing.T) {
	dir := t.TempDir()
	m := gocv.NewMatWithSize(4, 6, gocv.MatTypeCV8UC3)
	require.True(t, gocv.IMWrite(filepath.Join(dir, "0001.png"), m))
	m.Close()

	open := OpenPath(25)
	src, err := open(dir)
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, 1, src.FrameCount())
	assert.Equal(t, 25.0, src.FPS())

	src, err = open(filepath.Join(dir, "missing.mp4"))
	assert.ErrorIs(t, err, ERR_CANT_OPEN_VIDEO)
	assert.Nil(t, src)
}
