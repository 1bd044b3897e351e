package batch

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Robogera/kinematics/pkg/config"
	"gocv.io/x/gocv"
)

var (
	ERR_CANT_OPEN_VIDEO = errors.New("Can't open video")
)

// Source supplies sequential frames and their nominal rate
type Source interface {
	// 0 when the source doesn't know
	FPS() float64
	// 0 for endless sources
	FrameCount() int
	Size() image.Point
	Seek(frame int)
	// Read decodes the next frame into img, false at the end of the source
	Read(img *gocv.Mat) bool
	Close() error
}

type Capture struct {
	capture *gocv.VideoCapture
}

func OpenVideo(path string) (Source, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, ERR_CANT_OPEN_VIDEO, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%s: %w", path, ERR_CANT_OPEN_VIDEO)
	}
	return &Capture{capture}, nil
}

func (c *Capture) FPS() float64 {
	return c.capture.Get(gocv.VideoCaptureFPS)
}

func (c *Capture) FrameCount() int {
	return max(0, int(c.capture.Get(gocv.VideoCaptureFrameCount)))
}

func (c *Capture) Size() image.Point {
	return image.Pt(
		int(c.capture.Get(gocv.VideoCaptureFrameWidth)),
		int(c.capture.Get(gocv.VideoCaptureFrameHeight)))
}

func (c *Capture) Seek(frame int) {
	c.capture.Set(gocv.VideoCapturePosFrames, float64(frame))
}

func (c *Capture) Read(img *gocv.Mat) bool {
	return c.capture.Read(img)
}

func (c *Capture) Close() error {
	return c.capture.Close()
}

var image_exts = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff", ".webp"}

// ImageFolder plays the images of a directory in name order
type ImageFolder struct {
	files []string
	next  int
	fps   float64
	size  image.Point
}

func OpenImageFolder(dir string, fps float64) (*ImageFolder, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", dir, ERR_CANT_OPEN_VIDEO, err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(image_exts, strings.ToLower(filepath.Ext(e.Name()))) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s has no images: %w", dir, ERR_CANT_OPEN_VIDEO)
	}
	slices.Sort(files)
	f := &ImageFolder{files: files, fps: fps}
	first := gocv.IMRead(files[0], gocv.IMReadColor)
	defer first.Close()
	if !first.Empty() {
		f.size = image.Pt(first.Cols(), first.Rows())
	}
	return f, nil
}

func (f *ImageFolder) FPS() float64      { return f.fps }
func (f *ImageFolder) FrameCount() int   { return len(f.files) }
func (f *ImageFolder) Size() image.Point { return f.size }

func (f *ImageFolder) Seek(frame int) {
	f.next = max(0, min(frame, len(f.files)))
}

// Read leaves img untouched for files that can't be decoded
func (f *ImageFolder) Read(img *gocv.Mat) bool {
	if f.next >= len(f.files) {
		return false
	}
	decoded := gocv.IMRead(f.files[f.next], gocv.IMReadColor)
	defer decoded.Close()
	f.next++
	if decoded.Empty() {
		return true
	}
	decoded.CopyTo(img)
	if f.size == (image.Point{}) {
		f.size = image.Pt(decoded.Cols(), decoded.Rows())
	}
	return true
}

func (f *ImageFolder) Close() error { return nil }

// OpenInput opens the live source described by cfg
func OpenInput(cfg *config.InputConfig) (Source, error) {
	var capture *gocv.VideoCapture
	var err error
	switch config.InputType(cfg.Type) {
	case config.InputTypeFile:
		return OpenVideo(cfg.Path)
	case config.InputTypeFolder:
		return openFolder(cfg.Path, cfg.FPS)
	case config.InputTypeWebcam:
		capture, err = gocv.VideoCaptureDevice(cfg.Device)
	case config.InputTypeIPC:
		capture, err = gocv.OpenVideoCapture(cfg.Path)
	default:
		return nil, fmt.Errorf("input type %q: %w", cfg.Type, config.ERR_VALUE)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %w", cfg.Type, cfg.Path, ERR_CANT_OPEN_VIDEO, err)
	}
	return &Capture{capture}, nil
}

// OpenPath opens directories as image folders played at fps and
// anything else as a video file
func OpenPath(fps float64) func(path string) (Source, error) {
	return func(path string) (Source, error) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return openFolder(path, fps)
		}
		return OpenVideo(path)
	}
}

func openFolder(dir string, fps float64) (Source, error) {
	f, err := OpenImageFolder(dir, fps)
	if err != nil {
		return nil, err
	}
	return f, nil
}
