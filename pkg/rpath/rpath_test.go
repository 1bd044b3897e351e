package rpath

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	abs, err := filepath.Abs("config.toml")
	require.NoError(t, err)
	assert.Equal(t, abs, Convert("/opt/kinematics", abs))
	assert.Equal(t, "models/pose.onnx", Convert("", "models/pose.onnx"))
	assert.Equal(t, filepath.Join("/opt/kinematics", "models", "pose.onnx"), Convert("/opt/kinematics/bin", "../models/pose.onnx"))
}

func TestExecutableDir(t *testing.T) {
	dir, err := ExecutableDir()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(dir))
}
