package config

import (
	// stdlib
	"errors"
	"fmt"
	"os"
	"path/filepath"

	// internal
	"github.com/Robogera/kinematics/pkg/rpath"

	// external
	"github.com/pelletier/go-toml/v2"
)

var (
	ERR_VALUE = errors.New("Bad config value")
)

// Enum types

type LoggingLevel string

const (
	LoggingLevelDebug LoggingLevel = "debug"
	LoggingLevelInfo  LoggingLevel = "info"
	LoggingLevelWarn  LoggingLevel = "warn"
	LoggingLevelError LoggingLevel = "error"
)

type DetectorKind string

const (
	DetectorKindYolo   DetectorKind = "yolo"
	DetectorKindReplay DetectorKind = "replay"
)

type DeviceType string

const (
	DeviceTypeCPU DeviceType = "cpu"
	DeviceTypeGPU DeviceType = "gpu"
	DeviceTypeVPU DeviceType = "vpu"
)

type Assignment string

const (
	AssignmentGreedy    Assignment = "greedy"
	AssignmentHungarian Assignment = "hungarian"
)

type InputType string

const (
	InputTypeFile   InputType = "file"
	InputTypeWebcam InputType = "webcam"
	InputTypeIPC    InputType = "ipc"
	InputTypeFolder InputType = "folder"
)

// Config file structure

type ConfigFile struct {
	Logging  LoggingConfig  `toml:"logging"`
	Detector DetectorConfig `toml:"detector"`
	Tracker  TrackerConfig  `toml:"tracker"`
	Angles   AnglesConfig   `toml:"angles"`
	Filter   FilterConfig   `toml:"filter"`
	Batch    BatchConfig    `toml:"batch"`
	Input    InputConfig    `toml:"input"`
	Mqtt     MqttConfig     `toml:"mqtt"`
}

type LoggingConfig struct {
	Level         string `toml:"level"`
	StatPeriodSec uint   `toml:"stat_period_sec"`
	// frames averaged for the processing fps statistic
	SMAWindow uint `toml:"sma_window"`
}

type DetectorConfig struct {
	Kind string `toml:"kind"`
	// ONNX YOLO-pose model, yolo kind only
	ModelPath           string  `toml:"model_path"`
	Device              string  `toml:"device"`
	Transpose           bool    `toml:"transpose"`
	ScaleFactor         float64 `toml:"scale_factor"`
	X                   uint    `toml:"x"`
	Y                   uint    `toml:"y"`
	ConfidenceThreshold float32 `toml:"confidence_threshold"`
	NMSThreshold        float32 `toml:"nms_threshold"`
	// all unconnected output layers when empty
	OutputLayer string `toml:"output_layer"`
	// JSON-lines keypoint recording, replay kind only
	ReplayPath string `toml:"replay_path"`
	// person validation
	KeypointLikelihoodThreshold float64 `toml:"keypoint_likelihood_threshold"`
	KeypointNumberThreshold     float64 `toml:"keypoint_number_threshold"`
	AverageLikelihoodThreshold  float64 `toml:"average_likelihood_threshold"`
	MaxPersons                  uint    `toml:"max_persons"`
}

type TrackerConfig struct {
	Assignment        string  `toml:"assignment"`
	DistanceThreshold float64 `toml:"distance_threshold"`
	MaxFramesLost     uint    `toml:"max_frames_lost"`
}

type AnglesConfig struct {
	FlipLeftRight bool `toml:"flip_left_right"`
	Joint         bool `toml:"joint"`
	Segment       bool `toml:"segment"`
}

type FilterConfig struct {
	Kind         string  `toml:"kind"`
	Order        uint    `toml:"order"`
	CutoffHz     float64 `toml:"cutoff_hz"`
	Sigma        float64 `toml:"sigma"`
	MedianKernel uint    `toml:"median_kernel"`
	Interpolate  bool    `toml:"interpolate"`
	MaxGap       uint    `toml:"max_gap"`
}

type BatchConfig struct {
	Workers     uint `toml:"workers"`
	QueueLength uint `toml:"queue_length"`
	SkipFrames  uint `toml:"skip_frames"`
	ApplyFilter bool `toml:"apply_filter"`
}

type InputConfig struct {
	Type   string `toml:"type"`
	Path   string `toml:"path"`
	Device int    `toml:"device"`
	// nominal rate of sources that don't report one (image folders)
	FPS float64 `toml:"fps"`
}

type MqttConfig struct {
	Enabled    bool   `toml:"enabled"`
	Address    string `toml:"address"`
	ClientId   string `toml:"client_id"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	Topic      string `toml:"topic"`
	TimeoutSec uint   `toml:"timeout_sec"`
}

func Default() *ConfigFile {
	return &ConfigFile{
		Logging: LoggingConfig{
			Level:         string(LoggingLevelInfo),
			StatPeriodSec: 5,
			SMAWindow:     30,
		},
		Detector: DetectorConfig{
			Kind:                        string(DetectorKindYolo),
			ModelPath:                   "../models/yolov8n-pose.onnx",
			Device:                      string(DeviceTypeCPU),
			Transpose:                   true,
			ScaleFactor:                 1.0 / 255.0,
			X:                           640,
			Y:                           640,
			ConfidenceThreshold:         0.5,
			NMSThreshold:                0.45,
			KeypointLikelihoodThreshold: 0.3,
			KeypointNumberThreshold:     0.3,
			AverageLikelihoodThreshold:  0.5,
			MaxPersons:                  5,
		},
		Tracker: TrackerConfig{
			Assignment:        string(AssignmentGreedy),
			DistanceThreshold: 100,
			MaxFramesLost:     30,
		},
		Angles: AnglesConfig{
			FlipLeftRight: true,
			Joint:         true,
			Segment:       true,
		},
		Filter: FilterConfig{
			Kind:         "butterworth",
			Order:        4,
			CutoffHz:     6,
			Sigma:        1,
			MedianKernel: 3,
			Interpolate:  true,
			MaxGap:       10,
		},
		Batch: BatchConfig{
			Workers:     4,
			QueueLength: 16,
			SkipFrames:  1,
			ApplyFilter: true,
		},
		Input: InputConfig{
			Type: string(InputTypeWebcam),
			FPS:  30,
		},
		Mqtt: MqttConfig{
			Enabled:    false,
			Address:    "127.0.0.1:1883",
			ClientId:   "kinematics",
			Topic:      "kinematics/frames",
			TimeoutSec: 5,
		},
	}
}

// Unmarshal reads the file over the defaults. Relative file paths in it
// are resolved against the directory of the file.
func Unmarshal(file_path string) (*ConfigFile, error) {
	config_file := Default()
	data, err := os.ReadFile(file_path)
	if err != nil {
		return nil,
			fmt.Errorf("Unable to read %s error: %w", file_path, err)
	}
	err = toml.Unmarshal(data, config_file)
	if err != nil {
		return nil,
			fmt.Errorf("Unable to unmarshal %s error: %w", file_path, err)
	}
	config_file.resolvePaths(filepath.Dir(file_path))
	return config_file, nil
}

func (cfg *ConfigFile) resolvePaths(base string) {
	resolve := func(path *string) {
		if *path != "" {
			*path = rpath.Convert(base, *path)
		}
	}
	resolve(&cfg.Detector.ModelPath)
	resolve(&cfg.Detector.ReplayPath)
	switch InputType(cfg.Input.Type) {
	case InputTypeFile, InputTypeFolder:
		resolve(&cfg.Input.Path)
	}
}

// CreateDefault writes the default configuration to file_path
func CreateDefault(file_path string) error {
	data, err := toml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("Unable to marshal default config: %w", err)
	}
	if err := os.WriteFile(file_path, data, 0o644); err != nil {
		return fmt.Errorf("Unable to write %s error: %w", file_path, err)
	}
	return nil
}

func (cfg *ConfigFile) Validate() error {
	bad := func(key string, value any) error {
		return fmt.Errorf("%s = %v: %w", key, value, ERR_VALUE)
	}
	if cfg.Logging.SMAWindow < 3 {
		return bad("logging.sma_window", cfg.Logging.SMAWindow)
	}
	switch DetectorKind(cfg.Detector.Kind) {
	case DetectorKindYolo:
		if cfg.Detector.X == 0 || cfg.Detector.Y == 0 {
			return bad("detector.x/y", fmt.Sprintf("%dx%d", cfg.Detector.X, cfg.Detector.Y))
		}
	case DetectorKindReplay:
	default:
		return bad("detector.kind", cfg.Detector.Kind)
	}
	for key, v := range map[string]float64{
		"detector.keypoint_likelihood_threshold": cfg.Detector.KeypointLikelihoodThreshold,
		"detector.keypoint_number_threshold":     cfg.Detector.KeypointNumberThreshold,
		"detector.average_likelihood_threshold":  cfg.Detector.AverageLikelihoodThreshold,
	} {
		if v < 0 || v > 1 {
			return bad(key, v)
		}
	}
	switch Assignment(cfg.Tracker.Assignment) {
	case AssignmentGreedy, AssignmentHungarian:
	default:
		return bad("tracker.assignment", cfg.Tracker.Assignment)
	}
	if cfg.Tracker.DistanceThreshold <= 0 {
		return bad("tracker.distance_threshold", cfg.Tracker.DistanceThreshold)
	}
	if cfg.Filter.Order < 1 {
		return bad("filter.order", cfg.Filter.Order)
	}
	if cfg.Filter.CutoffHz <= 0 {
		return bad("filter.cutoff_hz", cfg.Filter.CutoffHz)
	}
	if cfg.Filter.Sigma <= 0 {
		return bad("filter.sigma", cfg.Filter.Sigma)
	}
	if cfg.Filter.MedianKernel%2 == 0 {
		return bad("filter.median_kernel", cfg.Filter.MedianKernel)
	}
	if cfg.Batch.Workers < 1 {
		return bad("batch.workers", cfg.Batch.Workers)
	}
	if cfg.Batch.SkipFrames < 1 {
		return bad("batch.skip_frames", cfg.Batch.SkipFrames)
	}
	switch InputType(cfg.Input.Type) {
	case InputTypeFile, InputTypeWebcam, InputTypeIPC, InputTypeFolder:
	default:
		return bad("input.type", cfg.Input.Type)
	}
	if cfg.Mqtt.Enabled && cfg.Mqtt.Topic == "" {
		return bad("mqtt.topic", cfg.Mqtt.Topic)
	}
	return nil
}
