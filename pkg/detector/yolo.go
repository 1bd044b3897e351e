package detector

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/Robogera/kinematics/pkg/config"
	gocvcommon "github.com/Robogera/kinematics/pkg/gocv-common"
	"github.com/Robogera/kinematics/pkg/pose"
	"github.com/Robogera/kinematics/pkg/yolo"
	"gocv.io/x/gocv"
)

// Yolo runs a YOLO-pose ONNX model through the OpenCV DNN module
type Yolo struct {
	net                gocv.Net
	output_layer_names []string
	params             yolo.Params
	blob_params        gocv.ImageToBlobParams
	thresholds         Thresholds
	logger             *slog.Logger
}

func NewYolo(cfg *config.DetectorConfig, logger *slog.Logger) (*Yolo, error) {
	if logger == nil {
		logger = slog.Default()
	}
	net, output_layer_names, err := gocvcommon.LoadONNX(cfg.ModelPath, cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ERR_BAD_MODEL, err)
	}
	if cfg.OutputLayer != "" {
		if !gocvcommon.CheckLayerName(&net, cfg.OutputLayer) {
			net.Close()
			return nil, fmt.Errorf("%w: no output layer %q among %v", ERR_BAD_MODEL, cfg.OutputLayer, output_layer_names)
		}
		output_layer_names = []string{cfg.OutputLayer}
	}
	logger.Debug("Model info", "model", cfg.ModelPath, "output layers", output_layer_names)

	params := yolo.Params{
		InputSize:    image.Pt(int(cfg.X), int(cfg.Y)),
		ScaleFactor:  cfg.ScaleFactor,
		Transpose:    cfg.Transpose,
		MinScore:     cfg.ConfidenceThreshold,
		NMSThreshold: cfg.NMSThreshold,
	}
	return &Yolo{
		net:                net,
		output_layer_names: output_layer_names,
		params:             params,
		blob_params:        params.BlobParams(),
		thresholds:         thresholdsFrom(cfg),
		logger:             logger,
	}, nil
}

func (y *Yolo) Detect(img *gocv.Mat) ([]pose.Pose, error) {
	found, err := yolo.Detect(&y.net, img, y.output_layer_names, y.params, &y.blob_params)
	if err != nil {
		return nil, err
	}
	candidates := make([]Candidate, len(found))
	for i, c := range found {
		candidates[i] = Candidate{Score: float64(c.Score), Pose: c.Pose}
	}
	return y.thresholds.Select(candidates, y.logger), nil
}

func (y *Yolo) Close() error {
	return y.net.Close()
}
