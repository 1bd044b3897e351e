package gocvcommon

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

var (
	ERR_BAD_MODEL        = errors.New("Can't load model")
	ERR_UNKNOWN_DEVICE   = errors.New("Unknown inference device")
	ERR_CANT_SET_BACKEND = errors.New("Can't set backend")
	ERR_CANT_SET_TARGET  = errors.New("Can't set target")
)

func GetOutputLayerNames(net *gocv.Net) []string {
	var output_layer_names []string
	for _, i := range net.GetUnconnectedOutLayers() {
		layer := net.GetLayer(i)
		name := layer.GetName()
		if name != "_input" {
			output_layer_names = append(output_layer_names, name)
		}
	}
	return output_layer_names
}

func CheckLayerName(net *gocv.Net, layer_name string) bool {
	for _, i := range net.GetUnconnectedOutLayers() {
		layer := net.GetLayer(i)
		if layer.GetName() == layer_name {
			return true
		}
	}
	return false
}

// backend and target per device name
var devices = map[string]struct {
	backend gocv.NetBackendType
	target  gocv.NetTargetType
}{
	"cpu": {gocv.NetBackendDefault, gocv.NetTargetCPU},
	"gpu": {gocv.NetBackendCUDA, gocv.NetTargetCUDA},
	"vpu": {gocv.NetBackendOpenVINO, gocv.NetTargetVPU},
}

// LoadONNX reads the model and selects the device. The caller owns the
// returned net.
func LoadONNX(model_path, device string) (gocv.Net, []string, error) {
	dev, ok := devices[device]
	if !ok {
		return gocv.Net{}, nil, fmt.Errorf("%q: %w", device, ERR_UNKNOWN_DEVICE)
	}

	net := gocv.ReadNetFromONNX(model_path)
	if net.Empty() {
		return net, nil, fmt.Errorf("%s: %w", model_path, ERR_BAD_MODEL)
	}

	output_layer_names := GetOutputLayerNames(&net)
	if len(output_layer_names) == 0 {
		net.Close()
		return gocv.Net{}, nil, fmt.Errorf("%s has no output layers: %w", model_path, ERR_BAD_MODEL)
	}

	if err := net.SetPreferableBackend(dev.backend); err != nil {
		net.Close()
		return gocv.Net{}, nil, fmt.Errorf("%s: %w", err, ERR_CANT_SET_BACKEND)
	}
	if err := net.SetPreferableTarget(dev.target); err != nil {
		net.Close()
		return gocv.Net{}, nil, fmt.Errorf("%s: %w", err, ERR_CANT_SET_TARGET)
	}
	return net, output_layer_names, nil
}
