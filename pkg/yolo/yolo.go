package yolo

import (
	"errors"
	"fmt"
	"image"

	"github.com/Robogera/kinematics/pkg/pose"
	"gocv.io/x/gocv"
)

var (
	ERR_BAD_OUTPUT = errors.New("Unexpected model output shape")
)

// COCO keypoint order of YOLO-pose models
var Keypoints = [...]pose.Landmark{
	pose.Nose,
	pose.LeftEye, pose.RightEye,
	pose.LeftEar, pose.RightEar,
	pose.LeftShoulder, pose.RightShoulder,
	pose.LeftElbow, pose.RightElbow,
	pose.LeftWrist, pose.RightWrist,
	pose.LeftHip, pose.RightHip,
	pose.LeftKnee, pose.RightKnee,
	pose.LeftAnkle, pose.RightAnkle,
}

// box (4) + person score (1) + x, y, confidence per keypoint
var Channels = 5 + 3*len(Keypoints)

type Candidate struct {
	// in image coordinates
	Box   image.Rectangle
	Score float32
	Pose  pose.Pose
}

// Letterbox maps model input coordinates back to the image: the image
// was scaled by Scale keeping its aspect ratio and centered with padding
type Letterbox struct {
	Scale      float64
	PadX, PadY float64
}

func NewLetterbox(img_size, input_size image.Point) Letterbox {
	if img_size.X <= 0 || img_size.Y <= 0 {
		return Letterbox{Scale: 1}
	}
	scale := min(
		float64(input_size.X)/float64(img_size.X),
		float64(input_size.Y)/float64(img_size.Y))
	return Letterbox{
		Scale: scale,
		PadX:  (float64(input_size.X) - float64(img_size.X)*scale) / 2,
		PadY:  (float64(input_size.Y) - float64(img_size.Y)*scale) / 2,
	}
}

func (l Letterbox) ToImage(x, y float64) (float64, float64) {
	return (x - l.PadX) / l.Scale, (y - l.PadY) / l.Scale
}

// Decode parses raw YOLO-pose output with one row per anchor. The data
// is channel-major ([channels][anchors]) as exported by ultralytics
// unless anchor_major is set. Anchors scoring below min_score are skipped.
func Decode(data []float32, anchors int, anchor_major bool, lb Letterbox, min_score float32) ([]Candidate, error) {
	if len(data) != anchors*Channels {
		return nil, fmt.Errorf("%d values for %d anchors of %d channels: %w", len(data), anchors, Channels, ERR_BAD_OUTPUT)
	}
	at := func(channel, anchor int) float64 {
		if anchor_major {
			return float64(data[anchor*Channels+channel])
		}
		return float64(data[channel*anchors+anchor])
	}

	candidates := make([]Candidate, 0)
	for i := range anchors {
		score := float32(at(4, i))
		if score < min_score {
			continue
		}
		// elements 0 and 1 correspond to the bounding box center coordinates
		// and elements 2 and 3 are the box dimensions
		cx, cy := at(0, i), at(1, i)
		half_w, half_h := at(2, i)/2, at(3, i)/2
		x0, y0 := lb.ToImage(cx-half_w, cy-half_h)
		x1, y1 := lb.ToImage(cx+half_w, cy+half_h)

		var p pose.Pose
		for k, l := range Keypoints {
			x, y := lb.ToImage(at(5+3*k, i), at(6+3*k, i))
			p.Set(l, pose.Keypoint{X: x, Y: y, Confidence: at(7+3*k, i)})
		}
		candidates = append(candidates, Candidate{
			Box:   image.Rect(int(x0), int(y0), int(x1), int(y1)),
			Score: score,
			Pose:  p,
		})
	}
	return candidates, nil
}

type Params struct {
	InputSize    image.Point
	ScaleFactor  float64
	Transpose    bool
	MinScore     float32
	NMSThreshold float32
}

func (p Params) BlobParams() gocv.ImageToBlobParams {
	return gocv.NewImageToBlobParams(
		p.ScaleFactor,
		p.InputSize,
		gocv.NewScalar(0, 0, 0, 0),
		true,
		gocv.MatTypeCV32F,
		gocv.DataLayoutNCHW,
		gocv.PaddingModeLetterbox,
		gocv.NewScalar(114, 114, 114, 0),
	)
}

// Detect runs the network on img and returns the candidates that
// survive non-maximum suppression, best first
func Detect(net *gocv.Net, img *gocv.Mat, output_layer_names []string, params Params, blob_params *gocv.ImageToBlobParams) ([]Candidate, error) {
	blob := gocv.BlobFromImageWithParams(*img, *blob_params)
	defer blob.Close()

	net.SetInput(blob, "")

	outputs := net.ForwardLayers(output_layer_names)
	defer func() {
		for _, output := range outputs {
			output.Close()
		}
	}()
	if len(outputs) == 0 {
		return nil, fmt.Errorf("No outputs: %w", ERR_BAD_OUTPUT)
	}

	// YOLO-models authored by ultralythics are [1, channels, anchors],
	// transposing makes every anchor a contiguous row
	output := outputs[0]
	if params.Transpose {
		gocv.TransposeND(output, []int{0, 2, 1}, &output)
	}
	size := output.Size()
	if len(size) != 3 {
		return nil, fmt.Errorf("Output dims %v: %w", size, ERR_BAD_OUTPUT)
	}
	anchors := size[2]
	if params.Transpose {
		anchors = size[1]
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("Can't read output: %w", err)
	}
	lb := NewLetterbox(image.Pt(img.Cols(), img.Rows()), params.InputSize)
	candidates, err := Decode(data, anchors, params.Transpose, lb, params.MinScore)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return candidates, nil
	}

	boxes := make([]image.Rectangle, len(candidates))
	scores := make([]float32, len(candidates))
	for i, c := range candidates {
		boxes[i] = c.Box
		scores[i] = c.Score
	}
	indices := gocv.NMSBoxes(boxes, scores, params.MinScore, params.NMSThreshold)
	kept := make([]Candidate, 0, len(indices))
	for _, i := range indices {
		kept = append(kept, candidates[i])
	}
	return kept, nil
}
