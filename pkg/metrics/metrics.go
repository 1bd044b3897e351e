package metrics

import (
	"image"
	"math"

	"github.com/Robogera/kinematics/pkg/pose"
)

type Point struct {
	X, Y float64
}

type Side string

const (
	SideLeft    Side = "left"
	SideRight   Side = "right"
	SideFront   Side = "front"
	SideUnknown Side = "unknown"
)

type Direction string

const (
	LeftToRight Direction = "left_to_right"
	RightToLeft Direction = "right_to_left"
	Stationary  Direction = "stationary"
)

// Minimum toe-heel horizontal displacement in pixels for a foot
// to count as pointing somewhere
const foot_direction_px = 10.0

type Metrics struct {
	HeightPixels float64
	// HeightPixels relative to the image height, 0 when unknown
	HeightRatio       float64
	CenterOfMass      Point
	VisibleSide       Side
	MovementDirection Direction
	Velocity          Velocity
}

var head_region = []pose.Landmark{
	pose.Nose, pose.LeftEye, pose.RightEye, pose.LeftEar, pose.RightEar,
}

var foot_region = []pose.Landmark{
	pose.LeftAnkle, pose.RightAnkle, pose.LeftHeel, pose.RightHeel, pose.LeftToe, pose.RightToe,
}

var mass_weights = []struct {
	l pose.Landmark
	w float64
}{
	{pose.LeftHip, 0.15},
	{pose.RightHip, 0.15},
	{pose.LeftShoulder, 0.1},
	{pose.RightShoulder, 0.1},
	{pose.Neck, 0.2},
	{pose.LeftKnee, 0.075},
	{pose.RightKnee, 0.075},
	{pose.LeftAnkle, 0.075},
	{pose.RightAnkle, 0.075},
}

// Compute derives the per-person metrics of one frame. Velocity is left
// zero, it needs the previous frame (see ComputeVelocity).
// image_size is (width, height).
func Compute(p pose.Pose, image_size image.Point) Metrics {
	height := Height(p)
	m := Metrics{
		HeightPixels: height,
		CenterOfMass: CenterOfMass(p),
		VisibleSide:  VisibleSide(p),
	}
	if image_size.Y > 0 {
		m.HeightRatio = round(height/float64(image_size.Y), 3)
	}
	m.MovementDirection = MovementDirection(m.VisibleSide)
	return m
}

// Height is the vertical span between the topmost head keypoint and the
// bottommost foot keypoint, falling back to the span of every confident
// keypoint. 0 without confident keypoints.
func Height(p pose.Pose) float64 {
	top, bottom := math.Inf(1), math.Inf(-1)
	for _, l := range head_region {
		if k, ok := p.GetValid(l); ok {
			top = min(top, k.Y)
		}
	}
	for _, l := range foot_region {
		if k, ok := p.GetValid(l); ok {
			bottom = max(bottom, k.Y)
		}
	}
	if math.IsInf(top, 1) || math.IsInf(bottom, -1) {
		top, bottom = math.Inf(1), math.Inf(-1)
		p.Each(func(_ pose.Landmark, k pose.Keypoint) {
			if k.Valid() {
				top = min(top, k.Y)
				bottom = max(bottom, k.Y)
			}
		})
		if math.IsInf(top, 1) {
			return 0
		}
	}
	return round(max(0, bottom-top), 2)
}

// CenterOfMass prefers the hip center, then a fixed segment weighting
// renormalized over the confident subset, then the plain mean of
// confident keypoints, then the origin.
func CenterOfMass(p pose.Pose) Point {
	if k, ok := p.Get(pose.HipCenter); ok {
		return Point{round(k.X, 2), round(k.Y, 2)}
	}
	var wx, wy, total float64
	for _, mw := range mass_weights {
		if k, ok := p.GetValid(mw.l); ok {
			wx += k.X * mw.w
			wy += k.Y * mw.w
			total += mw.w
		}
	}
	if total > 0 {
		return Point{round(wx/total, 2), round(wy/total, 2)}
	}
	if c, ok := meanOfValid(p, nil); ok {
		return Point{round(c.X, 2), round(c.Y, 2)}
	}
	return Point{}
}

// VisibleSide compares the direction both feet point to. Unknown when
// any heel or toe is missing.
func VisibleSide(p pose.Pose) Side {
	left_toe, ok_lt := p.Get(pose.LeftToe)
	left_heel, ok_lh := p.Get(pose.LeftHeel)
	right_toe, ok_rt := p.Get(pose.RightToe)
	right_heel, ok_rh := p.Get(pose.RightHeel)
	if !ok_lt || !ok_lh || !ok_rt || !ok_rh {
		return SideUnknown
	}
	left_dir := left_toe.X - left_heel.X
	right_dir := right_toe.X - right_heel.X
	switch {
	case left_dir > foot_direction_px && right_dir > foot_direction_px:
		return SideRight
	case left_dir < -foot_direction_px && right_dir < -foot_direction_px:
		return SideLeft
	default:
		return SideFront
	}
}

// MovementDirection is a placeholder heuristic: it only looks at which
// way the feet point, not at any displacement over time.
func MovementDirection(side Side) Direction {
	switch side {
	case SideRight:
		return LeftToRight
	case SideLeft:
		return RightToLeft
	default:
		return Stationary
	}
}

// plain mean of confident keypoints, restricted to only when non-nil
func meanOfValid(p pose.Pose, only []pose.Landmark) (Point, bool) {
	var sx, sy float64
	n := 0
	add := func(k pose.Keypoint) {
		sx += k.X
		sy += k.Y
		n++
	}
	if only == nil {
		p.Each(func(_ pose.Landmark, k pose.Keypoint) {
			if k.Valid() {
				add(k)
			}
		})
	} else {
		for _, l := range only {
			if k, ok := p.GetValid(l); ok {
				add(k)
			}
		}
	}
	if n == 0 {
		return Point{}, false
	}
	return Point{sx / float64(n), sy / float64(n)}, true
}

func round(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	r := math.Round(v*pow) / pow
	if r == 0 {
		return 0
	}
	return r
}
