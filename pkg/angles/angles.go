package angles

import (
	"fmt"
	"math"

	"github.com/Robogera/kinematics/pkg/pose"
)

type Status uint8

const (
	StatusOk Status = iota
	// a required keypoint is absent
	StatusMissing
	// keypoints are present but a vector has zero length
	StatusDegenerate
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusMissing:
		return "missing"
	case StatusDegenerate:
		return "degenerate"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Angle in degrees. Value is meaningless unless Status is StatusOk.
type Angle struct {
	Value  float64
	Status Status
}

func Ok(v float64) Angle { return Angle{Value: v, Status: StatusOk} }

func (a Angle) Ok() bool { return a.Status == StatusOk }

// Ptr is nil for absent angles, handy for serialization
func (a Angle) Ptr() *float64 {
	if !a.Ok() {
		return nil
	}
	v := a.Value
	return &v
}

type Set struct {
	Joint   map[string]Angle
	Segment map[string]Angle
}

type Options struct {
	FlipLeftRight bool
	Joint         bool
	Segment       bool
}

func DefaultOptions() Options {
	return Options{FlipLeftRight: true, Joint: true, Segment: true}
}

// Engine is stateless and safe for concurrent use.
type Engine struct {
	opts Options
}

func NewEngine(opts Options) *Engine {
	return &Engine{opts: opts}
}

func (e *Engine) Compute(p pose.Pose) Set {
	if e.opts.FlipLeftRight {
		p = NormalizeOrientation(p)
	}
	set := Set{
		Joint:   make(map[string]Angle, len(joint_catalog)),
		Segment: make(map[string]Angle, len(segment_catalog)),
	}
	if e.opts.Joint {
		for _, def := range joint_catalog {
			set.Joint[def.Name] = jointAngle(&p, def)
		}
	}
	if e.opts.Segment {
		for _, def := range segment_catalog {
			set.Segment[def.Name] = segmentAngle(&p, def)
		}
	}
	return set
}

// NormalizeOrientation mirrors the x coordinates of one body side when that
// side's foot points left (toe behind the heel), so the conventions of the
// catalog hold whichever way the person faces. The pose is returned as is
// unless both heels and toes are present.
func NormalizeOrientation(p pose.Pose) pose.Pose {
	left_toe, ok_lt := p.Get(pose.LeftToe)
	left_heel, ok_lh := p.Get(pose.LeftHeel)
	right_toe, ok_rt := p.Get(pose.RightToe)
	right_heel, ok_rh := p.Get(pose.RightHeel)
	if !ok_lt || !ok_lh || !ok_rt || !ok_rh {
		return p
	}
	flip_left := left_toe.X-left_heel.X < 0
	flip_right := right_toe.X-right_heel.X < 0
	if !flip_left && !flip_right {
		return p
	}
	for _, l := range p.Landmarks() {
		side := l.Side()
		if (side == pose.SideLeft && flip_left) || (side == pose.SideRight && flip_right) {
			k, _ := p.Get(l)
			k.X = -k.X
			p.Set(l, k)
		}
	}
	return p
}

func jointAngle(p *pose.Pose, def Definition) Angle {
	points := make([]pose.Keypoint, 0, len(def.Points))
	for _, l := range def.Points[:3] {
		k, ok := p.Get(l)
		if !ok {
			return Angle{Status: StatusMissing}
		}
		points = append(points, k)
	}

	var raw float64
	var ok bool
	if def.Kind == KindDorsiflexion && len(def.Points) >= 4 && p.Has(def.Points[3]) {
		heel, _ := p.Get(def.Points[3])
		raw, ok = Dorsiflexion(points[0], points[1], points[2], heel)
	} else {
		raw, ok = Joint(points[0], points[1], points[2])
	}
	if !ok {
		return Angle{Status: StatusDegenerate}
	}
	return Ok(apply(raw, def))
}

func segmentAngle(p *pose.Pose, def Definition) Angle {
	from, ok_from := p.Get(def.Points[0])
	to, ok_to := p.Get(def.Points[1])
	if !ok_from || !ok_to {
		return Angle{Status: StatusMissing}
	}
	raw, ok := Segment(from, to)
	if !ok {
		return Angle{Status: StatusDegenerate}
	}
	return Ok(apply(raw, def))
}

func apply(raw float64, def Definition) float64 {
	return round1((raw + def.Offset) * def.Scale)
}

// Joint is the angle at vertex b between b→a and b→c in degrees.
func Joint(a, b, c pose.Keypoint) (float64, bool) {
	v1x, v1y := a.Sub(b)
	v2x, v2y := c.Sub(b)
	return between(v1x, v1y, v2x, v2y)
}

// Dorsiflexion is the angle between heel→toe and ankle→knee in degrees.
func Dorsiflexion(knee, ankle, toe, heel pose.Keypoint) (float64, bool) {
	fx, fy := toe.Sub(heel)
	sx, sy := knee.Sub(ankle)
	return between(fx, fy, sx, sy)
}

// Segment is the angle of from→to relative to the horizontal image axis.
func Segment(from, to pose.Keypoint) (float64, bool) {
	dx, dy := to.Sub(from)
	if dx == 0 && dy == 0 {
		return 0, false
	}
	return degrees(math.Atan2(dy, dx)), true
}

func between(ax, ay, bx, by float64) (float64, bool) {
	norm_a := math.Hypot(ax, ay)
	norm_b := math.Hypot(bx, by)
	if norm_a == 0 || norm_b == 0 {
		return 0, false
	}
	cos := (ax*bx + ay*by) / (norm_a * norm_b)
	cos = max(-1, min(1, cos))
	angle := degrees(math.Acos(cos))
	if math.IsNaN(angle) {
		return 0, false
	}
	return angle, true
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

func round1(v float64) float64 {
	r := math.Round(v*10) / 10
	if r == 0 {
		// no negative zeros in output
		return 0
	}
	return r
}
