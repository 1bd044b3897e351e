package pose

import (
	"fmt"
	"math"
)

// Keypoints with confidence above this are considered reliable by
// every consumer in the pipeline
const ValidConfidence = 0.3

type Landmark uint8

const (
	Nose Landmark = iota
	LeftEyeInner
	LeftEye
	LeftEyeOuter
	RightEyeInner
	RightEye
	RightEyeOuter
	LeftEar
	RightEar
	MouthLeft
	MouthRight
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftPinky
	RightPinky
	LeftIndex
	RightIndex
	LeftThumb
	RightThumb
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	LeftHeel
	RightHeel
	LeftToe
	RightToe
	// derived from the landmarks above
	Neck
	HipCenter

	NumLandmarks
)

type Side uint8

const (
	SideCenter Side = iota
	SideLeft
	SideRight
)

var names = [NumLandmarks]string{
	Nose:          "nose",
	LeftEyeInner:  "left_eye_inner",
	LeftEye:       "left_eye",
	LeftEyeOuter:  "left_eye_outer",
	RightEyeInner: "right_eye_inner",
	RightEye:      "right_eye",
	RightEyeOuter: "right_eye_outer",
	LeftEar:       "left_ear",
	RightEar:      "right_ear",
	MouthLeft:     "mouth_left",
	MouthRight:    "mouth_right",
	LeftShoulder:  "left_shoulder",
	RightShoulder: "right_shoulder",
	LeftElbow:     "left_elbow",
	RightElbow:    "right_elbow",
	LeftWrist:     "left_wrist",
	RightWrist:    "right_wrist",
	LeftPinky:     "left_pinky",
	RightPinky:    "right_pinky",
	LeftIndex:     "left_index",
	RightIndex:    "right_index",
	LeftThumb:     "left_thumb",
	RightThumb:    "right_thumb",
	LeftHip:       "left_hip",
	RightHip:      "right_hip",
	LeftKnee:      "left_knee",
	RightKnee:     "right_knee",
	LeftAnkle:     "left_ankle",
	RightAnkle:    "right_ankle",
	LeftHeel:      "left_heel",
	RightHeel:     "right_heel",
	LeftToe:       "left_toe",
	RightToe:      "right_toe",
	Neck:          "neck",
	HipCenter:     "hip_center",
}

// names some detectors use for the same anatomical point
var aliases = map[string]Landmark{
	"left_foot_index":  LeftToe,
	"right_foot_index": RightToe,
	"left_big_toe":     LeftToe,
	"right_big_toe":    RightToe,
	"mid_hip":          HipCenter,
}

var by_name = func() map[string]Landmark {
	m := make(map[string]Landmark, int(NumLandmarks)+len(aliases))
	for l, name := range names {
		m[name] = Landmark(l)
	}
	for alias, l := range aliases {
		m[alias] = l
	}
	return m
}()

func (l Landmark) String() string {
	if l >= NumLandmarks {
		return fmt.Sprintf("landmark(%d)", uint8(l))
	}
	return names[l]
}

func (l Landmark) Side() Side {
	switch l {
	case LeftEyeInner, LeftEye, LeftEyeOuter, LeftEar, MouthLeft,
		LeftShoulder, LeftElbow, LeftWrist, LeftPinky, LeftIndex, LeftThumb,
		LeftHip, LeftKnee, LeftAnkle, LeftHeel, LeftToe:
		return SideLeft
	case RightEyeInner, RightEye, RightEyeOuter, RightEar, MouthRight,
		RightShoulder, RightElbow, RightWrist, RightPinky, RightIndex, RightThumb,
		RightHip, RightKnee, RightAnkle, RightHeel, RightToe:
		return SideRight
	default:
		return SideCenter
	}
}

// Parse resolves a landmark from its canonical name or a known alias
func Parse(name string) (Landmark, bool) {
	l, ok := by_name[name]
	return l, ok
}

// All iterates over every landmark of the vocabulary in order
func All() []Landmark {
	all := make([]Landmark, NumLandmarks)
	for i := range NumLandmarks {
		all[i] = i
	}
	return all
}

type Keypoint struct {
	X, Y       float64
	Confidence float64
}

func (k Keypoint) Valid() bool {
	return k.Confidence > ValidConfidence
}

func (k Keypoint) Sub(o Keypoint) (float64, float64) {
	return k.X - o.X, k.Y - o.Y
}

func (k Keypoint) Distance(o Keypoint) float64 {
	dx, dy := k.Sub(o)
	return math.Hypot(dx, dy)
}

// Pose is one person's keypoints in one frame, indexed by landmark.
// A zero Pose has no landmarks present.
type Pose struct {
	points  [NumLandmarks]Keypoint
	present [NumLandmarks]bool
}

func (p *Pose) Set(l Landmark, k Keypoint) {
	p.points[l] = k
	p.present[l] = true
}

func (p *Pose) Del(l Landmark) {
	p.points[l] = Keypoint{}
	p.present[l] = false
}

func (p *Pose) Get(l Landmark) (Keypoint, bool) {
	return p.points[l], p.present[l]
}

func (p *Pose) Has(l Landmark) bool {
	return p.present[l]
}

// GetValid returns the keypoint only if it is present and confident
func (p *Pose) GetValid(l Landmark) (Keypoint, bool) {
	if !p.present[l] || !p.points[l].Valid() {
		return Keypoint{}, false
	}
	return p.points[l], true
}

func (p *Pose) Len() int {
	n := 0
	for _, ok := range p.present {
		if ok {
			n++
		}
	}
	return n
}

func (p *Pose) Empty() bool {
	return p.Len() == 0
}

// Each calls f for every present landmark in vocabulary order
func (p *Pose) Each(f func(l Landmark, k Keypoint)) {
	for i, ok := range p.present {
		if ok {
			f(Landmark(i), p.points[i])
		}
	}
}

// Landmarks returns the present landmarks in vocabulary order
func (p *Pose) Landmarks() []Landmark {
	present := make([]Landmark, 0, NumLandmarks)
	for i, ok := range p.present {
		if ok {
			present = append(present, Landmark(i))
		}
	}
	return present
}

// MeanConfidence over all present keypoints, 0 for an empty pose
func (p *Pose) MeanConfidence() float64 {
	var sum float64
	n := 0
	p.Each(func(_ Landmark, k Keypoint) {
		sum += k.Confidence
		n++
	})
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// WithDerived fills in neck and hip center as midpoints of the shoulders and
// hips when both sources are present and the derived point isn't already set
func (p Pose) WithDerived() Pose {
	derive := func(target, a, b Landmark) {
		if p.present[target] {
			return
		}
		ka, ok_a := p.Get(a)
		kb, ok_b := p.Get(b)
		if !ok_a || !ok_b {
			return
		}
		p.Set(target, Keypoint{
			X:          (ka.X + kb.X) / 2,
			Y:          (ka.Y + kb.Y) / 2,
			Confidence: (ka.Confidence + kb.Confidence) / 2,
		})
	}
	derive(Neck, LeftShoulder, RightShoulder)
	derive(HipCenter, LeftHip, RightHip)
	return p
}

// FromMap builds a pose from name-keyed keypoints, unknown names are
// returned separately so callers can decide whether to care
func FromMap(m map[string]Keypoint) (Pose, []string) {
	var p Pose
	var unknown []string
	for name, k := range m {
		l, ok := Parse(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		// canonical names win over aliases
		if _, is_alias := aliases[name]; is_alias && p.Has(l) {
			continue
		}
		p.Set(l, k)
	}
	return p, unknown
}

func (p *Pose) ToMap() map[string]Keypoint {
	m := make(map[string]Keypoint, p.Len())
	p.Each(func(l Landmark, k Keypoint) {
		m[l.String()] = k
	})
	return m
}
