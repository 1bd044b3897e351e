package angles

import (
	"slices"

	"github.com/Robogera/kinematics/pkg/pose"
)

type Kind uint8

const (
	KindFlexion Kind = iota
	KindDorsiflexion
	KindHorizontal
)

func (k Kind) String() string {
	switch k {
	case KindFlexion:
		return "flexion"
	case KindDorsiflexion:
		return "dorsiflexion"
	case KindHorizontal:
		return "horizontal"
	default:
		return "unknown"
	}
}

// Definition describes how one angle is measured. The result is
// (raw + Offset) * Scale so that every angle follows the usual
// sign and zero reference of sports biomechanics.
type Definition struct {
	Name   string
	Points []pose.Landmark
	Kind   Kind
	Offset float64
	Scale  float64
}

// Never mutated after init, shared by every engine.
var joint_catalog = []Definition{
	{"right_ankle", []pose.Landmark{pose.RightKnee, pose.RightAnkle, pose.RightToe, pose.RightHeel}, KindDorsiflexion, 90, 1},
	{"left_ankle", []pose.Landmark{pose.LeftKnee, pose.LeftAnkle, pose.LeftToe, pose.LeftHeel}, KindDorsiflexion, 90, 1},
	{"right_knee", []pose.Landmark{pose.RightAnkle, pose.RightKnee, pose.RightHip}, KindFlexion, -180, 1},
	{"left_knee", []pose.Landmark{pose.LeftAnkle, pose.LeftKnee, pose.LeftHip}, KindFlexion, -180, 1},
	{"right_hip", []pose.Landmark{pose.RightKnee, pose.RightHip, pose.HipCenter, pose.Neck}, KindFlexion, 0, -1},
	{"left_hip", []pose.Landmark{pose.LeftKnee, pose.LeftHip, pose.HipCenter, pose.Neck}, KindFlexion, 0, -1},
	{"right_shoulder", []pose.Landmark{pose.RightElbow, pose.RightShoulder, pose.HipCenter, pose.Neck}, KindFlexion, 0, -1},
	{"left_shoulder", []pose.Landmark{pose.LeftElbow, pose.LeftShoulder, pose.HipCenter, pose.Neck}, KindFlexion, 0, -1},
	{"right_elbow", []pose.Landmark{pose.RightWrist, pose.RightElbow, pose.RightShoulder}, KindFlexion, 180, -1},
	{"left_elbow", []pose.Landmark{pose.LeftWrist, pose.LeftElbow, pose.LeftShoulder}, KindFlexion, 180, -1},
}

var segment_catalog = []Definition{
	{"right_foot", []pose.Landmark{pose.RightToe, pose.RightHeel}, KindHorizontal, 0, -1},
	{"left_foot", []pose.Landmark{pose.LeftToe, pose.LeftHeel}, KindHorizontal, 0, -1},
	{"right_shank", []pose.Landmark{pose.RightAnkle, pose.RightKnee}, KindHorizontal, 0, -1},
	{"left_shank", []pose.Landmark{pose.LeftAnkle, pose.LeftKnee}, KindHorizontal, 0, -1},
	{"right_thigh", []pose.Landmark{pose.RightKnee, pose.RightHip}, KindHorizontal, 0, -1},
	{"left_thigh", []pose.Landmark{pose.LeftKnee, pose.LeftHip}, KindHorizontal, 0, -1},
	{"pelvis", []pose.Landmark{pose.LeftHip, pose.RightHip}, KindHorizontal, 0, -1},
	{"trunk", []pose.Landmark{pose.Neck, pose.HipCenter}, KindHorizontal, 0, -1},
	{"shoulders", []pose.Landmark{pose.LeftShoulder, pose.RightShoulder}, KindHorizontal, 0, -1},
	{"right_arm", []pose.Landmark{pose.RightElbow, pose.RightShoulder}, KindHorizontal, 0, -1},
	{"left_arm", []pose.Landmark{pose.LeftElbow, pose.LeftShoulder}, KindHorizontal, 0, -1},
	{"right_forearm", []pose.Landmark{pose.RightWrist, pose.RightElbow}, KindHorizontal, 0, -1},
	{"left_forearm", []pose.Landmark{pose.LeftWrist, pose.LeftElbow}, KindHorizontal, 0, -1},
}

func JointCatalog() []Definition   { return clone(joint_catalog) }
func SegmentCatalog() []Definition { return clone(segment_catalog) }

func clone(defs []Definition) []Definition {
	c := slices.Clone(defs)
	for i := range c {
		c[i].Points = slices.Clone(c[i].Points)
	}
	return c
}
