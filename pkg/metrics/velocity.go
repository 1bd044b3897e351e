package metrics

import (
	"github.com/Robogera/kinematics/pkg/pose"
)

// Velocity in pixels per second
type Velocity struct {
	X, Y float64
}

// History gives access to the poses of the previous frame by person id
type History interface {
	PoseOf(person_id int) (pose.Pose, bool)
}

var velocity_landmarks = []pose.Landmark{
	pose.LeftHip, pose.RightHip, pose.LeftShoulder, pose.RightShoulder,
}

// ComputeVelocity finds the same person in the previous frame and returns
// the displacement of their center over dt. Zero when there is no previous
// frame, the person wasn't in it, dt isn't positive or either center can't
// be determined.
func ComputeVelocity(person_id int, current pose.Pose, previous History, dt_seconds float64) Velocity {
	if previous == nil || dt_seconds <= 0 {
		return Velocity{}
	}
	prev_pose, found := previous.PoseOf(person_id)
	if !found {
		return Velocity{}
	}
	now, ok_now := velocityCenter(current)
	prev, ok_prev := velocityCenter(prev_pose)
	if !ok_now || !ok_prev {
		return Velocity{}
	}
	return Velocity{
		X: round((now.X-prev.X)/dt_seconds, 2),
		Y: round((now.Y-prev.Y)/dt_seconds, 2),
	}
}

func velocityCenter(p pose.Pose) (Point, bool) {
	if k, ok := p.Get(pose.HipCenter); ok {
		return Point{k.X, k.Y}, true
	}
	return meanOfValid(p, velocity_landmarks)
}
