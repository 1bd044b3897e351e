package tracker

import (
	"testing"

	"github.com/Robogera/kinematics/pkg/assoc"
	"github.com/Robogera/kinematics/pkg/pose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func person(x, y float64) pose.Pose {
	var p pose.Pose
	p.Set(pose.LeftHip, pose.Keypoint{X: x - 10, Y: y, Confidence: 0.9})
	p.Set(pose.RightHip, pose.Keypoint{X: x + 10, Y: y, Confidence: 0.9})
	p.Set(pose.Nose, pose.Keypoint{X: x, Y: y - 80, Confidence: 0.9})
	return p.WithDerived()
}

func TestCenter(t *testing.T) {
	p := person(50, 60)
	assert.Equal(t, Point{X: 50, Y: 60}, Center(&p))

	var q pose.Pose
	q.Set(pose.Nose, pose.Keypoint{X: 10, Y: 10, Confidence: 0.9})
	q.Set(pose.LeftEye, pose.Keypoint{X: 20, Y: 30, Confidence: 0.9})
	q.Set(pose.RightEye, pose.Keypoint{X: 900, Y: 900, Confidence: 0.1})
	assert.Equal(t, Point{X: 15, Y: 20}, Center(&q))

	var empty pose.Pose
	assert.Equal(t, Point{}, Center(&empty))
}

func TestContinuity(t *testing.T) {
	pt := New(DefaultOptions(), nil)
	for frame := range 20 {
		tracked, _ := pt.Update([]pose.Pose{person(200, 200)})
		require.Len(t, tracked, 1)
		assert.Equal(t, 0, tracked[0].PersonId, "frame %d", frame)
		if frame == 0 {
			assert.Equal(t, NewTrackConfidence, tracked[0].TrackingConfidence)
		} else {
			assert.Equal(t, 1.0, tracked[0].TrackingConfidence)
		}
	}
	require.Len(t, pt.Tracks(), 1)
	assert.Equal(t, 1, pt.Tracks()[0].CreatedAtFrame())
	assert.Equal(t, 20, pt.Tracks()[0].LastSeenFrame())
}

func TestMovingPerson(t *testing.T) {
	pt := New(DefaultOptions(), nil)
	pt.Update([]pose.Pose{person(100, 100)})
	tracked, statuses := pt.Update([]pose.Pose{person(125, 100)})
	require.Len(t, tracked, 1)
	assert.Equal(t, 0, tracked[0].PersonId)
	assert.InDelta(t, 0.75, tracked[0].TrackingConfidence, 1e-9)
	assert.IsType(t, TrackStatusAssociated{}, statuses[0])

	// jump farther than the threshold starts a new track
	tracked, statuses = pt.Update([]pose.Pose{person(300, 100)})
	require.Len(t, tracked, 1)
	assert.Equal(t, 1, tracked[0].PersonId)
	assert.IsType(t, TrackStatusNew{}, statuses[1])
	assert.IsType(t, TrackStatusLost{}, statuses[0])
}

func TestEviction(t *testing.T) {
	pt := New(DefaultOptions(), nil)
	tracked, _ := pt.Update([]pose.Pose{person(100, 100)})
	require.Equal(t, 0, tracked[0].PersonId)

	for range 30 {
		tracked, _ = pt.Update(nil)
		assert.Empty(t, tracked)
	}
	// lost for exactly 30 frames, still alive
	require.Len(t, pt.Tracks(), 1)
	assert.Equal(t, 30, pt.Tracks()[0].FramesLost())

	_, statuses := pt.Update(nil)
	assert.Empty(t, pt.Tracks())
	assert.IsType(t, TrackStatusDeleted{}, statuses[0])

	tracked, _ = pt.Update([]pose.Pose{person(100, 100)})
	require.Len(t, tracked, 1)
	assert.Equal(t, 1, tracked[0].PersonId)
}

func TestReturnBeforeEviction(t *testing.T) {
	pt := New(DefaultOptions(), nil)
	pt.Update([]pose.Pose{person(100, 100)})
	for range 30 {
		pt.Update(nil)
	}
	tracked, _ := pt.Update([]pose.Pose{person(100, 100)})
	require.Len(t, tracked, 1)
	assert.Equal(t, 0, tracked[0].PersonId)
	assert.Equal(t, 0, pt.Tracks()[0].FramesLost())
}

func TestTwoPeople(t *testing.T) {
	pt := New(DefaultOptions(), nil)
	tracked, _ := pt.Update([]pose.Pose{person(100, 100), person(400, 100)})
	require.Len(t, tracked, 2)
	assert.Equal(t, 0, tracked[0].PersonId)
	assert.Equal(t, 1, tracked[1].PersonId)
	assert.NotEqual(t, tracked[0].Color, tracked[1].Color)

	// detections arrive in reverse order
	tracked, _ = pt.Update([]pose.Pose{person(410, 100), person(110, 100)})
	require.Len(t, tracked, 2)
	ids := map[int]float64{}
	for _, tp := range tracked {
		c := Center(&tp.Pose)
		ids[tp.PersonId] = c.X
	}
	assert.Equal(t, map[int]float64{0: 110, 1: 410}, ids)
}

func TestNoDuplicateIds(t *testing.T) {
	for _, solver := range []assoc.Solver{assoc.Greedy, assoc.Hungarian} {
		opts := DefaultOptions()
		opts.Solver = solver
		pt := New(opts, nil)
		pt.Update([]pose.Pose{person(100, 100)})
		tracked, _ := pt.Update([]pose.Pose{person(101, 100), person(102, 100), person(103, 100)})
		require.Len(t, tracked, 3)
		seen := map[int]bool{}
		for _, tp := range tracked {
			assert.False(t, seen[tp.PersonId])
			seen[tp.PersonId] = true
		}
	}
}

func TestReset(t *testing.T) {
	pt := New(DefaultOptions(), nil)
	pt.Update([]pose.Pose{person(100, 100)})
	pt.Reset()
	assert.Empty(t, pt.Tracks())
	assert.Equal(t, 0, pt.Frame())
	tracked, _ := pt.Update([]pose.Pose{person(100, 100)})
	assert.Equal(t, 1, tracked[0].PersonId)
}

func TestNilLogger(t *testing.T) {
	pt := New(DefaultOptions(), nil)
	require.NotPanics(t, func() {
		pt.Update([]pose.Pose{person(100, 100)})
		pt.Update([]pose.Pose{person(102, 100)})
		pt.Update(nil)
	})
}

func TestHungarianContinuity(t *testing.T) {
	opts := DefaultOptions()
	opts.Solver = assoc.Hungarian
	pt := New(opts, nil)
	tracked, _ := pt.Update([]pose.Pose{person(0, 100), person(50, 100)})
	require.Len(t, tracked, 2)

	for frame := 1; frame < 5; frame++ {
		tracked, statuses := pt.Update([]pose.Pose{
			person(4*float64(frame), 100),
			person(50-6*float64(frame), 100),
		})
		require.Len(t, tracked, 2)
		ids := map[int]float64{}
		for _, tp := range tracked {
			ids[tp.PersonId] = Center(&tp.Pose).X
			assert.IsType(t, TrackStatusAssociated{}, statuses[tp.PersonId], "frame %d", frame)
		}
		assert.Equal(t, map[int]float64{
			0: 4 * float64(frame),
			1: 50 - 6*float64(frame),
		}, ids, "frame %d", frame)
	}
	assert.Len(t, pt.Tracks(), 2)
}
