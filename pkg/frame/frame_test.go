package frame

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/Robogera/kinematics/pkg/config"
	"github.com/Robogera/kinematics/pkg/pose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// scripted returns prepared detections frame after frame
type scripted struct {
	frames [][]pose.Pose
	next   int
	err    error
	closed bool
}

func (s *scripted) Detect(_ *gocv.Mat) ([]pose.Pose, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.next >= len(s.frames) {
		return []pose.Pose{}, nil
	}
	persons := append([]pose.Pose(nil), s.frames[s.next]...)
	s.next++
	return persons, nil
}

func (s *scripted) Close() error {
	s.closed = true
	return nil
}

// walker has its hip center at (hx, 100) and neck at (hx - 10, 100)
func walker(hx float64) pose.Pose {
	var p pose.Pose
	k := func(x, y float64) pose.Keypoint { return pose.Keypoint{X: x, Y: y, Confidence: 0.9} }
	p.Set(pose.LeftHip, k(hx, 92))
	p.Set(pose.RightHip, k(hx, 108))
	p.Set(pose.LeftShoulder, k(hx-10, 94))
	p.Set(pose.RightShoulder, k(hx-10, 106))
	return p
}

func blank(t *testing.T) *gocv.Mat {
	img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { img.Close() })
	return &img
}

func TestEndToEnd(t *testing.T) {
	d := &scripted{frames: [][]pose.Pose{{walker(100)}, {walker(105)}, {walker(110)}}}
	fp := New(d, DefaultOptions(), nil)
	img := blank(t)

	results := make([]*FrameResult, 0, 3)
	for range 3 {
		r, err := fp.Process(img, nil)
		require.NoError(t, err)
		require.Len(t, r.Persons, 1)
		results = append(results, r)
	}

	id := results[0].Persons[0].PersonId
	for i, r := range results {
		assert.Equal(t, i, r.FrameId)
		assert.InDelta(t, float64(i)/30, r.Timestamp, 1e-12)
		p := r.Persons[0]
		assert.Equal(t, id, p.PersonId)

		trunk := p.Angles.Segment["trunk"]
		require.True(t, trunk.Ok(), "frame %d", i)
		assert.Less(t, math.Abs(trunk.Value), 1.0)

		hc, ok := p.Pose.Get(pose.HipCenter)
		require.True(t, ok, "derived points are added")
		assert.Equal(t, 100+5*float64(i), hc.X)
	}

	assert.Equal(t, 0.0, results[0].Persons[0].Metrics.Velocity.X, "no previous frame")
	assert.Greater(t, results[1].Persons[0].Metrics.Velocity.X, 0.0)
	assert.InDelta(t, 150, results[1].Persons[0].Metrics.Velocity.X, 1e-6)
	assert.Equal(t, 0.0, results[2].Persons[0].Metrics.Velocity.Y)
}

func TestTimestamps(t *testing.T) {
	d := &scripted{frames: [][]pose.Pose{{walker(100)}, {walker(110)}}}
	fp := New(d, DefaultOptions(), nil)
	fp.SetFPS(10)
	fp.SetFPS(-1)
	assert.Equal(t, 10.0, fp.FPS())
	img := blank(t)

	ts := 2.0
	r, err := fp.Process(img, &ts)
	require.NoError(t, err)
	assert.Equal(t, 2.0, r.Timestamp)

	// 0.5 s later, 10 px to the right
	ts = 2.5
	r, err = fp.Process(img, &ts)
	require.NoError(t, err)
	assert.InDelta(t, 20, r.Persons[0].Metrics.Velocity.X, 1e-9)

	// going back in time falls back to 1 / fps
	d.frames = append(d.frames, []pose.Pose{walker(111)})
	ts = 1
	r, err = fp.Process(img, &ts)
	require.NoError(t, err)
	assert.InDelta(t, 10, r.Persons[0].Metrics.Velocity.X, 1e-9)
}

func TestEmptyImage(t *testing.T) {
	fp := New(&scripted{}, DefaultOptions(), nil)
	empty := gocv.NewMat()
	defer empty.Close()

	_, err := fp.Process(&empty, nil)
	assert.ErrorIs(t, err, ERR_EMPTY_IMAGE)
	_, err = fp.Process(nil, nil)
	assert.ErrorIs(t, err, ERR_EMPTY_IMAGE)

	// a failed frame doesn't count
	r, err := fp.Process(blank(t), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, r.FrameId)
	assert.Empty(t, r.Persons)
	assert.Equal(t, 0, r.FrameMetrics.DetectedPersons)
	assert.Equal(t, 0.0, r.FrameMetrics.AverageConfidence)
}

func TestDetectorError(t *testing.T) {
	boom := errors.New("boom")
	fp := New(&scripted{err: boom}, DefaultOptions(), nil)
	_, err := fp.Process(blank(t), nil)
	assert.ErrorIs(t, err, boom)
}

func TestReset(t *testing.T) {
	d := &scripted{frames: [][]pose.Pose{{walker(100)}, {walker(105)}, {walker(110)}}}
	fp := New(d, DefaultOptions(), nil)
	img := blank(t)

	first, err := fp.Process(img, nil)
	require.NoError(t, err)
	fp.Reset()

	r, err := fp.Process(img, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, r.FrameId)
	assert.Equal(t, 0.0, r.Persons[0].Metrics.Velocity.X, "previous frame is forgotten")
	assert.NotEqual(t, first.Persons[0].PersonId, r.Persons[0].PersonId, "ids are never reused")

	require.NoError(t, fp.Close())
	assert.True(t, d.closed)
}

func TestAggregates(t *testing.T) {
	a := walker(100)
	b := walker(400)
	b.Set(pose.Nose, pose.Keypoint{X: 400, Y: 50, Confidence: 0.4})
	fp := New(&scripted{frames: [][]pose.Pose{{a, b}}}, DefaultOptions(), nil)
	r, err := fp.Process(blank(t), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, r.FrameMetrics.DetectedPersons)
	// 12 keypoints of 0.9 (derived ones included) and one of 0.4
	assert.InDelta(t, (12*0.9+0.4)/13, r.FrameMetrics.AverageConfidence, 0.0005)
	assert.Equal(t, r.ProcessingTimeMs, round(r.ProcessingTimeMs, 2))
}

func TestOptionsFrom(t *testing.T) {
	cfg := config.Default()
	cfg.Tracker.Assignment = string(config.AssignmentHungarian)
	cfg.Tracker.MaxFramesLost = 3
	cfg.Angles.Segment = false
	cfg.Input.FPS = 25

	opts := OptionsFrom(cfg)
	assert.Equal(t, 3, opts.Tracker.MaxFramesLost)
	assert.NotNil(t, opts.Tracker.Solver)
	assert.False(t, opts.Angles.Segment)
	assert.True(t, opts.Angles.Joint)
	assert.Equal(t, 25.0, opts.FPS)
}

func TestExport(t *testing.T) {
	var p pose.Pose
	p.Set(pose.Nose, pose.Keypoint{X: 1.23456, Y: 7.891, Confidence: 0.98765})
	fp := New(&scripted{frames: [][]pose.Pose{{p}}}, DefaultOptions(), nil)
	r, err := fp.Process(blank(t), nil)
	require.NoError(t, err)

	e := r.Export()
	require.Len(t, e.Persons, 1)
	assert.Equal(t, KeypointExport{X: 1.23, Y: 7.89, Confidence: 0.988}, e.Persons[0].Keypoints["nose"])
	assert.Nil(t, e.Persons[0].SegmentAngles["trunk"])
	assert.Contains(t, e.Persons[0].JointAngles, "left_knee")
	assert.Equal(t, "#", e.Persons[0].Color[:1])
	assert.Len(t, e.Persons[0].Color, 7)

	data, err := json.Marshal(e)
	require.NoError(t, err)
	for _, key := range []string{`"frame_id":0`, `"person_id":0`, `"segment_angles"`, `"visible_side":"unknown"`, `"processing_fps"`} {
		assert.Contains(t, string(data), key)
	}
}
