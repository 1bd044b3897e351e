package batch

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"
	"time"

	"github.com/Robogera/kinematics/pkg/angles"
	"github.com/Robogera/kinematics/pkg/filters"
	"github.com/Robogera/kinematics/pkg/frame"
	"github.com/Robogera/kinematics/pkg/pose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type fakeVideo struct {
	frames int
	fps    float64
	next   int
	// frames that decode to an empty image
	broken map[int]bool
	delay  time.Duration
	seeks  []int
	closed bool
}

func (v *fakeVideo) FPS() float64      { return v.fps }
func (v *fakeVideo) FrameCount() int   { return v.frames }
func (v *fakeVideo) Size() image.Point { return image.Pt(64, 48) }

func (v *fakeVideo) Seek(frame int) {
	v.seeks = append(v.seeks, frame)
	v.next = frame
}

func (v *fakeVideo) Read(img *gocv.Mat) bool {
	if v.next >= v.frames {
		return false
	}
	time.Sleep(v.delay)
	if !v.broken[v.next] {
		m := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
		m.CopyTo(img)
		m.Close()
	}
	v.next++
	return true
}

func (v *fakeVideo) Close() error {
	v.closed = true
	return nil
}

func body(x float64) pose.Pose {
	var p pose.Pose
	k := func(x, y float64) pose.Keypoint { return pose.Keypoint{X: x, Y: y, Confidence: 0.9} }
	p.Set(pose.LeftShoulder, k(x-6, 60))
	p.Set(pose.RightShoulder, k(x+6, 60))
	p.Set(pose.LeftHip, k(x-4, 120))
	p.Set(pose.RightHip, k(x+4, 120))
	p.Set(pose.LeftKnee, k(x-4, 170))
	p.Set(pose.RightKnee, k(x+4, 170))
	p.Set(pose.LeftAnkle, k(x-4, 220))
	p.Set(pose.RightAnkle, k(x+4, 220))
	return p
}

// walker moves 2 px per analyzed frame, every other frame off by noise
type walker struct {
	calls int
	noise float64
}

func (w *walker) Detect(_ *gocv.Mat) ([]pose.Pose, error) {
	x := 100 + 2*float64(w.calls)
	if w.calls%2 == 1 {
		x += w.noise
	}
	w.calls++
	return []pose.Pose{body(x)}, nil
}

func (w *walker) Close() error { return nil }

func newProcessor(noise float64) ProcessorFactory {
	return func() (*frame.Processor, error) {
		return frame.New(&walker{noise: noise}, frame.DefaultOptions(), nil), nil
	}
}

func opener(v *fakeVideo) func(string) (Source, error) {
	return func(string) (Source, error) { return v, nil }
}

func TestProcessVideo(t *testing.T) {
	v := &fakeVideo{frames: 30, fps: 30}
	vp := NewVideoProcessor(newProcessor(0), Options{Open: opener(v), QueueLength: 4}, nil)

	progress := 0
	r, err := vp.Process(context.Background(), Request{Path: "walk.mp4", Progress: func(done, total int) {
		progress = done
		assert.Equal(t, 30, total)
	}})
	require.NoError(t, err)

	assert.Equal(t, VideoInfo{FPS: 30, TotalFrames: 30, Width: 64, Height: 48, Duration: 1}, r.Info)
	assert.Equal(t, 30, r.ProcessedFrames)
	assert.Equal(t, 30, progress)
	assert.False(t, r.Filtered)
	require.Len(t, r.Results, 30)
	for i, f := range r.Results {
		assert.InDelta(t, float64(i)/30, f.Timestamp, 1e-12)
		require.Len(t, f.Persons, 1)
		assert.Equal(t, r.Results[0].Persons[0].PersonId, f.Persons[0].PersonId)
	}
	assert.InDelta(t, 60, r.Results[1].Persons[0].Metrics.Velocity.X, 1e-9)
	assert.True(t, v.closed)
	assert.Empty(t, v.seeks)
}

func TestRange(t *testing.T) {
	start, end := 0.5, 0.8
	v := &fakeVideo{frames: 30, fps: 30}
	vp := NewVideoProcessor(newProcessor(0), Options{Open: opener(v)}, nil)

	r, err := vp.Process(context.Background(), Request{Start: &start, End: &end, SkipFrames: 2})
	require.NoError(t, err)
	assert.Equal(t, []int{15}, v.seeks)
	// frames 15, 17, ..., 23
	require.Len(t, r.Results, 5)
	assert.InDelta(t, 0.5, r.Results[0].Timestamp, 1e-12)
	assert.InDelta(t, 23.0/30, r.Results[4].Timestamp, 1e-12)
	// 2 px per analyzed frame, analyzed frames are 2/30 s apart
	assert.InDelta(t, 30, r.Results[1].Persons[0].Metrics.Velocity.X, 1e-9)
}

func TestBadRange(t *testing.T) {
	at := func(v float64) *float64 { return &v }
	cases := []struct {
		name       string
		start, end *float64
		fps        float64
	}{
		{"start past the end", at(2), nil, 30},
		{"end before start", at(0.5), at(0.1), 30},
		{"negative start", at(-1), nil, 30},
		{"no frame rate", at(0), nil, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			v := &fakeVideo{frames: 30, fps: c.fps}
			vp := NewVideoProcessor(newProcessor(0), Options{Open: opener(v)}, nil)
			r, err := vp.Process(context.Background(), Request{Start: c.start, End: c.end})
			assert.ErrorIs(t, err, ERR_BAD_RANGE)
			assert.Nil(t, r)
		})
	}
}

func TestCantOpen(t *testing.T) {
	vp := NewVideoProcessor(newProcessor(0), Options{Open: func(path string) (Source, error) {
		return nil, ERR_CANT_OPEN_VIDEO
	}}, nil)
	_, err := vp.Process(context.Background(), Request{Path: "nope.mp4"})
	assert.ErrorIs(t, err, ERR_CANT_OPEN_VIDEO)
}

func TestBrokenFramesSkipped(t *testing.T) {
	v := &fakeVideo{frames: 12, fps: 30, broken: map[int]bool{3: true}}
	vp := NewVideoProcessor(newProcessor(0), Options{Open: opener(v)}, nil)
	r, err := vp.Process(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, 11, r.ProcessedFrames)
	assert.Equal(t, 1, r.FailedFrames)
	assert.InDelta(t, 4.0/30, r.Results[3].Timestamp, 1e-12)
}

func hipX(r *Result) []float64 {
	xs := make([]float64, len(r.Results))
	for i, f := range r.Results {
		k, _ := f.Persons[0].Pose.Get(pose.HipCenter)
		xs[i] = k.X
	}
	return xs
}

func roughness(xs []float64) float64 {
	var sum float64
	for i := 1; i < len(xs)-1; i++ {
		sum += math.Abs(xs[i+1] - 2*xs[i] + xs[i-1])
	}
	return sum
}

func TestFiltering(t *testing.T) {
	run := func(frames int, apply bool) *Result {
		v := &fakeVideo{frames: frames, fps: 30}
		vp := NewVideoProcessor(newProcessor(6), Options{Open: opener(v)}, nil)
		r, err := vp.Process(context.Background(), Request{ApplyFilter: apply, FilterKind: filters.Gaussian})
		require.NoError(t, err)
		return r
	}
	raw := run(30, false)
	smooth := run(30, true)
	assert.True(t, smooth.Filtered)
	assert.Less(t, roughness(hipX(smooth)), roughness(hipX(raw))/2)

	knee := smooth.Results[10].Persons[0].Angles.Joint["left_knee"]
	assert.True(t, knee.Ok())

	short := run(MinFilterFrames-1, true)
	assert.False(t, short.Filtered)
	assert.Equal(t, hipX(run(MinFilterFrames-1, false)), hipX(short))
}

func TestSmoothPositional(t *testing.T) {
	person := func(id int, x float64, trunk *float64) frame.PersonFrameResult {
		var p pose.Pose
		p.Set(pose.Nose, pose.Keypoint{X: x, Y: 0, Confidence: 0.9})
		set := angles.Set{Joint: map[string]angles.Angle{}, Segment: map[string]angles.Angle{"trunk": {Status: angles.StatusMissing}}}
		if trunk != nil {
			set.Segment["trunk"] = angles.Ok(*trunk)
		}
		return frame.PersonFrameResult{PersonId: id, Pose: p, Angles: set}
	}
	f := func(v float64) *float64 { return &v }
	results := []*frame.FrameResult{
		{Persons: []frame.PersonFrameResult{person(0, 0, f(10))}},
		{Persons: []frame.PersonFrameResult{person(0, 10, nil), person(1, 100, f(1))}},
		{Persons: []frame.PersonFrameResult{person(0, 20, f(30))}},
		{Persons: []frame.PersonFrameResult{person(1, 200, f(3)), person(0, 30, f(40))}},
	}
	calls := 0
	mean := func(x []float64) []float64 {
		calls++
		var sum float64
		for _, v := range x {
			sum += v
		}
		out := make([]float64, len(x))
		for i := range out {
			out[i] = sum / float64(len(x))
		}
		return out
	}
	Smooth(results, SmoothOptions{Filter: mean, Interpolate: true, MaxGap: 10})

	nose := func(p frame.PersonFrameResult) float64 {
		k, _ := p.Pose.Get(pose.Nose)
		return k.X
	}
	assert.Equal(t, 15.0, nose(results[0].Persons[0]))
	assert.Equal(t, 15.0, nose(results[3].Persons[1]))
	assert.Equal(t, 150.0, nose(results[1].Persons[1]))
	assert.Equal(t, 150.0, nose(results[3].Persons[0]))

	// the missing trunk angle is interpolated to 20 before averaging
	for _, r := range results {
		for _, p := range r.Persons {
			trunk := p.Angles.Segment["trunk"]
			require.True(t, trunk.Ok())
			if p.PersonId == 0 {
				assert.Equal(t, 25.0, trunk.Value)
			} else {
				assert.Equal(t, 2.0, trunk.Value)
			}
		}
	}
	assert.Greater(t, calls, 0)
}

func TestPool(t *testing.T) {
	vp := NewVideoProcessor(newProcessor(0), Options{Open: func(string) (Source, error) {
		return &fakeVideo{frames: 15, fps: 30}, nil
	}}, nil)
	pool := NewPool(vp, 2, 4, nil)

	jobs := make([]*Job, 0, 5)
	for range 5 {
		job, err := pool.Submit(context.Background(), Request{ApplyFilter: true, FilterKind: filters.Butterworth})
		require.NoError(t, err)
		jobs = append(jobs, job)
	}
	ids := make(map[string]bool)
	for _, job := range jobs {
		r, err := job.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, job.ID, r.JobId)
		assert.Len(t, r.Results, 15)
		assert.True(t, r.Filtered)
		ids[job.ID.String()] = true
	}
	assert.Len(t, ids, 5)

	pool.Close()
	pool.Close()
	_, err := pool.Submit(context.Background(), Request{})
	assert.ErrorIs(t, err, ERR_POOL_CLOSED)
}

func TestJobCancel(t *testing.T) {
	vp := NewVideoProcessor(newProcessor(0), Options{Open: func(string) (Source, error) {
		return &fakeVideo{frames: 100000, fps: 30, delay: time.Millisecond}, nil
	}}, nil)
	pool := NewPool(vp, 1, 1, nil)
	defer pool.Close()

	job, err := pool.Submit(context.Background(), Request{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = job.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	job.Cancel()
	<-job.Done()
	r, err := job.Wait(context.Background())
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Nil(t, r, "no partial results")
}

func TestBlockedSubmit(t *testing.T) {
	vp := NewVideoProcessor(newProcessor(0), Options{Open: func(string) (Source, error) {
		return &fakeVideo{frames: 100000, fps: 30, delay: time.Millisecond}, nil
	}}, nil)
	pool := NewPool(vp, 1, 0, nil)

	busy, err := pool.Submit(context.Background(), Request{})
	require.NoError(t, err)

	blocked := make(chan error, 1)
	go func() {
		_, err := pool.Submit(context.Background(), Request{})
		blocked <- err
	}()

	// a submitter waiting for room doesn't hold up the others
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.Submit(ctx, Request{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	closed := make(chan struct{})
	go func() {
		pool.Close()
		close(closed)
	}()
	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, ERR_POOL_CLOSED)
	case <-time.After(5 * time.Second):
		t.Fatal("Close didn't release the blocked submitter")
	}

	busy.Cancel()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close didn't return")
	}
	_, err = busy.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSampleRate(t *testing.T) {
	assert.Equal(t, 30.0, sampleRate(30, 1))
	assert.Equal(t, 10.0, sampleRate(30, 3))
	assert.Equal(t, 30.0, sampleRate(30, 0))
}
