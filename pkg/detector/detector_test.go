package detector

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Robogera/kinematics/pkg/config"
	"github.com/Robogera/kinematics/pkg/pose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withConfidences builds a pose of consecutive landmarks with the given confidences
func withConfidences(confs ...float64) pose.Pose {
	var p pose.Pose
	for i, c := range confs {
		p.Set(pose.Landmark(i), pose.Keypoint{X: float64(i), Y: float64(i), Confidence: c})
	}
	return p
}

func TestAccept(t *testing.T) {
	th := DefaultThresholds()
	cases := []struct {
		name  string
		p     pose.Pose
		valid bool
	}{
		{"all confident", withConfidences(0.9, 0.9, 0.9), true},
		{"too few confident", withConfidences(0.9, 0.1, 0.1, 0.1, 0.1), false},
		// 2 of 6 confident, mean 0.6
		{"ratio on the edge", withConfidences(0.6, 0.6, 0, 0, 0, 0.1), true},
		{"confident but weak", withConfidences(0.4, 0.4, 0.4), false},
		{"average on the edge", withConfidences(0.5, 0.5), true},
		{"empty", pose.Pose{}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.valid, th.Accept(&c.p))
		})
	}
}

func TestSelect(t *testing.T) {
	th := DefaultThresholds()
	th.MaxPersons = 2
	good := withConfidences(0.9, 0.9)
	bad := withConfidences(0.1, 0.1)
	marker := func(p pose.Pose, x float64) pose.Pose {
		p.Set(pose.RightToe, pose.Keypoint{X: x, Confidence: 0.9})
		return p
	}
	got := th.Select([]Candidate{
		{Score: 0.5, Pose: marker(good, 1)},
		{Score: 0.99, Pose: bad},
		{Score: 0.7, Pose: marker(good, 2)},
		{Score: 0.6, Pose: marker(good, 3)},
	}, nil)
	require.Len(t, got, 2)
	k, _ := got[0].Get(pose.RightToe)
	assert.Equal(t, 2.0, k.X)
	k, _ = got[1].Get(pose.RightToe)
	assert.Equal(t, 3.0, k.X)

	th.MaxPersons = 0
	assert.Len(t, th.Select([]Candidate{{Score: 1, Pose: good}, {Score: 1, Pose: good}, {Score: 1, Pose: good}}, nil), 3)
}

const recording = `{"persons":[{"score":0.9,"keypoints":{"left_shoulder":{"x":10,"y":20,"confidence":0.9},"right_shoulder":{"x":30,"y":20,"confidence":0.8},"left_foot_index":{"x":1,"y":2,"confidence":0.7},"tail":{"x":0,"y":0,"confidence":1}}}]}

{"persons":[]}
{"persons":[{"keypoints":{"nose":{"x":1,"y":1,"confidence":0.1}}}]}
`

func TestReplay(t *testing.T) {
	r, err := NewReplay(strings.NewReader(recording), DefaultThresholds(), nil)
	require.NoError(t, err)
	require.Equal(t, 3, r.Len())

	persons, err := r.Detect(nil)
	require.NoError(t, err)
	require.Len(t, persons, 1)
	k, ok := persons[0].Get(pose.LeftShoulder)
	require.True(t, ok)
	assert.Equal(t, pose.Keypoint{X: 10, Y: 20, Confidence: 0.9}, k)
	assert.True(t, persons[0].Has(pose.LeftToe), "aliases resolve")
	assert.Equal(t, 3, persons[0].Len(), "unknown names are dropped")

	persons, err = r.Detect(nil)
	require.NoError(t, err)
	assert.Empty(t, persons)

	persons, err = r.Detect(nil)
	require.NoError(t, err)
	assert.Empty(t, persons, "weak person is rejected")

	persons, err = r.Detect(nil)
	require.NoError(t, err)
	assert.NotNil(t, persons)
	assert.Empty(t, persons, "past the end")

	r.Rewind()
	persons, _ = r.Detect(nil)
	assert.Len(t, persons, 1)
}

func TestReplayBadRecord(t *testing.T) {
	_, err := NewReplay(strings.NewReader("{\"persons\":[]}\n{oops\n"), DefaultThresholds(), nil)
	assert.ErrorIs(t, err, ERR_BAD_RECORD)
}

func TestNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(recording), 0o644))

	cfg := config.Default().Detector
	cfg.Kind = string(config.DetectorKindReplay)
	cfg.ReplayPath = path
	d, err := New(&cfg, nil)
	require.NoError(t, err)
	defer d.Close()
	assert.IsType(t, &Replay{}, d)

	cfg.Kind = "magic"
	_, err = New(&cfg, nil)
	assert.ErrorIs(t, err, ERR_UNKNOWN_KIND)

	cfg.Kind = string(config.DetectorKindYolo)
	cfg.ModelPath = filepath.Join(t.TempDir(), "missing.onnx")
	cfg.Device = "abacus"
	_, err = New(&cfg, nil)
	assert.ErrorIs(t, err, ERR_BAD_MODEL)
}
