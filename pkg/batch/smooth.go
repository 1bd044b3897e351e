package batch

import (
	"maps"
	"math"
	"slices"

	"github.com/Robogera/kinematics/pkg/angles"
	"github.com/Robogera/kinematics/pkg/filters"
	"github.com/Robogera/kinematics/pkg/frame"
	"github.com/Robogera/kinematics/pkg/interp"
	"github.com/Robogera/kinematics/pkg/pose"
	"github.com/Robogera/kinematics/pkg/series"
)

// Below this many frames results are returned unfiltered
const MinFilterFrames = 11

type SmoothOptions struct {
	Filter      filters.Func
	Interpolate bool
	MaxGap      int
}

// Smooth regroups the persons of the results into per-track series,
// fills short gaps and filters every keypoint coordinate and angle, then
// writes the values back in place. A track's i-th sample goes back into
// the i-th frame that track appears in.
func Smooth(results []*frame.FrameResult, opts SmoothOptions) {
	persons := make([]*frame.PersonFrameResult, 0, len(results))
	for _, r := range results {
		for i := range r.Persons {
			persons = append(persons, &r.Persons[i])
		}
	}
	ids, positions := series.Group(persons, func(p *frame.PersonFrameResult) int { return p.PersonId })
	for _, id := range ids {
		track := make([]*frame.PersonFrameResult, len(positions[id]))
		for i, pos := range positions[id] {
			track[i] = persons[pos]
		}
		smoothTrack(track, opts)
	}
}

func smoothTrack(track []*frame.PersonFrameResult, opts SmoothOptions) {
	poses := make([]pose.Pose, len(track))
	for i, p := range track {
		poses[i] = p.Pose
	}
	if opts.Interpolate {
		interp.FillKeypoints(poses, opts.MaxGap)
	}
	for _, l := range pose.All() {
		coord := func(get func(k pose.Keypoint) float64, set func(k *pose.Keypoint, v float64)) {
			col := series.Column(poses, func(p *pose.Pose) series.Optional[float64] {
				k, ok := p.Get(l)
				if !ok {
					return series.None[float64]()
				}
				return series.Some(get(k))
			})
			if !slices.ContainsFunc(col, func(s series.Optional[float64]) bool { return s.Ok }) {
				return
			}
			col = series.Map(col, opts.Filter)
			series.Store(poses, col, func(p *pose.Pose, v float64) {
				k, _ := p.Get(l)
				set(&k, v)
				p.Set(l, k)
			})
		}
		coord(func(k pose.Keypoint) float64 { return k.X }, func(k *pose.Keypoint, v float64) { k.X = v })
		coord(func(k pose.Keypoint) float64 { return k.Y }, func(k *pose.Keypoint, v float64) { k.Y = v })
	}
	for i, p := range track {
		p.Pose = poses[i]
	}

	smoothAngles(track, opts, func(p *frame.PersonFrameResult) map[string]angles.Angle { return p.Angles.Joint })
	smoothAngles(track, opts, func(p *frame.PersonFrameResult) map[string]angles.Angle { return p.Angles.Segment })
}

func smoothAngles(track []*frame.PersonFrameResult, opts SmoothOptions, group func(p *frame.PersonFrameResult) map[string]angles.Angle) {
	names := make(map[string]struct{})
	for _, p := range track {
		for name := range group(p) {
			names[name] = struct{}{}
		}
	}
	for _, name := range slices.Sorted(maps.Keys(names)) {
		col := series.Column(track, func(p **frame.PersonFrameResult) series.Optional[float64] {
			a, ok := group(*p)[name]
			if !ok || !a.Ok() {
				return series.None[float64]()
			}
			return series.Some(a.Value)
		})
		if opts.Interpolate {
			col = interp.FillGaps(col, opts.MaxGap)
		}
		col = series.Map(col, opts.Filter)
		series.Store(track, col, func(p **frame.PersonFrameResult, v float64) {
			set := group(*p)
			if set == nil {
				return
			}
			set[name] = angles.Ok(round1(v))
		})
	}
}

func round1(v float64) float64 {
	r := math.Round(v*10) / 10
	if r == 0 {
		return 0
	}
	return r
}
