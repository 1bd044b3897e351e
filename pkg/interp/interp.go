package interp

import (
	"github.com/Robogera/kinematics/pkg/pose"
	"github.com/Robogera/kinematics/pkg/series"
	"golang.org/x/exp/constraints"
)

const DefaultMaxGap = 10

// FillGaps linearly interpolates every run of at most max_gap missing
// samples that has present samples on both sides. Longer runs and runs
// touching either end stay missing. The input is not modified.
func FillGaps[T constraints.Float](col []series.Optional[T], max_gap int) []series.Optional[T] {
	out := make([]series.Optional[T], len(col))
	copy(out, col)
	gaps(len(col), func(i int) bool { return col[i].Ok }, max_gap,
		func(start, end, j int, alpha T) {
			out[j] = series.Some(lerp(col[start].Value, col[end].Value, alpha))
		})
	return out
}

// FillKeypoints does the same for every landmark of a sequence of poses,
// x, y and confidence together. A keypoint is missing when it is absent
// or not confident. Poses are modified in place.
func FillKeypoints(poses []pose.Pose, max_gap int) {
	for _, l := range pose.All() {
		known := func(i int) bool {
			_, ok := poses[i].GetValid(l)
			return ok
		}
		gaps(len(poses), known, max_gap, func(start, end, j int, alpha float64) {
			from, _ := poses[start].Get(l)
			to, _ := poses[end].Get(l)
			poses[j].Set(l, pose.Keypoint{
				X:          lerp(from.X, to.X, alpha),
				Y:          lerp(from.Y, to.Y, alpha),
				Confidence: lerp(from.Confidence, to.Confidence, alpha),
			})
		})
	}
}

// gaps calls fill for every missing index j of every bounded gap of
// length 1..max_gap between known samples start and end, alpha being
// the fractional position of j in the gap
func gaps[T constraints.Float](n int, known func(i int) bool, max_gap int, fill func(start, end, j int, alpha T)) {
	prev := -1
	for i := range n {
		if !known(i) {
			continue
		}
		if gap := i - prev - 1; prev >= 0 && gap > 0 && gap <= max_gap {
			for k := 1; k <= gap; k++ {
				fill(prev, i, prev+k, T(k)/T(gap+1))
			}
		}
		prev = i
	}
}

func lerp[T constraints.Float](from, to, alpha T) T {
	return from + alpha*(to-from)
}
