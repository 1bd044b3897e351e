package assoc

import (
	"math"

	"github.com/Robogera/kinematics/pkg/gmat"
	"github.com/Robogera/kinematics/pkg/seq"
	hung "github.com/arthurkushman/go-hungarian"
)

type Point struct{ X, Y float64 }

// Row of the track and column of the detection in the distance matrix
type Assoc struct {
	Track, Det int
	Dist       float64
}

// Solver assigns detections (columns) to tracks (rows). Only pairs
// closer than threshold may be associated, each row and each column
// at most once.
type Solver func(dist *gmat.Mat[float64], threshold float64) []Assoc

// Euclidean distances between every track (row) and detection (column)
func DistanceMatrix(tracks, detections []Point) *gmat.Mat[float64] {
	m := gmat.NewMat[float64](len(tracks), len(detections))
	for r, tp := range tracks {
		for c, dp := range detections {
			m.Set(r, c, math.Hypot(tp.X-dp.X, tp.Y-dp.Y))
		}
	}
	return m
}

// Greedy walks the tracks in row order and gives each one the closest
// detection not claimed yet. Ties go to the lower column.
func Greedy(dist *gmat.Mat[float64], threshold float64) []Assoc {
	var assocs []Assoc
	rows, _ := dist.Dims()
	remaining := dist.Mask(gmat.Vertical)
	for ind_r := range rows {
		ind_c, d, ok := seq.MinInd(remaining.Vec(gmat.Horizontal, ind_r).All())
		if !ok || d >= threshold {
			continue
		}
		assocs = append(assocs, Assoc{Track: ind_r, Det: ind_c, Dist: d})
		remaining = remaining.Mask(gmat.Vertical, ind_c)
	}
	return assocs
}

// Hungarian finds the assignment with the smallest total distance and
// then drops pairs that are not closer than threshold. Falls back to
// Greedy when the solver returns no complete one-to-one assignment.
func Hungarian(dist *gmat.Mat[float64], threshold float64) []Assoc {
	rows, cols := dist.Dims()
	if rows == 0 || cols == 0 {
		return nil
	}
	// scores are positive for real pairs, padding cells score zero
	var fill float64 = threshold
	for _, vec := range dist.Vectors(gmat.Horizontal) {
		for _, v := range vec.All() {
			fill = max(fill, v)
		}
	}
	fill = fill*2 + 1
	scores := dist.Square(fill)
	n, _ := scores.Dims()
	for ind_r := range n {
		for ind_c := range n {
			scores.Set(ind_r, ind_c, fill-scores.At(ind_r, ind_c))
		}
	}
	solution := hung.SolveMax(scores.To2d())

	cols_of, ok := permutation(solution, n)
	if !ok {
		return Greedy(dist, threshold)
	}
	var assocs []Assoc
	for ind_r := range rows {
		ind_c := cols_of[ind_r]
		if ind_c >= cols {
			continue
		}
		if d := dist.At(ind_r, ind_c); d < threshold {
			assocs = append(assocs, Assoc{Track: ind_r, Det: ind_c, Dist: d})
		}
	}
	return assocs
}

// permutation flattens the solver output into the column of every row
// and reports whether it is a valid n x n assignment
func permutation(solution map[int]map[int]float64, n int) ([]int, bool) {
	cols_of := make([]int, n)
	taken := make([]bool, n)
	for ind_r := range n {
		if len(solution[ind_r]) != 1 {
			return nil, false
		}
		for ind_c := range solution[ind_r] {
			if ind_c < 0 || ind_c >= n || taken[ind_c] {
				return nil, false
			}
			taken[ind_c] = true
			cols_of[ind_r] = ind_c
		}
	}
	return cols_of, true
}
