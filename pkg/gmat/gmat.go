package gmat

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"text/tabwriter"
)

type Direction bool

const (
	Vertical   Direction = true
	Horizontal Direction = false
)

// Matrix with the ability to quickly
// delete (mask) rows or columns
type Mat[T any] struct {
	s                        []T
	masked_rows, masked_cols []bool
	stride                   int
}

// Vector backed by the data of the
// underlying matrix
type Vector[T any] struct {
	Mat[T]
	index     int
	direction Direction
}

// Returns a new matrix with pre-allocated
// backing slice
func NewMat[T any](r, c int) *Mat[T] {
	return &Mat[T]{
		s:           make([]T, r*c),
		masked_rows: make([]bool, r),
		masked_cols: make([]bool, c),
		stride:      c,
	}
}

func (m Mat[T]) Dims() (int, int) {
	return len(m.masked_rows), len(m.masked_cols)
}

func (m Mat[T]) At(r, c int) T {
	return m.s[m.stride*r+c]
}

// Set the value of element (r, c) in matrix m
func (m *Mat[T]) Set(r, c int, v T) error {
	if r < 0 || c < 0 || r >= len(m.masked_rows) || c >= len(m.masked_cols) {
		return fmt.Errorf("Out of bounds: (%d, %d) in %dx%d", r, c, len(m.masked_rows), len(m.masked_cols))
	}
	m.s[m.stride*r+c] = v
	return nil
}

// Iterator over the unmasked rows (Horizontal) or
// columns (Vertical) of the reciever as vectors
func (m Mat[T]) Vectors(direction Direction) iter.Seq2[int, Vector[T]] {
	return func(yield func(int, Vector[T]) bool) {
		iterate_over := m.masked_rows
		if direction == Vertical {
			iterate_over = m.masked_cols
		}
		for ind, masked := range iterate_over {
			if masked {
				continue
			}
			if !yield(ind, Vector[T]{
				Mat: m, index: ind,
				direction: direction,
			}) {
				return
			}
		}
	}
}

// Row (Horizontal) or column (Vertical) at index, masked or not
func (m Mat[T]) Vec(direction Direction, index int) Vector[T] {
	return Vector[T]{Mat: m, index: index, direction: direction}
}

// Returns element of the receiver
// at index
func (v Vector[T]) At(index int) T {
	if v.direction {
		return v.Mat.s[v.Mat.stride*index+v.index]
	}
	return v.Mat.s[v.Mat.stride*v.index+index]
}

// Iterate over the unmasked values of vector
func (v Vector[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		iterate_over := v.Mat.masked_cols
		if v.direction {
			iterate_over = v.Mat.masked_rows
		}
		for ind, masked := range iterate_over {
			if masked {
				continue
			}
			if !yield(ind, v.At(ind)) {
				return
			}
		}
	}
}

// Mask selected rows (Horizontal) or columns (Vertical).
// The returned matrix shares data with the receiver.
func (m Mat[T]) Mask(direction Direction, indices ...int) *Mat[T] {
	new_mat := &Mat[T]{
		s:           m.s,
		masked_rows: slices.Clone(m.masked_rows),
		masked_cols: slices.Clone(m.masked_cols),
		stride:      m.stride,
	}
	for _, ind := range indices {
		if direction == Vertical {
			new_mat.masked_cols[ind] = true
		} else {
			new_mat.masked_rows[ind] = true
		}
	}
	return new_mat
}

// Returns an n x n copy of the receiver, n being the larger dimension,
// with the new cells set to fill. Masks are dropped.
func (m Mat[T]) Square(fill T) *Mat[T] {
	r, c := m.Dims()
	n := max(r, c)
	sq := NewMat[T](n, n)
	for ind_r := range n {
		for ind_c := range n {
			if ind_r < r && ind_c < c {
				sq.Set(ind_r, ind_c, m.At(ind_r, ind_c))
			} else {
				sq.Set(ind_r, ind_c, fill)
			}
		}
	}
	return sq
}

// Unmasked elements as a slice of rows
func (m Mat[T]) To2d() [][]T {
	ret := make([][]T, 0, len(m.masked_rows))
	for _, vec := range m.Vectors(Horizontal) {
		row := make([]T, 0, len(m.masked_cols))
		for _, value := range vec.All() {
			row = append(row, value)
		}
		ret = append(ret, row)
	}
	return ret
}

// Pretty print
func (m Mat[T]) Sprintf(format string) string {
	b := new(strings.Builder)
	t := tabwriter.NewWriter(b, 3, 1, 1, ' ', 0)
	for _, vec := range m.Vectors(Horizontal) {
		for _, value := range vec.All() {
			fmt.Fprintf(t, format, value)
			fmt.Fprint(t, "\t")
		}
		fmt.Fprint(t, "\n")
	}
	t.Flush()
	return b.String()
}

func (m Mat[T]) String() string {
	return m.Sprintf("%v")
}
