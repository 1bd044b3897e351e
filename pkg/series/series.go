package series

import (
	"iter"
)

// Optional is one sample of a time series that may be missing
type Optional[T any] struct {
	Value T
	Ok    bool
}

func Some[T any](v T) Optional[T] { return Optional[T]{Value: v, Ok: true} }
func None[T any]() Optional[T]    { return Optional[T]{} }

// Ptr is nil for missing samples
func (o Optional[T]) Ptr() *T {
	if !o.Ok {
		return nil
	}
	v := o.Value
	return &v
}

func FromPtr[T any](p *T) Optional[T] {
	if p == nil {
		return None[T]()
	}
	return Some(*p)
}

// Column extracts one quantity from every record
func Column[R, T any](records []R, get func(r *R) Optional[T]) []Optional[T] {
	col := make([]Optional[T], len(records))
	for i := range records {
		col[i] = get(&records[i])
	}
	return col
}

// Store writes the present samples of col back into the records positionally.
// Missing samples leave the record untouched.
func Store[R, T any](records []R, col []Optional[T], set func(r *R, v T)) {
	for i := range min(len(records), len(col)) {
		if col[i].Ok {
			set(&records[i], col[i].Value)
		}
	}
}

// Runs iterates over the maximal stretches of present samples as
// half-open [start, end) index pairs
func Runs[T any](col []Optional[T]) iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		start := -1
		for i, s := range col {
			switch {
			case s.Ok && start < 0:
				start = i
			case !s.Ok && start >= 0:
				if !yield(start, i) {
					return
				}
				start = -1
			}
		}
		if start >= 0 {
			yield(start, len(col))
		}
	}
}

// Map replaces every run of present samples by f applied to its values.
// f must return as many values as it was given.
func Map[T any](col []Optional[T], f func([]T) []T) []Optional[T] {
	out := make([]Optional[T], len(col))
	copy(out, col)
	for start, end := range Runs(col) {
		values := make([]T, 0, end-start)
		for _, s := range col[start:end] {
			values = append(values, s.Value)
		}
		mapped := f(values)
		if len(mapped) != len(values) {
			continue
		}
		for i, v := range mapped {
			out[start+i] = Some(v)
		}
	}
	return out
}

// Group splits items by key keeping their order. Keys are returned in
// order of first appearance, each with the positions of its items.
func Group[K comparable, S any](items []S, key func(s S) K) ([]K, map[K][]int) {
	keys := make([]K, 0)
	positions := make(map[K][]int)
	for i, s := range items {
		k := key(s)
		if _, seen := positions[k]; !seen {
			keys = append(keys, k)
		}
		positions[k] = append(positions[k], i)
	}
	return keys, positions
}
