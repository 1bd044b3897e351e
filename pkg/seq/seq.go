package seq

import (
	"cmp"
	"iter"
)

// Index and value of the first smallest element, ok is false
// for an empty sequence
func MinInd[I any, T cmp.Ordered](it iter.Seq2[I, T]) (ind I, value T, ok bool) {
	for i, v := range it {
		if !ok || v < value {
			ind, value, ok = i, v, true
		}
	}
	return
}
