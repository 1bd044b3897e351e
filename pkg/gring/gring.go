package gring

import (
	"iter"
)

// Ring keeps the last Cap pushed values
type Ring[T any] struct {
	l   int
	s   []T
	pos int
}

func NewRing[T any](l int) *Ring[T] {
	return &Ring[T]{
		l:   0,
		s:   make([]T, max(1, l)),
		pos: 0,
	}
}

func (r *Ring[T]) Size() int  { return r.l }
func (r *Ring[T]) Cap() int   { return len(r.s) }
func (r *Ring[T]) Full() bool { return r.l == len(r.s) }

// Push stores e and returns the value it evicted, if any
func (r *Ring[T]) Push(e T) (evicted T, ok bool) {
	if r.Full() {
		evicted, ok = r.s[r.pos], true
	}
	r.s[r.pos] = e
	r.pos++
	if r.pos >= len(r.s) {
		r.pos = 0
	}
	if r.l < len(r.s) {
		r.l++
	}
	return evicted, ok
}

func (r *Ring[T]) Newest() (T, bool) {
	var zero T
	if r.l == 0 {
		return zero, false
	}
	return r.s[(r.pos-1+len(r.s))%len(r.s)], true
}

// All iterates from the newest value to the oldest
func (r *Ring[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := range r.l {
			real_pos := (r.pos - 1 - i + len(r.s)) % len(r.s)
			if !yield(r.s[real_pos]) {
				return
			}
		}
	}
}

func (r *Ring[T]) Reset() {
	clear(r.s)
	r.l = 0
	r.pos = 0
}
