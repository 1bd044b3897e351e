package gsma

import (
	"errors"
	"fmt"

	"github.com/Robogera/kinematics/pkg/gring"
	"golang.org/x/exp/constraints"
)

var (
	ERR_VALUE = errors.New("Bad value")
)

type Number interface {
	constraints.Float | constraints.Integer
}

// SMA is the simple moving average over the last window values
type SMA[T Number] struct {
	data    *gring.Ring[T]
	sum     float64
	average float64
}

func NewSMA[T Number](window uint) (*SMA[T], error) {
	if window < 3 {
		return nil, fmt.Errorf("Invalid window: %d. Error: %w", window, ERR_VALUE)
	}
	return &SMA[T]{
		data: gring.NewRing[T](int(window)),
	}, nil
}

func (s *SMA[T]) Recalc(new_value T) float64 {
	if oldest, evicted := s.data.Push(new_value); evicted {
		s.sum -= float64(oldest)
	}
	s.sum += float64(new_value)
	s.average = s.sum / float64(s.data.Size())
	return s.average
}

func (s *SMA[T]) Show() float64 {
	return s.average
}

func (s *SMA[T]) Len() int {
	return s.data.Size()
}
