package indexed

// Indexed is a value tagged with its position in a stream and the
// stream time it belongs to, in seconds
type Indexed[T any] struct {
	id        uint64
	timestamp float64
	value     T
}

func NewIndexed[T any](id uint64, timestamp float64, value T) Indexed[T] {
	return Indexed[T]{id, timestamp, value}
}

func (i Indexed[T]) Less(other Indexed[T]) bool { return i.id < other.id }
func (i Indexed[T]) Id() uint64                 { return i.id }
func (i Indexed[T]) Timestamp() float64         { return i.timestamp }
func (i Indexed[T]) Value() T                   { return i.value }
