package indexed

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndexed(t *testing.T) {
	a := NewIndexed(3, 0.1, "c")
	b := NewIndexed(1, 0.5, "a")
	assert.True(t, b.Less(a))
	assert.False(t, a.Less(b))
	assert.Equal(t, uint64(3), a.Id())
	assert.Equal(t, 0.1, a.Timestamp())
	assert.Equal(t, "c", a.Value())

	s := []Indexed[string]{a, b, NewIndexed(2, 0, "b")}
	slices.SortFunc(s, func(x, y Indexed[string]) int {
		if x.Less(y) {
			return -1
		}
		return 1
	})
	assert.Equal(t, []string{"a", "b", "c"}, []string{s[0].Value(), s[1].Value(), s[2].Value()})
}
