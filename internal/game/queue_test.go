package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()

	_, ok := q.TryDequeue()
	assert.False(t, ok, "empty queue yields nothing")

	a := NewPlayer("a", 1000, nil)
	b := NewPlayer("b", 1100, nil)
	q.Enqueue(a)
	q.Enqueue(b)
	assert.Equal(t, 2, q.Len())

	first, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Same(t, a, first)

	second, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Same(t, b, second)

	_, ok = q.TryDequeue()
	assert.False(t, ok)
}
