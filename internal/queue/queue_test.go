package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOOrder(t *testing.T) {
	q := New[int]()
	for i := 0; i < 500; i++ {
		q.Push(i)
	}
	require.Equal(t, 500, q.Len())
	for i := 0; i < 500; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := q.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestFIFOAcrossChunkBoundary(t *testing.T) {
	q := New[int]()
	for i := 0; i < chunkSize+5; i++ {
		q.Push(i)
	}
	for i := 0; i < 10; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	for i := 0; i < 50; i++ {
		q.Push(1000 + i)
	}
	assert.Equal(t, chunkSize+5-10+50, q.Len())
}

func TestFIFOEmptyReuse(t *testing.T) {
	q := New[string]()
	q.Push("a")
	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", v)
	_, ok = q.Pop()
	assert.False(t, ok)
	q.Push("b")
	v, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", v)
}
