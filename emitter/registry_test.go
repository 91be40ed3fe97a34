package emitter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/konghan/edp.io/worker"
)

func TestRegistryTrackUntrack(t *testing.T) {
	pool := worker.NewPool(1, nil)
	defer pool.Fini()

	r := NewRegistry()
	a := New(pool, nil)
	b := New(pool, nil)

	r.Track(a)
	r.Track(b)
	assert.Equal(t, 2, r.Len())

	r.Untrack(a)
	assert.Equal(t, 1, r.Len())

	r.Untrack(b)
	assert.Equal(t, 0, r.Len())
}
