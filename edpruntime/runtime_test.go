package edpruntime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konghan/edp.io"
	"github.com/konghan/edp.io/netio"
)

func TestInitFiniLifecycle(t *testing.T) {
	rt, code := Init(Config{Workers: 2, Pollers: 1})
	require.Equal(t, edp.OK, code)

	loopDone := make(chan struct{})
	go func() {
		rt.Loop()
		close(loopDone)
	}()

	rt.Fini()

	select {
	case <-loopDone:
	case <-time.After(time.Second):
		t.Fatal("Loop did not return after Fini")
	}
}

func TestDefaultsAppliedForNonPositiveCounts(t *testing.T) {
	rt, code := Init(Config{})
	require.Equal(t, edp.OK, code)
	assert.Equal(t, 1, rt.Pool().NumWorkers())
	rt.Fini()
}

func TestNewSocketTracksAndUntracksRegistry(t *testing.T) {
	rt, code := Init(Config{Workers: 1, Pollers: 1})
	require.Equal(t, edp.OK, code)

	sock, code := rt.NewSocket(netio.Callbacks{}, nil)
	require.Equal(t, edp.OK, code)
	assert.Equal(t, 1, rt.Registry().Len())

	require.Equal(t, edp.OK, rt.DestroySocket(sock))
	assert.Equal(t, 0, rt.Registry().Len())

	rt.Fini()
}

func TestFiniPanicsOnLeakedEmitter(t *testing.T) {
	rt, code := Init(Config{Workers: 1, Pollers: 1})
	require.Equal(t, edp.OK, code)

	_, code = rt.NewSocket(netio.Callbacks{}, nil)
	require.Equal(t, edp.OK, code)

	assert.Panics(t, func() { rt.Fini() })
}
