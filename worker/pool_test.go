package worker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konghan/edp.io"
)

func mkEvent(p edp.Priority, run func()) *edp.Event {
	ev := &edp.Event{}
	ev.Init(0, p)
	ev.TypeHandler = func(_ edp.Target, e *edp.Event) edp.Errno {
		if run != nil {
			run()
		}
		return edp.OK
	}
	return ev
}

func TestDispatchOutOfRangePriority(t *testing.T) {
	p := NewPool(1, nil)
	defer p.Fini()
	ev := &edp.Event{}
	ev.Init(0, edp.Priority(99))
	assert.Equal(t, edp.ErrOutOfRange, p.Dispatch(ev))
}

func TestDispatchRoundRobinAffinity(t *testing.T) {
	p := NewPool(4, nil)
	defer p.Fini()
	var wg sync.WaitGroup
	wg.Add(1)
	ev := mkEvent(edp.PriorityNorm, wg.Done)
	require.Equal(t, -1, ev.Affinity)
	code := p.Dispatch(ev)
	require.Equal(t, edp.OK, code)
	assert.GreaterOrEqual(t, ev.Affinity, 0)
	wg.Wait()
}

func TestFIFOWithinBand(t *testing.T) {
	p := NewPool(1, nil)
	defer p.Fini()
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	const n = 200
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		ev := mkEvent(edp.PriorityNorm, func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
		require.Equal(t, edp.OK, p.Dispatch(ev))
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		assert.Equal(t, i, order[i])
	}
}

func TestPriorityPreemption(t *testing.T) {
	p := NewPool(1, nil)
	defer p.Fini()

	var normRun atomic.Int64
	var critDone atomic.Bool
	var normAtCritTime int64

	block := make(chan struct{})
	// First Norm event blocks so the remaining 999 Norm events and the Crit
	// event can all be enqueued while the worker is pinned mid-Norm-drain.
	first := mkEvent(edp.PriorityNorm, func() { <-block })
	require.Equal(t, edp.OK, p.Dispatch(first))

	const trailing = 999
	var wg sync.WaitGroup
	wg.Add(trailing)
	for i := 0; i < trailing; i++ {
		ev := mkEvent(edp.PriorityNorm, func() {
			normRun.Add(1)
			wg.Done()
		})
		require.Equal(t, edp.OK, p.Dispatch(ev))
	}

	crit := mkEvent(edp.PriorityCrit, func() {
		normAtCritTime = normRun.Load()
		critDone.Store(true)
	})
	require.Equal(t, edp.OK, p.Dispatch(crit))
	close(block)

	require.Eventually(t, func() bool { return critDone.Load() }, 2*time.Second, time.Millisecond)
	wg.Wait()
	assert.LessOrEqual(t, normAtCritTime, int64(5))
}
