package worker

import (
	"sync"
	"sync/atomic"

	"github.com/konghan/edp.io"
	"github.com/konghan/edp.io/internal/queue"
	"github.com/konghan/edp.io/xlog"
)

// band is one of the five per-worker priority queues, each with its own
// lock (spec §3/§5: "each queue has its own lock; the worker acquires one
// at a time").
type band struct {
	mu      sync.Mutex
	q       *queue.FIFO[*edp.Event]
	pending atomic.Int64
}

func newBand() *band {
	return &band{q: queue.New[*edp.Event]()}
}

func (b *band) push(ev *edp.Event) {
	b.mu.Lock()
	b.q.Push(ev)
	b.mu.Unlock()
	b.pending.Add(1)
}

// pop removes and returns the head event, re-validating its priority tag
// (spec §9 Open Question: a mismatch indicates concurrent tampering and is
// a logic error).
func (b *band) pop(want edp.Priority) (*edp.Event, bool) {
	b.mu.Lock()
	ev, ok := b.q.Pop()
	b.mu.Unlock()
	if !ok {
		return nil, false
	}
	b.pending.Add(-1)
	if ev.Priority != want {
		panic("worker: dequeued event with mismatched priority band")
	}
	return ev, true
}

func (b *band) len() int64 {
	return b.pending.Load()
}

// Worker is a single OS-thread-backed drain loop: five priority bands,
// woken on any enqueue, implementing the fairness rules of spec §4.2.
type Worker struct {
	idx   int
	log   xlog.Logger
	state *fastState

	bands [5]*band

	wakeMu   sync.Mutex
	wakeCond *sync.Cond
	woken    bool

	stopped chan struct{}
}

// newWorker constructs a Worker in StateInit. Callers (Pool) start its
// goroutine with Run.
func newWorker(idx int, log xlog.Logger) *Worker {
	w := &Worker{
		idx:     idx,
		log:     log,
		state:   newFastState(StateInit),
		stopped: make(chan struct{}),
	}
	for i := range w.bands {
		w.bands[i] = newBand()
	}
	w.wakeCond = sync.NewCond(&w.wakeMu)
	return w
}

func (w *Worker) bandFor(p edp.Priority) *band {
	return w.bands[int(p)]
}

// enqueue appends ev to its priority's band and wakes the worker. It is the
// only mutation worker-external code performs on the worker.
func (w *Worker) enqueue(ev *edp.Event) {
	w.bandFor(ev.Priority).push(ev)
	w.wakeMu.Lock()
	w.woken = true
	w.wakeCond.Signal()
	w.wakeMu.Unlock()
}

func (w *Worker) anyPending() bool {
	for _, b := range w.bands {
		if b.len() > 0 {
			return true
		}
	}
	return false
}

// Run is the worker's drain loop; it blocks until Stop is called and the
// final pass completes. Intended to run on its own goroutine.
func (w *Worker) Run() {
	w.state.TryTransition(StateInit, StateRunning)
	defer close(w.stopped)
	for {
		w.wakeMu.Lock()
		for !w.woken && w.state.Load() == StateRunning {
			w.wakeCond.Wait()
		}
		w.woken = false
		stopping := w.state.Load() != StateRunning
		w.wakeMu.Unlock()

		w.runCycle()

		if stopping {
			// One final pass in priority order to flush anything enqueued
			// between the stop request and this point (spec §4.2).
			w.runCycle()
			return
		}
	}
}

// Stop requests cooperative shutdown: the drain loop performs one final
// pass through all five bands, then exits (spec §4.2/§5).
func (w *Worker) Stop() {
	w.state.Store(StateStopping)
	w.wakeMu.Lock()
	w.woken = true
	w.wakeCond.Broadcast()
	w.wakeMu.Unlock()
}

// Wait blocks until the worker's goroutine has returned.
func (w *Worker) Wait() {
	<-w.stopped
}

func (w *Worker) run(ev *edp.Event) {
	code := w.safeRun(ev)
	ev.Done(code)
}

// safeRun executes TypeHandler, converting a panic into an error completion
// rather than taking the worker thread down, mirroring the teacher's
// safeExecute/safeExecuteFn panic-recovery convention.
func (w *Worker) safeRun(ev *edp.Event) (code edp.Errno) {
	defer func() {
		if r := recover(); r != nil {
			if w.log != nil {
				w.log.Log(xlog.Entry{Level: xlog.Error, Component: "worker", WorkerID: w.idx,
					Message: "handler panic", Err: nil, Fields: map[string]any{"recover": r}})
			}
			code = edp.ErrInvalid
		}
	}()
	if ev.TypeHandler == nil {
		return edp.ErrNoHandler
	}
	return ev.TypeHandler(ev.Target, ev)
}

// runCycle drains all five bands once, honoring the preemption and
// Norm/High inversion-budget rules of spec §4.2. It is the Go-idiomatic
// restatement of the original's goto-based band loop: each drain* helper
// reports whether a higher band must be revisited before its own band is
// considered finished.
func (w *Worker) runCycle() {
	for {
		w.drainCrit()
		if w.drainEmrg() {
			continue
		}
		ratio, restart := w.drainHigh()
		if restart {
			continue
		}
		if w.drainNorm(ratio) {
			continue
		}
		if w.drainIdle() {
			continue
		}
		return
	}
}

// drainCrit runs the full Crit queue; no interruption is possible since
// nothing outranks it.
func (w *Worker) drainCrit() {
	for {
		ev, ok := w.bandFor(edp.PriorityCrit).pop(edp.PriorityCrit)
		if !ok {
			return
		}
		w.run(ev)
	}
}

// drainEmrg runs the Emrg queue; if Crit gains work mid-drain, it reports
// true so the caller restarts the cycle from Crit.
func (w *Worker) drainEmrg() (restart bool) {
	for {
		ev, ok := w.bandFor(edp.PriorityEmrg).pop(edp.PriorityEmrg)
		if !ok {
			return false
		}
		w.run(ev)
		if w.bandFor(edp.PriorityCrit).len() > 0 {
			return true
		}
	}
}

// drainHigh runs the High queue, counting events processed into ratio
// (spec's HIGH_NORM_RATIO budget input). Restarts on Crit or Emrg refill.
func (w *Worker) drainHigh() (ratio int, restart bool) {
	for {
		ev, ok := w.bandFor(edp.PriorityHigh).pop(edp.PriorityHigh)
		if !ok {
			return ratio, false
		}
		w.run(ev)
		ratio++
		if w.bandFor(edp.PriorityCrit).len() > 0 || w.bandFor(edp.PriorityEmrg).len() > 0 {
			return ratio, true
		}
	}
}

// drainNorm runs the Norm queue. It always yields on Crit/Emrg refill, and
// yields back to High once either High had no work last visit (ratio==0) or
// the bounded number of Norm events (ratio/HighNormRatio) has been reached
// since the last High visit (spec §4.2 rule 4).
func (w *Worker) drainNorm(ratio int) (restart bool) {
	normRun := 0
	budget := ratio / edp.HighNormRatio
	for {
		ev, ok := w.bandFor(edp.PriorityNorm).pop(edp.PriorityNorm)
		if !ok {
			return false
		}
		w.run(ev)
		normRun++
		if w.bandFor(edp.PriorityCrit).len() > 0 || w.bandFor(edp.PriorityEmrg).len() > 0 {
			return true
		}
		if w.bandFor(edp.PriorityHigh).len() > 0 && (ratio == 0 || normRun >= budget) {
			return true
		}
	}
}

// drainIdle runs the Idle queue, yielding as soon as any other band gains
// work.
func (w *Worker) drainIdle() (restart bool) {
	for {
		ev, ok := w.bandFor(edp.PriorityIdle).pop(edp.PriorityIdle)
		if !ok {
			return false
		}
		w.run(ev)
		if w.bandFor(edp.PriorityCrit).len() > 0 || w.bandFor(edp.PriorityEmrg).len() > 0 ||
			w.bandFor(edp.PriorityHigh).len() > 0 || w.bandFor(edp.PriorityNorm).len() > 0 {
			return true
		}
	}
}
