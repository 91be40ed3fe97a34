// Package worker implements the priority-scheduled worker pool (spec §4.2):
// a fixed set of OS threads, each owning five per-priority FIFO queues,
// draining them under the bounded Norm/High fairness rule.
package worker

import (
	"sync"
	"sync/atomic"

	"github.com/konghan/edp.io"
	"github.com/konghan/edp.io/xlog"
)

// Pool is the scheduler: a fixed set of workers, round-robin affinity
// assignment, and the two operations spec §4.2 exposes (dispatch, init/fini).
type Pool struct {
	workers []*Worker
	round   atomic.Uint64
	log     xlog.Logger

	wg sync.WaitGroup
}

// NewPool creates and starts n workers (spec "init(N)"). n must be >= 1.
func NewPool(n int, log xlog.Logger) *Pool {
	if log == nil {
		log = xlog.NopLogger{}
	}
	p := &Pool{log: log}
	p.workers = make([]*Worker, n)
	for i := range p.workers {
		p.workers[i] = newWorker(i, log)
	}
	p.wg.Add(n)
	for _, w := range p.workers {
		w := w
		go func() {
			defer p.wg.Done()
			w.Run()
		}()
	}
	return p
}

// NumWorkers returns the fixed worker count.
func (p *Pool) NumWorkers() int {
	return len(p.workers)
}

// Dispatch appends ev to the queue of its chosen worker, per spec §4.2:
// affinity is honored if set and valid, otherwise round-robin assignment
// picks a worker and latches the choice into ev.Affinity for subsequent
// reuse. Returns ErrOutOfRange if ev.Priority is not one of the five bands.
func (p *Pool) Dispatch(ev *edp.Event) edp.Errno {
	if !ev.Priority.Valid() {
		return edp.ErrOutOfRange
	}
	idx := ev.Affinity
	if idx < 0 || idx >= len(p.workers) {
		idx = int(p.round.Add(1)-1) % len(p.workers)
		ev.Affinity = idx
	}
	p.workers[idx].enqueue(ev)
	return edp.OK
}

// Fini requests cooperative shutdown of every worker and waits for all of
// them to finish their final drain pass (spec "fini()").
func (p *Pool) Fini() {
	for _, w := range p.workers {
		w.Stop()
	}
	for _, w := range p.workers {
		w.Wait()
	}
	p.wg.Wait()
}
