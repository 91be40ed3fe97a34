// Package emitter implements the per-object event demultiplexer (spec
// §4.4): a fixed handler-slot table indexed by event type, posting events to
// the worker pool and completing them with an error code.
package emitter

import (
	"sync"
	"sync/atomic"

	"github.com/konghan/edp.io"
	"github.com/konghan/edp.io/worker"
)

// Handler is a per-type handler, invoked with the owning Emitter and the
// event being dispatched.
type Handler func(e *Emitter, ev *edp.Event) edp.Errno

// Emitter binds up to edp.MaxTypes handler slots on behalf of an owner
// (e.g. a netio.Socket), grounded directly on original_source/src/emitter.c
// (edpu_t): a nil slot is the "reject" default, matching edpu_default_watch.
type Emitter struct {
	pool *worker.Pool

	mu       sync.Mutex
	handlers [edp.MaxTypes]Handler
	userData any

	pending atomic.Int64
}

// New creates an Emitter posting through pool, with the given initial
// opaque user data. All handler slots start at the NoHandler default.
func New(pool *worker.Pool, userData any) *Emitter {
	return &Emitter{pool: pool, userData: userData}
}

// SetHandler installs fn for typ. Fails with ErrOutOfRange if typ is not in
// [0, MaxTypes).
func (e *Emitter) SetHandler(typ int, fn Handler) edp.Errno {
	if typ < 0 || typ >= edp.MaxTypes {
		return edp.ErrOutOfRange
	}
	e.mu.Lock()
	e.handlers[typ] = fn
	e.mu.Unlock()
	return edp.OK
}

// ClearHandler restores typ's slot to the NoHandler default.
func (e *Emitter) ClearHandler(typ int) edp.Errno {
	return e.SetHandler(typ, nil)
}

// GetUserData returns the emitter's opaque user data.
func (e *Emitter) GetUserData() any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userData
}

// SetUserData swaps in v and returns the previous value, under the emitter
// lock (spec §4.4).
func (e *Emitter) SetUserData(v any) any {
	e.mu.Lock()
	old := e.userData
	e.userData = v
	e.mu.Unlock()
	return old
}

// Pending returns the count of events posted via this emitter and not yet
// completed.
func (e *Emitter) Pending() int64 {
	return e.pending.Load()
}

// Post binds completion/userData onto ev, targets it at e, and dispatches it
// to the worker pool (spec §4.4). ev must already carry Type/Priority from
// Event.Init. Fails synchronously with ErrOutOfRange if ev.Type is out of
// range, or ErrNoHandler if no handler is currently installed for it —
// before anything is dispatched.
func (e *Emitter) Post(ev *edp.Event, completion edp.Completion, userData any) edp.Errno {
	if ev.Type < 0 || ev.Type >= edp.MaxTypes {
		return edp.ErrOutOfRange
	}
	e.mu.Lock()
	h := e.handlers[ev.Type]
	e.mu.Unlock()
	if h == nil {
		return edp.ErrNoHandler
	}

	ev.Target = e
	ev.Completion = completion
	ev.UserData = userData
	ev.TypeHandler = e.frameworkHandler

	e.pending.Add(1)
	if code := e.pool.Dispatch(ev); code.Failed() {
		e.pending.Add(-1)
		ev.Done(code)
		return code
	}
	return edp.OK
}

// frameworkHandler is the handler the scheduler actually invokes: it reads
// handlers[ev.Type] once (the slot as it stands at execution time, which
// may differ from the slot at Post time — spec §4.4: "the currently
// executing handler is the one loaded at event dispatch time"), calls it,
// decrements pending, and lets the worker complete the event with the
// returned code.
func (e *Emitter) frameworkHandler(_ edp.Target, ev *edp.Event) edp.Errno {
	e.mu.Lock()
	h := e.handlers[ev.Type]
	e.mu.Unlock()
	defer e.pending.Add(-1)
	if h == nil {
		return edp.ErrNoHandler
	}
	return h(e, ev)
}

// Destroy rejects while events posted via e are still pending (spec §4.4/§8
// invariant: "cannot be destroyed while pending > 0").
func (e *Emitter) Destroy() edp.Errno {
	if e.pending.Load() != 0 {
		return edp.ErrInvalid
	}
	return edp.OK
}
