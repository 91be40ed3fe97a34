package edp

import "sync/atomic"

// MaxTypes is the number of event-type slots an Emitter indexes (spec §3,
// design value 8).
const MaxTypes = 8

// HighNormRatio bounds Norm-over-High starvation in the worker drain loop
// (spec §4.2, design constant 5).
const HighNormRatio = 5

// Priority is one of the five scheduling bands a worker drains, in
// descending urgency.
type Priority int

const (
	PriorityCrit Priority = iota
	PriorityEmrg
	PriorityHigh
	PriorityNorm
	PriorityIdle

	numPriorities = int(PriorityIdle) + 1
)

func (p Priority) String() string {
	switch p {
	case PriorityCrit:
		return "Crit"
	case PriorityEmrg:
		return "Emrg"
	case PriorityHigh:
		return "High"
	case PriorityNorm:
		return "Norm"
	case PriorityIdle:
		return "Idle"
	default:
		return "Unknown"
	}
}

// Valid reports whether p is one of the five defined bands.
func (p Priority) Valid() bool {
	return p >= PriorityCrit && p <= PriorityIdle
}

// Target is the opaque dispatch target an Event carries (spec §3: "opaque
// reference to an emitter"). It is deliberately an empty interface: the
// scheduler never inspects it and only passes it through to TypeHandler;
// the emitter's own TypeHandler ignores it and uses its bound receiver.
type Target interface{}

// TypeHandler runs on the worker goroutine that dequeues the event. It
// returns the result code passed to Completion.
type TypeHandler func(target Target, ev *Event) Errno

// Completion is invoked exactly once, after TypeHandler returns (or, for an
// event posted through an emitter, synchronously with the scheduler's error
// code if dispatch was rejected). Emitter.Post's own synchronous rejections
// (ErrOutOfRange for the type, ErrNoHandler) return before Completion is
// bound and never invoke it.
type Completion func(ev *Event, code Errno)

// Event is the priority-tagged unit of work carried by the scheduler (spec
// §3/§4.1). Once posted, only the owning worker mutates its queue link;
// everything else is immutable after dispatch (Emitter.Post and
// Pool.Dispatch fill in Target, TypeHandler, Completion, UserData and
// Affinity between Init and dispatch).
type Event struct {
	Type     int
	Priority Priority

	// Affinity is the worker index this event is pinned to, or -1 to let the
	// scheduler assign one (and latch its choice here for reuse, per
	// spec §4.2's dispatch rule).
	Affinity int

	Target      Target
	TypeHandler TypeHandler
	Completion  Completion
	UserData    any

	done atomic.Bool
}

// Init prepares ev for dispatch. Mirrors edp_event_init: affinity starts
// unassigned (-1).
func (ev *Event) Init(typ int, priority Priority) {
	ev.Type = typ
	ev.Priority = priority
	ev.Affinity = -1
	ev.done.Store(false)
}

// Done invokes ev's completion exactly once with the given result code. The
// framework calls this after TypeHandler returns; a handler must not call it
// directly (spec §4.1).
func (ev *Event) Done(code Errno) {
	if !ev.done.CompareAndSwap(false, true) {
		panic("edp: event completed more than once")
	}
	if ev.Completion != nil {
		ev.Completion(ev, code)
	}
}
