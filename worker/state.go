package worker

import "sync/atomic"

// LifecycleState is a worker's coarse lifecycle (spec §3: "a lifecycle
// state {Init, Running, Stopping, Stopped}").
type LifecycleState uint32

const (
	StateInit LifecycleState = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s LifecycleState) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free CAS state holder, grounded on the teacher's
// eventloop.FastState.
type fastState struct {
	v atomic.Uint32
}

func newFastState(initial LifecycleState) *fastState {
	s := &fastState{}
	s.v.Store(uint32(initial))
	return s
}

func (s *fastState) Load() LifecycleState {
	return LifecycleState(s.v.Load())
}

func (s *fastState) Store(v LifecycleState) {
	s.v.Store(uint32(v))
}

func (s *fastState) TryTransition(from, to LifecycleState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
