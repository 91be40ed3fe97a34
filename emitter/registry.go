package emitter

import "sync"

// Registry is the supplemented, non-global replacement for
// original_source/src/emitter.c's process-wide `edpu_data_t.ed_edpus` linked
// list: an explicit bookkeeping object, owned by whoever composes the
// runtime, that tracks live Emitters so their owner can assert none remain
// at shutdown. Nothing in this package uses a Registry implicitly — an
// Emitter never registers itself; a caller (e.g. edpruntime.Runtime) opts in
// by calling Track/Untrack around an Emitter's lifetime.
type Registry struct {
	mu   sync.Mutex
	live map[*Emitter]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{live: make(map[*Emitter]struct{})}
}

// Track records e as live.
func (r *Registry) Track(e *Emitter) {
	r.mu.Lock()
	r.live[e] = struct{}{}
	r.mu.Unlock()
}

// Untrack removes e from the live set.
func (r *Registry) Untrack(e *Emitter) {
	r.mu.Lock()
	delete(r.live, e)
	r.mu.Unlock()
}

// Len returns the current count of tracked, still-live emitters.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}
