// Package iomon is the readiness-based I/O monitor (spec §4.3): one or more
// poller threads, each owning a private epoll instance, translating kernel
// readiness into synchronous callback invocations that must only enqueue
// work (never block).
package iomon

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/konghan/edp.io"
	"github.com/konghan/edp.io/xlog"
)

// Callback is invoked synchronously on the owning poller's goroutine with
// the ready fd and a readiness bitmask. It must not block.
type Callback func(fd int, events IOEvents)

var (
	errFDOutOfRange      = errors.New("iomon: fd out of range")
	errAlreadyRegistered = errors.New("iomon: fd already registered")
	errNotFound          = errors.New("iomon: fd not registered")
)

// shardCount is HSET_LOCK_NUM from spec §5: the registration table is
// sharded across 16 independently-locked buckets.
const shardCount = 16

type registration struct {
	pollerIdx int
}

type shard struct {
	mu   sync.Mutex
	regs map[int]registration
}

// Monitor owns P poller threads and the shared, sharded fd→poller
// registration table (spec §3 "I/O event record (monitor)").
type Monitor struct {
	pollers []*epollPoller
	shards  [shardCount]shard
	round   atomic.Uint64
	log     xlog.Logger
	wg      sync.WaitGroup
	done    chan struct{}
}

func shardFor(fd int) int {
	return fd % shardCount
}

// New creates a Monitor with n poller threads running (spec "init(N)"),
// waiting up to 1s per poller on a startup barrier; failure unwinds
// previously started pollers in reverse order (spec §4.3/§7).
func New(n int, log xlog.Logger) (*Monitor, edp.Errno) {
	if log == nil {
		log = xlog.NopLogger{}
	}
	m := &Monitor{log: log, done: make(chan struct{})}
	for i := range m.shards {
		m.shards[i].regs = make(map[int]registration)
	}

	started := make([]*epollPoller, 0, n)
	for i := 0; i < n; i++ {
		p, err := newEpollPoller()
		if err != nil {
			for j := len(started) - 1; j >= 0; j-- {
				_ = started[j].close()
			}
			return nil, edp.ErrOutOfMemory
		}
		ready := make(chan struct{})
		m.wg.Add(1)
		go m.runPoller(p, ready)
		select {
		case <-ready:
		case <-time.After(time.Second):
			_ = p.close()
			for j := len(started) - 1; j >= 0; j-- {
				_ = started[j].close()
			}
			return nil, edp.TIMEOUT
		}
		started = append(started, p)
	}
	m.pollers = started
	return m, edp.OK
}

func (m *Monitor) runPoller(p *epollPoller, ready chan struct{}) {
	defer m.wg.Done()
	close(ready)
	for {
		select {
		case <-m.done:
			return
		default:
		}
		if err := p.poll(1000); err != nil {
			if m.log.Enabled(xlog.Warn) {
				m.log.Log(xlog.Entry{Level: xlog.Warn, Component: "iomon", Message: "poll error", Err: err})
			}
		}
		if p.closed.Load() {
			return
		}
	}
}

// Watch registers fd for the given events (spec §4.3): a poller is chosen
// by round-robin and owns the registration for its lifetime (no migration).
// Fails with ErrAlreadyRegistered if fd is already watched.
func (m *Monitor) Watch(fd int, events IOEvents, cb Callback) edp.Errno {
	if fd < 0 || fd >= maxFDs {
		return edp.ErrOutOfRange
	}
	s := &m.shards[shardFor(fd)]
	s.mu.Lock()
	if _, ok := s.regs[fd]; ok {
		s.mu.Unlock()
		return edp.ErrAlreadyRegistered
	}
	idx := int(m.round.Add(1)-1) % len(m.pollers)
	if err := m.pollers[idx].add(fd, events, cb); err != nil {
		s.mu.Unlock()
		return translate(err)
	}
	s.regs[fd] = registration{pollerIdx: idx}
	s.mu.Unlock()
	return edp.OK
}

// Modify changes the registered interest set for fd without migrating it to
// a different poller (spec §4.3's monitor owns the registration for its fd's
// whole lifetime). Fails with ErrNotFound if fd isn't registered.
func (m *Monitor) Modify(fd int, events IOEvents) edp.Errno {
	if fd < 0 || fd >= maxFDs {
		return edp.ErrOutOfRange
	}
	s := &m.shards[shardFor(fd)]
	s.mu.Lock()
	reg, ok := s.regs[fd]
	s.mu.Unlock()
	if !ok {
		return edp.ErrNotFound
	}
	if err := m.pollers[reg.pollerIdx].modify(fd, events); err != nil {
		return translate(err)
	}
	return edp.OK
}

// Unwatch removes interest in fd. Fails with ErrNotFound if not present.
func (m *Monitor) Unwatch(fd int) edp.Errno {
	if fd < 0 || fd >= maxFDs {
		return edp.ErrOutOfRange
	}
	s := &m.shards[shardFor(fd)]
	s.mu.Lock()
	reg, ok := s.regs[fd]
	if !ok {
		s.mu.Unlock()
		return edp.ErrNotFound
	}
	delete(s.regs, fd)
	s.mu.Unlock()
	if err := m.pollers[reg.pollerIdx].del(fd); err != nil {
		return translate(err)
	}
	return edp.OK
}

// Fini stops all poller threads and waits for them to exit (spec "fini()").
func (m *Monitor) Fini() {
	close(m.done)
	for _, p := range m.pollers {
		_ = p.close()
	}
	m.wg.Wait()
}

func translate(err error) edp.Errno {
	switch {
	case errors.Is(err, errFDOutOfRange):
		return edp.ErrOutOfRange
	case errors.Is(err, errAlreadyRegistered):
		return edp.ErrAlreadyRegistered
	case errors.Is(err, errNotFound):
		return edp.ErrNotFound
	default:
		return edp.ErrInvalid
	}
}
