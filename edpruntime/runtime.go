// Package edpruntime is the composition root (spec §6 process surface:
// runtime_init/loop/fini): it owns one worker.Pool and one iomon.Monitor,
// hands out netio.Socket/Server instances wired to them, and tears
// everything down in reverse order of construction.
package edpruntime

import (
	"sync"

	"github.com/konghan/edp.io"
	"github.com/konghan/edp.io/emitter"
	"github.com/konghan/edp.io/iomon"
	"github.com/konghan/edp.io/netio"
	"github.com/konghan/edp.io/worker"
	"github.com/konghan/edp.io/xlog"
)

// Config is a plain struct rather than functional options (SPEC_FULL.md
// Configuration): Runtime's surface is small enough that a struct literal
// is the better fit, matching runtime_init(thread_count)'s simplicity.
type Config struct {
	// Workers is the worker pool size. Defaults to 1 if <= 0.
	Workers int
	// Pollers is the I/O monitor's poller-thread count. Defaults to 1 if <= 0.
	Pollers int
	// Logger is the ambient logger every owned component uses. Defaults to
	// a no-op logger.
	Logger xlog.Logger
	// OnOverload is kept in the Runtime's copy of the Config but is not
	// called by any component: a rejected dispatch or readiness post is
	// only logged (by netio) or returned to the poster.
	OnOverload func(error)
}

// Runtime composes the worker pool, I/O monitor, and an emitter.Registry
// used to assert no sockets leak across Fini (the supplemented feature
// described in SPEC_FULL.md, grounded on original_source/src/emitter.c's
// edpu_fini assert).
type Runtime struct {
	cfg      Config
	pool     *worker.Pool
	mon      *iomon.Monitor
	registry *emitter.Registry
	log      xlog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// Init starts the worker pool and the I/O monitor (spec "runtime_init").
// If the monitor fails to start, the pool is stopped before returning,
// honoring spec §7's "fatal conditions unwind already-initialized
// subsystems in reverse order."
func Init(cfg Config) (*Runtime, edp.Errno) {
	log := cfg.Logger
	if log == nil {
		log = xlog.NopLogger{}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	pollers := cfg.Pollers
	if pollers <= 0 {
		pollers = 1
	}

	pool := worker.NewPool(workers, log)
	mon, code := iomon.New(pollers, log)
	if code.Failed() {
		pool.Fini()
		return nil, code
	}

	return &Runtime{
		cfg:      cfg,
		pool:     pool,
		mon:      mon,
		registry: emitter.NewRegistry(),
		log:      log,
		done:     make(chan struct{}),
	}, edp.OK
}

// Pool returns the owned worker pool.
func (rt *Runtime) Pool() *worker.Pool { return rt.pool }

// Monitor returns the owned I/O monitor.
func (rt *Runtime) Monitor() *iomon.Monitor { return rt.mon }

// Registry returns the runtime's emitter leak-detection registry.
func (rt *Runtime) Registry() *emitter.Registry { return rt.registry }

// NewSocket creates a Socket wired to this runtime's pool and monitor, and
// tracks its emitter in the registry.
func (rt *Runtime) NewSocket(cbs netio.Callbacks, userData any) (*netio.Socket, edp.Errno) {
	sock, code := netio.Create(rt.pool, rt.mon, cbs, userData, rt.log)
	if code.Failed() {
		return nil, code
	}
	rt.registry.Track(sock.Emitter())
	return sock, edp.OK
}

// DestroySocket destroys sock and untracks it from the registry.
func (rt *Runtime) DestroySocket(sock *netio.Socket) edp.Errno {
	code := sock.Destroy()
	if !code.Failed() {
		rt.registry.Untrack(sock.Emitter())
	}
	return code
}

// NewServer creates a Server wired to this runtime's pool and monitor.
// connCbs are applied to every socket it accepts.
func (rt *Runtime) NewServer(connCbs netio.Callbacks, srvCbs netio.ServerCallbacks) (*netio.Server, edp.Errno) {
	return netio.CreateServer(rt.pool, rt.mon, connCbs, srvCbs, rt.log)
}

// Loop blocks the calling goroutine until Fini is called (spec
// "runtime_loop"): this runtime's subsystems already run on their own
// goroutines from Init, so there is no separate dispatch loop to drive —
// Loop exists to give a host application a natural blocking call.
func (rt *Runtime) Loop() {
	<-rt.done
}

// Fini stops the monitor and the worker pool, in that reverse-of-Init
// order, and unblocks any Loop call. It panics if emitters are still
// tracked in the registry: original_source's edpu_fini used an assert for
// this invariant, and this module follows the same "assert, don't guess"
// Design Notes convention used elsewhere (e.g. the Norm drain type-tag
// check in worker.Worker).
func (rt *Runtime) Fini() {
	rt.closeOnce.Do(func() {
		if n := rt.registry.Len(); n != 0 {
			panic("edpruntime: emitters still live at fini")
		}
		rt.mon.Fini()
		rt.pool.Fini()
		close(rt.done)
	})
}
