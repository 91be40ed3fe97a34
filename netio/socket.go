package netio

import (
	"errors"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/konghan/edp.io"
	"github.com/konghan/edp.io/emitter"
	"github.com/konghan/edp.io/internal/queue"
	"github.com/konghan/edp.io/iomon"
	"github.com/konghan/edp.io/netaddr"
	"github.com/konghan/edp.io/worker"
	"github.com/konghan/edp.io/xlog"
)

// sockFlag is the status bitset from spec §4.5/§5: "the state bit and its
// companion fields (write_current, backlog) are always mutated together,
// under the socket's own lock."
type sockFlag uint8

const (
	flagInit sockFlag = 1 << iota
	flagMonitored
	flagConnected
	flagWriteInFlight
	flagReadReady
)

// Event-type slots on a socket's private Emitter (spec §4.4's MaxTypes
// table, specialized here to the four readiness kinds a socket cares
// about).
const (
	evEpollOut = iota
	evEpollIn
	evEpollErr
	evEpollHup
)

// Callbacks are the user-level hooks a Socket drives (spec §4.5): at most
// one of each fires per readiness translation, on the worker goroutine that
// drained the corresponding event.
type Callbacks struct {
	OnConnect   func(s *Socket)
	OnDataReady func(s *Socket)
	OnDrain     func(s *Socket)
	OnError     func(s *Socket, code edp.Errno)
	OnClose     func(s *Socket)
}

// Socket is the non-blocking TCP socket state machine (spec §4.5): a single
// in-flight write, a FIFO backlog for the rest, and edge-triggered
// ReadReady semantics fed by the I/O monitor.
type Socket struct {
	fd  int
	cbs Callbacks
	mon *iomon.Monitor
	log xlog.Logger
	em  *emitter.Emitter

	mu           sync.Mutex
	status       sockFlag
	writeCurrent *IOCtx
	backlog      *queue.FIFO[*IOCtx]
	wantWrite    bool
}

// Create opens a fresh non-blocking TCP socket, unconnected (spec §4.5
// "init"). Use Connect to reach a peer.
func Create(pool *worker.Pool, mon *iomon.Monitor, cbs Callbacks, userData any, log xlog.Logger) (*Socket, edp.Errno) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, translateErrno(err)
	}
	return newSocket(fd, pool, mon, cbs, userData, log, false), edp.OK
}

func newSocket(fd int, pool *worker.Pool, mon *iomon.Monitor, cbs Callbacks, userData any, log xlog.Logger, connected bool) *Socket {
	if log == nil {
		log = xlog.NopLogger{}
	}
	s := &Socket{
		fd:      fd,
		cbs:     cbs,
		mon:     mon,
		log:     log,
		backlog: queue.New[*IOCtx](),
		status:  flagInit,
	}
	if connected {
		s.status |= flagConnected
	}
	s.em = emitter.New(pool, userData)
	_ = s.em.SetHandler(evEpollOut, s.onEpollOut)
	_ = s.em.SetHandler(evEpollIn, s.onEpollIn)
	_ = s.em.SetHandler(evEpollErr, s.onEpollErr)
	_ = s.em.SetHandler(evEpollHup, s.onEpollHup)
	return s
}

// FD returns the underlying file descriptor.
func (s *Socket) FD() int { return s.fd }

// Emitter returns the socket's private event demultiplexer. Runtimes that
// keep an emitter.Registry (spec's supplemented leak-detection feature) use
// this to track/untrack a socket across its lifetime.
func (s *Socket) Emitter() *emitter.Emitter { return s.em }

// UserData returns the socket's opaque user data.
func (s *Socket) UserData() any { return s.em.GetUserData() }

// SetUserData swaps in v and returns the previous value.
func (s *Socket) SetUserData(v any) any { return s.em.SetUserData(v) }

// Connect starts a non-blocking connect to addr and registers the socket
// with the monitor for both readiness directions (spec §4.5: connect
// completion is observed via EpollOut).
func (s *Socket) Connect(addr netaddr.Addr) edp.Errno {
	ip, port, code := addr.ToSockaddrIn4()
	if code.Failed() {
		return code
	}
	sa := &unix.SockaddrInet4{Port: port, Addr: ip}
	if err := unix.Connect(s.fd, sa); err != nil && !errors.Is(err, unix.EINPROGRESS) {
		return translateErrno(err)
	}
	return s.ensureMonitored(iomon.Readable | iomon.Writable)
}

func (s *Socket) ensureMonitored(events iomon.IOEvents) edp.Errno {
	s.mu.Lock()
	if s.status&flagMonitored != 0 {
		s.mu.Unlock()
		return edp.OK
	}
	s.mu.Unlock()

	if code := s.mon.Watch(s.fd, events, s.onReady); code.Failed() {
		return code
	}
	s.mu.Lock()
	s.status |= flagMonitored
	s.wantWrite = events&iomon.Writable != 0
	s.mu.Unlock()
	return edp.OK
}

// setWriteInterest toggles EPOLLOUT interest. The monitor's poller uses
// level-triggered epoll, so a socket must drop Writable interest once it
// has nothing queued — otherwise an always-writable socket would deliver a
// readiness event (and an on_drain call) on every poll cycle forever.
func (s *Socket) setWriteInterest(want bool) {
	s.mu.Lock()
	if s.wantWrite == want {
		s.mu.Unlock()
		return
	}
	s.wantWrite = want
	s.mu.Unlock()

	events := iomon.Readable
	if want {
		events |= iomon.Writable
	}
	_ = s.mon.Modify(s.fd, events)
}

// onReady runs on the monitor's poller goroutine: it must not block. It
// translates readiness bits into one Norm-priority event per bit, posted
// through the socket's own emitter in Out, In, Err, Hup order.
func (s *Socket) onReady(_ int, events iomon.IOEvents) {
	if events&iomon.Writable != 0 {
		s.postReadiness(evEpollOut)
	}
	if events&iomon.Readable != 0 {
		s.mu.Lock()
		s.status |= flagReadReady
		s.mu.Unlock()
		s.postReadiness(evEpollIn)
	}
	if events&iomon.IOError != 0 {
		s.postReadiness(evEpollErr)
	}
	if events&iomon.Hup != 0 {
		s.postReadiness(evEpollHup)
	}
}

func (s *Socket) postReadiness(typ int) {
	ev := &edp.Event{}
	ev.Init(typ, edp.PriorityNorm)
	if code := s.em.Post(ev, s.onReadinessDone, nil); code.Failed() && s.log.Enabled(xlog.Warn) {
		s.log.Log(xlog.Entry{Level: xlog.Warn, Component: "netio", FD: s.fd, Message: "readiness post failed", Err: code})
	}
}

func (s *Socket) onReadinessDone(_ *edp.Event, code edp.Errno) {
	if code.Failed() && s.log.Enabled(xlog.Warn) {
		s.log.Log(xlog.Entry{Level: xlog.Warn, Component: "netio", FD: s.fd, Message: "readiness handler failed", Err: code})
	}
}

// onEpollOut implements spec §4.5's EpollOut branch: connect completion,
// else complete the in-flight write and advance the backlog, else drain.
func (s *Socket) onEpollOut(_ *emitter.Emitter, _ *edp.Event) edp.Errno {
	s.mu.Lock()
	if s.status&flagConnected == 0 {
		s.status |= flagConnected
		writePending := s.status&flagWriteInFlight != 0
		s.mu.Unlock()
		if s.cbs.OnConnect != nil {
			s.cbs.OnConnect(s)
		}
		if !writePending {
			s.setWriteInterest(false)
		}
		return edp.OK
	}
	if s.status&flagWriteInFlight != 0 {
		wc := s.writeCurrent
		s.writeCurrent = nil
		s.mu.Unlock()
		if wc != nil && wc.Completion != nil {
			wc.Completion(wc, wc.BytesTransferred, edp.OK)
		}
		s.advanceWrites(true)
		return edp.OK
	}
	s.mu.Unlock()
	s.setWriteInterest(false)
	if s.cbs.OnDrain != nil {
		s.cbs.OnDrain(s)
	}
	return edp.OK
}

func (s *Socket) onEpollIn(_ *emitter.Emitter, _ *edp.Event) edp.Errno {
	if s.cbs.OnDataReady != nil {
		s.cbs.OnDataReady(s)
	}
	return edp.OK
}

func (s *Socket) onEpollErr(_ *emitter.Emitter, _ *edp.Event) edp.Errno {
	if s.cbs.OnError != nil {
		s.cbs.OnError(s, edp.ErrInvalid)
	}
	return edp.OK
}

func (s *Socket) onEpollHup(_ *emitter.Emitter, _ *edp.Event) edp.Errno {
	if s.cbs.OnClose != nil {
		s.cbs.OnClose(s)
	}
	return edp.OK
}

// Write issues ioctx's payload (spec §4.5 write/advance_writes): if no
// write is currently in flight, it attempts the syscall immediately,
// completing synchronously on success or hard error, and leaving
// write_current set (to continue from the next EpollOut) on EAGAIN.
// Otherwise ioctx joins the FIFO backlog.
func (s *Socket) Write(ioctx *IOCtx, completion func(ioctx *IOCtx, n int, code edp.Errno)) edp.Errno {
	if ioctx.IOType != IOTypeSock {
		return edp.ErrInvalid
	}
	ioctx.Sock = s
	ioctx.Completion = completion

	s.mu.Lock()
	if s.status&flagWriteInFlight != 0 {
		s.backlog.Push(ioctx)
		s.mu.Unlock()
		return edp.OK
	}
	s.status |= flagWriteInFlight
	s.writeCurrent = ioctx
	s.mu.Unlock()

	n, err := s.rawWrite(ioctx)
	if err != nil {
		if isAgain(err) {
			s.setWriteInterest(true)
			return edp.OK
		}
		s.mu.Lock()
		s.writeCurrent = nil
		s.mu.Unlock()
		code := translateErrno(err)
		if completion != nil {
			completion(ioctx, 0, code)
		}
		return code
	}

	ioctx.BytesTransferred = n
	s.mu.Lock()
	s.writeCurrent = nil
	s.mu.Unlock()
	if completion != nil {
		completion(ioctx, n, edp.OK)
	}
	s.advanceWrites(false)
	return edp.OK
}

// advanceWrites drains the backlog (spec §4.5): it pops and attempts each
// queued ioctx in order, stopping (and leaving write_current set) on the
// first EAGAIN. When the backlog empties without blocking, WriteInFlight
// clears and, if drainIfEmpty, on_drain fires.
func (s *Socket) advanceWrites(drainIfEmpty bool) {
	for {
		s.mu.Lock()
		item, ok := s.backlog.Pop()
		if !ok {
			s.status &^= flagWriteInFlight
			s.mu.Unlock()
			s.setWriteInterest(false)
			if drainIfEmpty && s.cbs.OnDrain != nil {
				s.cbs.OnDrain(s)
			}
			return
		}
		s.writeCurrent = item
		s.mu.Unlock()

		n, err := s.rawWrite(item)
		if err != nil {
			if isAgain(err) {
				s.setWriteInterest(true)
				return
			}
			s.mu.Lock()
			s.writeCurrent = nil
			s.mu.Unlock()
			if item.Completion != nil {
				item.Completion(item, 0, translateErrno(err))
			}
			continue
		}

		item.BytesTransferred = n
		s.mu.Lock()
		s.writeCurrent = nil
		s.mu.Unlock()
		if item.Completion != nil {
			item.Completion(item, n, edp.OK)
		}
	}
}

// Read attempts a non-blocking read (spec §4.5): if the socket isn't
// currently ReadReady, it returns ErrAgain without issuing a syscall.
func (s *Socket) Read(ioctx *IOCtx) (int, edp.Errno) {
	if ioctx.IOType != IOTypeSock {
		return 0, edp.ErrInvalid
	}
	s.mu.Lock()
	ready := s.status&flagReadReady != 0
	s.mu.Unlock()
	if !ready {
		return 0, edp.ErrAgain
	}

	n, err := s.rawRead(ioctx)
	if err != nil {
		s.mu.Lock()
		s.status &^= flagReadReady
		s.mu.Unlock()
		if isAgain(err) {
			return 0, edp.ErrAgain
		}
		return 0, translateErrno(err)
	}
	ioctx.BytesTransferred = n
	return n, edp.OK
}

func (s *Socket) rawWrite(ioctx *IOCtx) (int, error) {
	switch ioctx.DataType {
	case DataVec:
		return unix.Writev(s.fd, ioctx.Vectors)
	case DataPtr:
		return unix.Write(s.fd, ioctx.Buffer)
	default:
		return 0, unix.EINVAL
	}
}

func (s *Socket) rawRead(ioctx *IOCtx) (int, error) {
	switch ioctx.DataType {
	case DataVec:
		return unix.Readv(s.fd, ioctx.Vectors)
	case DataPtr:
		return unix.Read(s.fd, ioctx.Buffer)
	default:
		return 0, unix.EINVAL
	}
}

// Destroy unregisters and closes the socket (spec §4.5). It rejects with
// ErrInvalid while events posted through the emitter are still pending,
// and asserts the write backlog is empty: a caller must drain all pending
// writes before destroying, matching the emitter's own pending invariant.
func (s *Socket) Destroy() edp.Errno {
	if code := s.em.Destroy(); code.Failed() {
		return code
	}

	s.mu.Lock()
	backlogLen := s.backlog.Len()
	monitored := s.status&flagMonitored != 0
	s.mu.Unlock()
	if backlogLen != 0 {
		panic("netio: socket destroyed with a non-empty write backlog")
	}

	if monitored {
		if code := s.mon.Unwatch(s.fd); code.Failed() && code != edp.ErrNotFound {
			return code
		}
	}
	if err := unix.Close(s.fd); err != nil {
		return translateErrno(err)
	}
	s.mu.Lock()
	s.status = 0
	s.mu.Unlock()
	return edp.OK
}
