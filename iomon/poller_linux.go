//go:build linux

package iomon

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// maxFDs bounds direct-indexed fd arrays, matching the teacher's
// eventloop.FastPoller sizing (practical upper bound on a process's open
// file descriptors).
const maxFDs = 65536

// maxEvents is the per-poll batch size (spec §4.3, design value 32).
const maxEvents = 32

// IOEvents is the readiness bitmask delivered to a watch callback (spec
// §4.3: "a bitmask over {Readable, Writable, Error, Hup}").
type IOEvents uint32

const (
	Readable IOEvents = 1 << iota
	Writable
	IOError
	Hup
)

// fdInfo mirrors eventloop.fdInfo: small, no pointers besides the callback.
type fdInfo struct {
	callback Callback
	active   bool
}

// epollPoller is a single poller thread's epoll instance, grounded directly
// on the teacher's eventloop.FastPoller (direct fd-array indexing, a
// version counter to detect staleness across the blocking syscall, and
// EINTR treated as a zero-event no-op).
type epollPoller struct {
	epfd    int32
	wakeFD  int32
	version atomic.Uint64

	eventBuf [maxEvents]unix.EpollEvent
	fds      [maxFDs]fdInfo
	fdMu     sync.RWMutex

	closed atomic.Bool
}

func newEpollPoller() (*epollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFD, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}
	p := &epollPoller{epfd: int32(epfd), wakeFD: int32(wakeFD)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFD, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFD),
	}); err != nil {
		_ = unix.Close(epfd)
		_ = unix.Close(wakeFD)
		return nil, err
	}
	return p, nil
}

// wake interrupts a blocked poll call, used during Fini so poller
// goroutines can observe the closed flag promptly.
func (p *epollPoller) wake() {
	var buf [8]byte
	buf[0] = 1
	_, _ = unix.Write(int(p.wakeFD), buf[:])
}

func (p *epollPoller) close() error {
	p.closed.Store(true)
	p.wake()
	_ = unix.Close(int(p.wakeFD))
	return unix.Close(int(p.epfd))
}

func (p *epollPoller) add(fd int, events IOEvents, cb Callback) error {
	if fd < 0 || fd >= maxFDs {
		return errFDOutOfRange
	}
	p.fdMu.Lock()
	if p.fds[fd].active {
		p.fdMu.Unlock()
		return errAlreadyRegistered
	}
	p.fds[fd] = fdInfo{callback: cb, active: true}
	p.version.Add(1)
	p.fdMu.Unlock()

	ev := &unix.EpollEvent{Events: toEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		p.fdMu.Lock()
		p.fds[fd] = fdInfo{}
		p.fdMu.Unlock()
		return err
	}
	return nil
}

// modify changes the interest set for an already-registered fd, mirroring
// the teacher's FastPoller.ModifyFD.
func (p *epollPoller) modify(fd int, events IOEvents) error {
	if fd < 0 || fd >= maxFDs {
		return errFDOutOfRange
	}
	p.fdMu.RLock()
	active := p.fds[fd].active
	p.fdMu.RUnlock()
	if !active {
		return errNotFound
	}
	ev := &unix.EpollEvent{Events: toEpoll(events), Fd: int32(fd)}
	return unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_MOD, fd, ev)
}

func (p *epollPoller) del(fd int) error {
	if fd < 0 || fd >= maxFDs {
		return errFDOutOfRange
	}
	p.fdMu.Lock()
	if !p.fds[fd].active {
		p.fdMu.Unlock()
		return errNotFound
	}
	p.fds[fd] = fdInfo{}
	p.version.Add(1)
	p.fdMu.Unlock()
	return unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_DEL, fd, nil)
}

// poll blocks until ready descriptors arrive, the wake eventfd fires, or
// timeoutMs elapses; it dispatches callbacks inline on the calling
// (poller) goroutine, which must never block.
func (p *epollPoller) poll(timeoutMs int) error {
	v := p.version.Load()
	n, err := unix.EpollWait(int(p.epfd), p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}
	if p.version.Load() != v {
		return nil
	}
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		if int32(fd) == p.wakeFD {
			var buf [8]byte
			_, _ = unix.Read(int(p.wakeFD), buf[:])
			continue
		}
		if fd < 0 || fd >= maxFDs {
			continue
		}
		p.fdMu.RLock()
		info := p.fds[fd]
		p.fdMu.RUnlock()
		if info.active && info.callback != nil {
			info.callback(fd, fromEpoll(p.eventBuf[i].Events))
		}
	}
	return nil
}

func toEpoll(events IOEvents) uint32 {
	var e uint32
	if events&Readable != 0 {
		e |= unix.EPOLLIN
	}
	if events&Writable != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

// fromEpoll converts raw epoll bits to IOEvents, using bitwise AND (spec §9
// Open Question: the source's EpollHup test used `|`, which fires
// unconditionally; this implementation tests membership with `&`).
func fromEpoll(e uint32) IOEvents {
	var events IOEvents
	if e&unix.EPOLLIN != 0 {
		events |= Readable
	}
	if e&unix.EPOLLOUT != 0 {
		events |= Writable
	}
	if e&unix.EPOLLERR != 0 {
		events |= IOError
	}
	if e&unix.EPOLLHUP != 0 {
		events |= Hup
	}
	return events
}
