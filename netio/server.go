package netio

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/konghan/edp.io"
	"github.com/konghan/edp.io/iomon"
	"github.com/konghan/edp.io/netaddr"
	"github.com/konghan/edp.io/worker"
	"github.com/konghan/edp.io/xlog"
)

// pendClients is PENDCLIENTS from spec §4.6/§6: the listen backlog depth.
const pendClients = 64

// ServerCallbacks are the server-level hooks (spec §4.6): connected fires
// once per accepted client, close fires if the listening fd itself errors
// out or hangs up.
type ServerCallbacks struct {
	OnConnected func(srv *Server, sock *Socket)
	OnClose     func(srv *Server)
}

// Server is a listening, non-blocking TCP acceptor (spec §4.6).
type Server struct {
	fd      int
	connCbs Callbacks
	srvCbs  ServerCallbacks
	pool    *worker.Pool
	mon     *iomon.Monitor
	log     xlog.Logger

	mu        sync.Mutex
	listening bool
}

// CreateServer opens a fresh listening socket. connCbs are the per-socket
// callbacks wired onto every accepted Socket; srvCbs covers the listener
// itself.
func CreateServer(pool *worker.Pool, mon *iomon.Monitor, connCbs Callbacks, srvCbs ServerCallbacks, log xlog.Logger) (*Server, edp.Errno) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, translateErrno(err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, translateErrno(err)
	}
	if log == nil {
		log = xlog.NopLogger{}
	}
	return &Server{fd: fd, connCbs: connCbs, srvCbs: srvCbs, pool: pool, mon: mon, log: log}, edp.OK
}

// FD returns the listening file descriptor.
func (srv *Server) FD() int { return srv.fd }

// Listen binds addr, starts listening with the spec's PENDCLIENTS backlog,
// and registers the listening fd with the monitor.
func (srv *Server) Listen(addr netaddr.Addr) edp.Errno {
	ip, port, code := addr.ToSockaddrIn4()
	if code.Failed() {
		return code
	}
	sa := &unix.SockaddrInet4{Port: port, Addr: ip}
	if err := unix.Bind(srv.fd, sa); err != nil {
		return translateErrno(err)
	}
	if err := unix.Listen(srv.fd, pendClients); err != nil {
		return translateErrno(err)
	}
	srv.mu.Lock()
	srv.listening = true
	srv.mu.Unlock()
	return srv.mon.Watch(srv.fd, iomon.Readable, srv.onReadable)
}

// onReadable runs on the monitor's poller goroutine and must not block. It
// drains the accept backlog, constructing one Socket per accepted peer.
func (srv *Server) onReadable(fd int, events iomon.IOEvents) {
	if events&(iomon.IOError|iomon.Hup) != 0 {
		if srv.srvCbs.OnClose != nil {
			srv.srvCbs.OnClose(srv)
		}
		return
	}
	if events&iomon.Readable == 0 {
		return
	}
	for {
		nfd, _, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if isAgain(err) {
				return
			}
			if srv.log.Enabled(xlog.Warn) {
				srv.log.Log(xlog.Entry{Level: xlog.Warn, Component: "netio", FD: fd, Message: "accept error", Err: err})
			}
			return
		}

		sock := newSocket(nfd, srv.pool, srv.mon, srv.connCbs, nil, srv.log, true)
		if code := sock.ensureMonitored(iomon.Readable | iomon.Writable); code.Failed() {
			_ = unix.Close(nfd)
			continue
		}
		if srv.srvCbs.OnConnected != nil {
			srv.srvCbs.OnConnected(srv, sock)
		}
	}
}

// Destroy unregisters and closes the listening socket.
func (srv *Server) Destroy() edp.Errno {
	srv.mu.Lock()
	listening := srv.listening
	srv.mu.Unlock()
	if listening {
		if code := srv.mon.Unwatch(srv.fd); code.Failed() && code != edp.ErrNotFound {
			return code
		}
	}
	if err := unix.Close(srv.fd); err != nil {
		return translateErrno(err)
	}
	return edp.OK
}
