// Package remotelog implements the line-oriented remote logging protocol
// (spec §6): "{LEVEL}: {text}" lines, each bounded to 128 bytes, sent over a
// stream connection to 127.0.0.1:4040.
//
// It lives in its own package rather than inside xlog because it depends on
// netio, and netio itself depends on xlog for ambient logging — folding the
// two together would cycle.
package remotelog

import (
	"github.com/konghan/edp.io"
	"github.com/konghan/edp.io/iomon"
	"github.com/konghan/edp.io/netaddr"
	"github.com/konghan/edp.io/netio"
	"github.com/konghan/edp.io/worker"
	"github.com/konghan/edp.io/xlog"
)

// maxLineBytes is the line cap spec §6 specifies.
const maxLineBytes = 128

// defaultAddr is the fixed collector endpoint spec §6 specifies.
const defaultAddr = "127.0.0.1:4040"

// Level is one of the seven line-prefix tags spec §6 lists, including its
// verbatim "UNKOWN" spelling.
type Level int

const (
	Fatal Level = iota
	Error
	Worn
	Info
	Debug
	Trace
	Unkown
)

func (l Level) tag() string {
	switch l {
	case Fatal:
		return "FATAL"
	case Error:
		return "ERROR"
	case Worn:
		return "WORN"
	case Info:
		return "INFO"
	case Debug:
		return "DEBUG"
	case Trace:
		return "TRACE"
	default:
		return "UNKOWN"
	}
}

// Client is a connection to the remote line logger, backed by a single
// netio.Socket.
type Client struct {
	sock *netio.Socket
	log  xlog.Logger
}

// Dial opens a socket to the collector at 127.0.0.1:4040 and starts
// connecting (non-blocking, per netio.Socket.Connect semantics).
func Dial(pool *worker.Pool, mon *iomon.Monitor, log xlog.Logger) (*Client, edp.Errno) {
	if log == nil {
		log = xlog.NopLogger{}
	}
	addr, code := netaddr.ParseAddr(netaddr.IPv4, defaultAddr)
	if code.Failed() {
		return nil, code
	}

	c := &Client{log: log}
	sock, code := netio.Create(pool, mon, netio.Callbacks{
		OnError: c.onError,
	}, nil, log)
	if code.Failed() {
		return nil, code
	}
	c.sock = sock

	if code := sock.Connect(addr); code.Failed() {
		sock.Destroy()
		return nil, code
	}
	return c, edp.OK
}

func (c *Client) onError(_ *netio.Socket, code edp.Errno) {
	if c.log.Enabled(xlog.Error) {
		c.log.Log(xlog.Entry{Level: xlog.Error, Component: "remotelog", Message: "connection error", Err: code})
	}
}

// Send formats "{LEVEL}: {text}", truncates to maxLineBytes, and queues it
// for write. Delivery is best-effort: failures are logged, not returned to
// the caller's hot path, matching the fire-and-forget nature of a logging
// sink.
func (c *Client) Send(level Level, text string) {
	line := formatLine(level, text)
	buf := []byte(line)
	code := c.sock.Write(&netio.IOCtx{IOType: netio.IOTypeSock, DataType: netio.DataPtr, Buffer: buf}, func(_ *netio.IOCtx, _ int, code edp.Errno) {
		if code.Failed() && c.log.Enabled(xlog.Warn) {
			c.log.Log(xlog.Entry{Level: xlog.Warn, Component: "remotelog", Message: "send failed", Err: code})
		}
	})
	if code.Failed() && c.log.Enabled(xlog.Warn) {
		c.log.Log(xlog.Entry{Level: xlog.Warn, Component: "remotelog", Message: "send rejected", Err: code})
	}
}

func formatLine(level Level, text string) string {
	s := level.tag() + ": " + text
	if len(s) > maxLineBytes {
		s = s[:maxLineBytes]
	}
	return s
}

// Close tears down the underlying socket.
func (c *Client) Close() edp.Errno {
	return c.sock.Destroy()
}
