// Package netio implements the non-blocking TCP socket and server layer
// (spec §4.5/§4.6, components E and F): a per-socket state machine over a
// single in-flight write plus a FIFO backlog, and an accept loop wired into
// the I/O monitor.
package netio

import "github.com/konghan/edp.io"

// IOType tags which kind of descriptor an IOCtx targets, carried over from
// original_source/posix/edpnet.c's ioctx_t (ioc_type).
type IOType int32

const (
	IOTypeSock   IOType = 22
	IOTypeBlkDev IOType = 23
)

// DataType tags the payload shape of an IOCtx, also carried over from
// edpnet.c (ioc_data_type): either a scatter/gather vector list or a single
// flat buffer.
type DataType int32

const (
	DataVec DataType = 11
	DataPtr DataType = 12
)

// IOCtx is the tagged union spec §6 describes: a Vec carries (count,
// vectors), a Ptr carries (size, buffer). The Sock-variant fields
// (Completion, Sock, BytesTransferred) are always present; BlkDev
// is reserved (spec §1: "in-progress block-device API", out of scope here)
// and is carried only as a tag value, never dispatched.
type IOCtx struct {
	IOType   IOType
	DataType DataType

	// Vectors is used when DataType == DataVec.
	Vectors [][]byte
	// Buffer is used when DataType == DataPtr.
	Buffer []byte

	// Sock is the owning socket, set by Socket.Write before the backlog or
	// the in-flight slot ever sees this ioctx.
	Sock *Socket
	// Completion is invoked exactly once, from the socket's own goroutine
	// context (an emitter handler or a synchronous Write return path),
	// with the number of bytes actually transferred and a result code.
	Completion func(ioctx *IOCtx, n int, code edp.Errno)
	// BytesTransferred records the result of the last attempt.
	BytesTransferred int
}
