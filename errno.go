package edp

import (
	"strconv"

	"golang.org/x/sys/unix"
)

// Errno is the error taxonomy used across edp.io: negative values are
// failures mirroring POSIX errno, zero is success, and a small set of
// positive values are reserved sentinels (see spec §6/§7).
//
// Errno implements error so it can be returned and compared directly, but
// framework code generally threads it through completion callbacks rather
// than as a Go `error` return, matching the "errors never cross thread
// boundaries except via completion callbacks" rule.
type Errno int32

// Reserved sentinels (spec §6). These are intentionally outside the negative
// POSIX-errno range so they cannot collide with -EINVAL-style values.
const (
	OK      Errno = 0
	TIMEOUT Errno = 1024
	CLOSE   Errno = 1025
)

// Argument and resource errors (spec §7), mirroring POSIX errno.
var (
	ErrOutOfRange        = Errno(-int32(unix.ERANGE))
	ErrInvalid           = Errno(-int32(unix.EINVAL))
	ErrNoHandler         = Errno(-int32(unix.ENOENT))
	ErrOutOfMemory       = Errno(-int32(unix.ENOMEM))
	ErrAlreadyRegistered = Errno(-int32(unix.EEXIST))
	ErrNotFound          = Errno(-int32(unix.ENOENT))
	ErrAgain             = Errno(-int32(unix.EAGAIN))
	ErrNotImplemented    = Errno(-int32(unix.ENOSYS))
)

// Error implements the error interface. Success (OK) still renders so that
// logging call sites can format an Errno unconditionally.
func (e Errno) Error() string {
	switch e {
	case OK:
		return "edp: ok"
	case TIMEOUT:
		return "edp: timeout"
	case CLOSE:
		return "edp: closed"
	}
	if e < 0 {
		if name := unix.ErrnoName(unixErrno(e)); name != "" {
			return "edp: " + name
		}
	}
	return "edp: errno " + strconv.Itoa(int(e))
}

// Failed reports whether e represents a failure (negative, or one of the
// reserved non-zero sentinels).
func (e Errno) Failed() bool {
	return e != OK
}

func unixErrno(e Errno) unix.Errno {
	if e >= 0 {
		return 0
	}
	return unix.Errno(-int32(e))
}
