package netio

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/konghan/edp.io"
)

// translateErrno maps a raw syscall error onto the edp.Errno taxonomy
// (spec §7): a unix.Errno carries straight through as its negative value,
// anything else collapses to ErrInvalid.
func translateErrno(err error) edp.Errno {
	if err == nil {
		return edp.OK
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return edp.Errno(-int32(errno))
	}
	return edp.ErrInvalid
}

func isAgain(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}
