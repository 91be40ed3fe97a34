//go:build linux

package iomon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

// TestFromEpollHupRequiresItsOwnBit is the spec §9 Open Question regression:
// the source tested EPOLLHUP with `|`, which is true for any nonzero event
// word and would fire on_close spuriously whenever e.g. EPOLLOUT arrived
// alongside other bits. fromEpoll must only report Hup when EPOLLHUP
// itself is set.
func TestFromEpollHupRequiresItsOwnBit(t *testing.T) {
	events := fromEpoll(unix.EPOLLOUT | unix.EPOLLIN)
	assert.Zero(t, events&Hup, "Hup must not be set without EPOLLHUP in the raw word")
	assert.NotZero(t, events&Writable)
	assert.NotZero(t, events&Readable)

	events = fromEpoll(unix.EPOLLOUT | unix.EPOLLHUP)
	assert.NotZero(t, events&Hup, "Hup must be set when EPOLLHUP is present")
}
