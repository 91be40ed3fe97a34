package netaddr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konghan/edp.io"
)

func TestParseFormatRoundTrip(t *testing.T) {
	cases := [][4]byte{
		{0, 0, 0, 0},
		{127, 0, 0, 1},
		{255, 255, 255, 255},
		{10, 20, 30, 40},
	}
	for _, b := range cases {
		text := FormatIPv4(b)
		got, code := ParseIPv4(text)
		require.Equal(t, edp.OK, code)
		assert.Equal(t, b, got)
	}
}

func TestParseIPv4Invalid(t *testing.T) {
	_, code := ParseIPv4("not-an-ip")
	assert.Equal(t, edp.ErrInvalid, code)
}

func TestParseAddrIPv6NotImplemented(t *testing.T) {
	_, code := ParseAddr(IPv6, "::1:80")
	assert.Equal(t, edp.ErrNotImplemented, code)
}

func TestParseAddrIPv4(t *testing.T) {
	a, code := ParseAddr(IPv4, "127.0.0.1:3020")
	require.Equal(t, edp.OK, code)
	assert.Equal(t, [4]byte{127, 0, 0, 1}, a.IP)
	assert.Equal(t, uint16(3020), a.Port)
}
