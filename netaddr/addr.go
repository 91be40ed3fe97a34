// Package netaddr is the address codec (spec §4/§6, component G):
// textual/binary conversion for IPv4, with IPv6 an explicit, reserved but
// unimplemented non-goal.
package netaddr

import (
	"fmt"
	"net/netip"

	"github.com/konghan/edp.io"
)

// Family selects the address family, using the design values from spec §6.
type Family int

const (
	IPv4 Family = 1234
	IPv6 Family = 1235
)

// Addr is the tagged union described in original_source/posix/edpnet.c
// (ednet_addr_t): an IPv4 endpoint, or an unimplemented IPv6 tag.
type Addr struct {
	Family Family
	IP     [4]byte // valid only when Family == IPv4
	Port   uint16
}

// ParseIPv4 parses "a.b.c.d" into its 4-byte binary form.
func ParseIPv4(text string) ([4]byte, edp.Errno) {
	var out [4]byte
	addr, err := netip.ParseAddr(text)
	if err != nil || !addr.Is4() {
		return out, edp.ErrInvalid
	}
	return addr.As4(), edp.OK
}

// FormatIPv4 renders a 4-byte address as dotted-quad text.
func FormatIPv4(b [4]byte) string {
	return netip.AddrFrom4(b).String()
}

// ParseAddr parses a textual endpoint "host:port" for the given family.
// IPv6 returns ErrNotImplemented per spec §6/§8.
func ParseAddr(family Family, text string) (Addr, edp.Errno) {
	if family == IPv6 {
		return Addr{}, edp.ErrNotImplemented
	}
	if family != IPv4 {
		return Addr{}, edp.ErrInvalid
	}
	host, portStr, err := splitHostPort(text)
	if err != nil {
		return Addr{}, edp.ErrInvalid
	}
	ip, code := ParseIPv4(host)
	if code.Failed() {
		return Addr{}, code
	}
	port, err := parsePort(portStr)
	if err != nil {
		return Addr{}, edp.ErrInvalid
	}
	return Addr{Family: IPv4, IP: ip, Port: port}, edp.OK
}

// ToSockaddrIn4 packs a into the (ip, port) form a raw sockaddr_in needs.
func (a Addr) ToSockaddrIn4() (ip [4]byte, port int, code edp.Errno) {
	if a.Family != IPv4 {
		return ip, 0, edp.ErrNotImplemented
	}
	return a.IP, int(a.Port), edp.OK
}

func splitHostPort(text string) (host, port string, err error) {
	addrPort, parseErr := netip.ParseAddrPort(text)
	if parseErr != nil {
		return "", "", parseErr
	}
	return addrPort.Addr().String(), fmt.Sprintf("%d", addrPort.Port()), nil
}

func parsePort(s string) (uint16, error) {
	var v uint16
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}
