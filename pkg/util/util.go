package util

import (
	"encoding/binary"
	"net"
	"net/netip"

	"github.com/pkg/errors"
	"github.com/praserx/ipconv"
)

const (
	MAX_FRAME_SIZE     = 1518
	DEFAULT_BURST_SIZE = 32
)

var ErrBadIPv4 = errors.New("not a dotted-quad IPv4 address")

// Parse a dotted-quad string into its host-order integer value
// e.g. "10.0.0.1" -> 0x0a000001
func ParseIPv4(s string) (uint32, error) {
	// "::ffff:10.0.0.1" parses too but is not Is4
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return 0, errors.Wrapf(ErrBadIPv4, "%q", s)
	}
	a := addr.As4()
	v, err := ipconv.IPv4ToInt(net.IP(a[:]))
	if err != nil {
		return 0, errors.Wrapf(ErrBadIPv4, "%q: %v", s, err)
	}
	return v, nil
}

// Format a host-order IPv4 integer as a dotted-quad string
func FormatIPv4(v uint32) string {
	return ipconv.IntToIPv4(v).String()
}

// Host-order value of a 4 byte network-order address
func IPv4ToUint32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// Network-order bytes of a host-order address
func Uint32ToIPv4(v uint32) [4]byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b
}

// Convert a host-order address to netip.Addr
func AddrFromUint32(v uint32) netip.Addr {
	return netip.AddrFrom4(Uint32ToIPv4(v))
}
