// Package packet locates protocol headers inside packet buffers.
//
// Every lookup walks the chain Ethernet -> IPv4 -> {TCP, UDP, ICMP} or
// Ethernet -> ARP and checks the ether-type or IP protocol number at each
// step. The returned views alias the buffer: they are valid only while the
// caller owns the buffer and must not be kept after it is freed or changed.
//
// The IPv4 header is always assumed to be 20 bytes long. Options are not
// parsed, so the upper layer header of a packet carrying IPv4 options is
// located at the wrong offset.
package packet

import (
	"github.com/google/netstack/tcpip"
	"github.com/google/netstack/tcpip/header"
	"github.com/pkg/errors"

	"l3engine/pkg/mbuf"
)

const (
	ETHER_HDR_LEN = header.EthernetMinimumSize
	IPV4_HDR_LEN  = header.IPv4MinimumSize
	ARP_HDR_LEN   = header.ARPSize
	// offset of the upper layer header in an IPv4 frame
	L4_OFFSET = ETHER_HDR_LEN + IPV4_HDR_LEN
)

var (
	// The protocol chain does not lead to the requested header
	ErrNotPresent = errors.New("packet: header not present")
	// The header would extend past the frame data
	ErrTruncated = errors.New("packet: buffer truncated")
)

type Layer int

const (
	LayerNone Layer = iota
	LayerEthernet
	LayerIPv4
	LayerARP
	LayerTCP
	LayerUDP
	LayerICMP
)

func (l Layer) String() string {
	switch l {
	case LayerEthernet:
		return "ethernet"
	case LayerIPv4:
		return "ipv4"
	case LayerARP:
		return "arp"
	case LayerTCP:
		return "tcp"
	case LayerUDP:
		return "udp"
	case LayerICMP:
		return "icmp"
	default:
		return "none"
	}
}

var transportLayers = [...]Layer{LayerTCP, LayerUDP, LayerICMP}

// Returns the frame data from offset on, provided at least size bytes are there
func view(b *mbuf.Buf, offset, size int) ([]byte, error) {
	data := b.Bytes()
	if offset+size > len(data) {
		return nil, ErrTruncated
	}
	return data[offset:], nil
}

// Locate returns the bytes of the requested header, starting at the header and
// running to the end of the frame data. The error is ErrNotPresent when the
// protocol chain does not match and ErrTruncated when the buffer is too short.
// Both are returned unwrapped so a miss costs no allocation.
func Locate(b *mbuf.Buf, l Layer) ([]byte, error) {
	if b == nil {
		return nil, ErrNotPresent
	}
	switch l {
	case LayerEthernet:
		return view(b, 0, ETHER_HDR_LEN)
	case LayerIPv4:
		return locateNetwork(b, header.IPv4ProtocolNumber, IPV4_HDR_LEN)
	case LayerARP:
		return locateNetwork(b, header.ARPProtocolNumber, ARP_HDR_LEN)
	case LayerTCP:
		return locateTransport(b, header.TCPProtocolNumber, header.TCPMinimumSize)
	case LayerUDP:
		return locateTransport(b, header.UDPProtocolNumber, header.UDPMinimumSize)
	case LayerICMP:
		return locateTransport(b, header.ICMPv4ProtocolNumber, header.ICMPv4MinimumSize)
	}
	return nil, ErrNotPresent
}

func locateNetwork(b *mbuf.Buf, proto tcpip.NetworkProtocolNumber, size int) ([]byte, error) {
	v, err := view(b, 0, ETHER_HDR_LEN)
	if err != nil {
		return nil, err
	}
	// Type() converts from network order
	if header.Ethernet(v).Type() != proto {
		return nil, ErrNotPresent
	}
	return view(b, ETHER_HDR_LEN, size)
}

func locateTransport(b *mbuf.Buf, proto tcpip.TransportProtocolNumber, size int) ([]byte, error) {
	v, err := locateNetwork(b, header.IPv4ProtocolNumber, IPV4_HDR_LEN)
	if err != nil {
		return nil, err
	}
	if tcpip.TransportProtocolNumber(header.IPv4(v).Protocol()) != proto {
		return nil, ErrNotPresent
	}
	return view(b, L4_OFFSET, size)
}

// Ethernet returns the Ethernet header view
func Ethernet(b *mbuf.Buf) (header.Ethernet, bool) {
	v, err := Locate(b, LayerEthernet)
	return header.Ethernet(v), err == nil
}

// IPv4 returns the IPv4 header if the frame carries one
func IPv4(b *mbuf.Buf) (header.IPv4, bool) {
	v, err := Locate(b, LayerIPv4)
	return header.IPv4(v), err == nil
}

// ARP returns the ARP header if the frame carries one
func ARP(b *mbuf.Buf) (header.ARP, bool) {
	v, err := Locate(b, LayerARP)
	return header.ARP(v), err == nil
}

func TCP(b *mbuf.Buf) (header.TCP, bool) {
	v, err := Locate(b, LayerTCP)
	return header.TCP(v), err == nil
}

func UDP(b *mbuf.Buf) (header.UDP, bool) {
	v, err := Locate(b, LayerUDP)
	return header.UDP(v), err == nil
}

func ICMP(b *mbuf.Buf) (header.ICMPv4, bool) {
	v, err := Locate(b, LayerICMP)
	return header.ICMPv4(v), err == nil
}

// Raw returns the whole data room of the buffer and its capacity, for
// protocols this package does not model.
func Raw(b *mbuf.Buf) ([]byte, int) {
	if b == nil {
		return nil, 0
	}
	return b.Raw(), b.Cap()
}

// Classify returns the innermost layer that can be located in b.
func Classify(b *mbuf.Buf) Layer {
	eth, ok := Ethernet(b)
	if !ok {
		return LayerNone
	}
	switch eth.Type() {
	case header.ARPProtocolNumber:
		if _, ok := ARP(b); ok {
			return LayerARP
		}
		return LayerEthernet
	case header.IPv4ProtocolNumber:
		for _, l := range transportLayers {
			if _, err := Locate(b, l); err == nil {
				return l
			}
		}
		if _, ok := IPv4(b); ok {
			return LayerIPv4
		}
	}
	return LayerEthernet
}
