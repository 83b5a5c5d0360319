package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/google/netstack/tcpip"
	"github.com/google/netstack/tcpip/header"

	"l3engine/pkg/mbuf"
	"l3engine/pkg/util"
)

// Addressing of an IPv4 frame, used to decide whether it is meant for us
type Tuple struct {
	SrcMAC tcpip.LinkAddress
	DstMAC tcpip.LinkAddress
	// host order
	SrcIP uint32
	DstIP uint32
	// 0 unless the frame carries TCP or UDP
	DstPort   uint16
	EtherType tcpip.NetworkProtocolNumber
	Protocol  tcpip.TransportProtocolNumber
}

// FiveTuple extracts the addressing of an IPv4 frame. Frames that do not
// carry IPv4 return ErrNotPresent, short frames ErrTruncated.
func FiveTuple(b *mbuf.Buf) (Tuple, error) {
	v, err := Locate(b, LayerIPv4)
	if err != nil {
		return Tuple{}, err
	}
	ip := header.IPv4(v)
	eth, _ := Ethernet(b)
	t := Tuple{
		SrcMAC:    eth.SourceAddress(),
		DstMAC:    eth.DestinationAddress(),
		SrcIP:     binary.BigEndian.Uint32(ip[12:16]),
		DstIP:     binary.BigEndian.Uint32(ip[16:20]),
		EtherType: eth.Type(),
		Protocol:  tcpip.TransportProtocolNumber(ip.Protocol()),
	}
	switch t.Protocol {
	case header.TCPProtocolNumber:
		if tcp, ok := TCP(b); ok {
			t.DstPort = tcp.DestinationPort()
		}
	case header.UDPProtocolNumber:
		if udp, ok := UDP(b); ok {
			t.DstPort = udp.DestinationPort()
		}
	}
	return t, nil
}

// IsFor reports whether the frame is addressed to ip and, when mac is not
// empty, to mac.
func (t Tuple) IsFor(ip uint32, mac tcpip.LinkAddress) bool {
	if t.DstIP != ip {
		return false
	}
	return mac == "" || t.DstMAC == mac
}

func (t Tuple) String() string {
	return fmt.Sprintf("%s %s -> %s %s:%d proto %d",
		t.SrcMAC, util.FormatIPv4(t.SrcIP), t.DstMAC, util.FormatIPv4(t.DstIP), t.DstPort, t.Protocol)
}
