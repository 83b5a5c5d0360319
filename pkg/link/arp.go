package link

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/google/netstack/tcpip"
	"github.com/google/netstack/tcpip/header"
	"github.com/pkg/errors"

	"l3engine/pkg/mbuf"
	"l3engine/pkg/packet"
	"l3engine/pkg/util"
)

const (
	HARDWARE_TYPE = 1      // 2 bytes (ethernet)
	PROTOCOL_TYPE = 0x0800 // 2 bytes (ipv4)
	HLEN          = 6      // MAC, 1 byte
	PLEN          = 4      // IPv4, 1 byte
	ARP_REQUEST   = 1      // 2 bytes
	ARP_REPLY     = 2      // 2 bytes

	// Ethernet + ARP, no padding
	ARP_FRAME_LEN = packet.ETHER_HDR_LEN + packet.ARP_HDR_LEN
)

var ErrNotARPRequest = errors.New("link: not an arp request")

type ARPMessage struct {
	HardwareType uint16
	ProtocolType uint16
	HardwareLen  uint8
	ProtocolLen  uint8
	// req or reply
	Operation uint16

	// Sender
	SHA [HLEN]byte
	SPA [PLEN]byte

	// Target
	THA [HLEN]byte
	TPA [PLEN]byte
}

// Unmarshal an arp header into ARPMessage struct
func UnmarshalARPMessage(b []byte) (ARPMessage, error) {
	if len(b) < packet.ARP_HDR_LEN {
		return ARPMessage{}, errors.Wrapf(packet.ErrTruncated, "arp message of %d bytes", len(b))
	}
	return ARPMessage{
		HardwareType: binary.BigEndian.Uint16(b[0:2]),
		ProtocolType: binary.BigEndian.Uint16(b[2:4]),
		HardwareLen:  uint8(b[4]),
		ProtocolLen:  uint8(b[5]),
		Operation:    binary.BigEndian.Uint16(b[6:8]),
		SHA:          [HLEN]byte(b[8:14]),
		SPA:          [PLEN]byte(b[14:18]),
		THA:          [HLEN]byte(b[18:24]),
		TPA:          [PLEN]byte(b[24:28]),
	}, nil
}

func (m ARPMessage) String() string {
	op := "request"
	if m.Operation == ARP_REPLY {
		op = "reply"
	} else if m.Operation != ARP_REQUEST {
		op = fmt.Sprintf("op(%d)", m.Operation)
	}
	return fmt.Sprintf("arp %s sha=%s spa=%s tha=%s tpa=%s", op,
		net.HardwareAddr(m.SHA[:]), util.FormatIPv4(binary.BigEndian.Uint32(m.SPA[:])),
		net.HardwareAddr(m.THA[:]), util.FormatIPv4(binary.BigEndian.Uint32(m.TPA[:])))
}

// Check if the buffer holds an arp request asking for localIP (host order).
// Ether-type, opcode and target protocol address are converted from network
// order before comparing.
func IsARPRequestFor(b *mbuf.Buf, localIP uint32) bool {
	eth, ok := packet.Ethernet(b)
	if !ok || eth.Type() != header.ARPProtocolNumber {
		return false
	}
	arp, ok := packet.ARP(b)
	if !ok || arp.Op() != header.ARPRequest {
		return false
	}
	return util.IPv4ToUint32(arp.ProtocolAddressTarget()) == localIP
}

// Build the reply to the arp request in b, see BuildARPReplyAs
func BuildARPReply(b *mbuf.Buf, pool mbuf.Allocator) (*mbuf.Buf, error) {
	return BuildARPReplyAs(b, pool, "")
}

// Allocate a new buffer from pool and fill it with the arp reply to the
// request in b. The request's ether-type and opcode are checked again, its
// target address is not: use IsARPRequestFor to decide whether to answer.
//
// - Ethernet: src = request dst, dst = request src
// - ARP: sha = request dst, spa = request tpa, tha = request src, tpa = request spa
//
// When mac is not empty it replaces the request dst as reply src and sha.
// The caller owns the returned buffer. b is left untouched.
func BuildARPReplyAs(b *mbuf.Buf, pool mbuf.Allocator, mac tcpip.LinkAddress) (*mbuf.Buf, error) {
	eth, ok := packet.Ethernet(b)
	if !ok || eth.Type() != header.ARPProtocolNumber {
		return nil, ErrNotARPRequest
	}
	arp, ok := packet.ARP(b)
	if !ok || arp.Op() != header.ARPRequest {
		return nil, ErrNotARPRequest
	}

	// copies: the request may be freed before the reply is sent
	tha := eth.DestinationAddress()
	frm := eth.SourceAddress()
	if mac != "" {
		tha = mac
	}
	var tip, sip [PLEN]byte
	copy(tip[:], arp.ProtocolAddressSender())
	copy(sip[:], arp.ProtocolAddressTarget())

	out, err := pool.Alloc()
	if err != nil {
		return nil, errors.Wrap(err, "arp reply")
	}
	if err := out.SetLen(ARP_FRAME_LEN); err != nil {
		out.Free()
		return nil, errors.Wrap(err, "arp reply")
	}

	outEth := header.Ethernet(out.Bytes())
	outEth.Encode(&header.EthernetFields{
		SrcAddr: tha,
		DstAddr: frm,
		Type:    header.ARPProtocolNumber,
	})

	outARP := header.ARP(out.Bytes()[packet.ETHER_HDR_LEN:])
	outARP.SetIPv4OverEthernet()
	outARP.SetOp(header.ARPReply)
	copy(outARP.HardwareAddressSender(), tha)
	copy(outARP.ProtocolAddressSender(), sip[:])
	copy(outARP.HardwareAddressTarget(), frm)
	copy(outARP.ProtocolAddressTarget(), tip[:])

	return out, nil
}
