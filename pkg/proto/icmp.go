package proto

import (
	"encoding/binary"

	"github.com/google/netstack/tcpip/header"

	"l3engine/pkg/mbuf"
	"l3engine/pkg/packet"
	"l3engine/pkg/util"
)

const (
	// ICMP TYPE
	ECHO_REPLY      = 0
	DST_UNREACHABLE = 3
	ECHO_REQUEST    = 8
	TIME_EXCEEDED   = 11
)

const (
	ECHO_CODE = 0
)

// EchoReplyChecksum turns the checksum of an echo request into the checksum
// of the same message with the type changed to echo reply (RFC 1624
// incremental update). Input and output are host-order values as returned by
// header.ICMPv4.Checksum.
func EchoReplyChecksum(cksum uint16) uint16 {
	sum := uint32(^cksum)
	// type is the high byte of the first 16-bit word
	sum += uint32(^uint16(ECHO_REQUEST << 8))
	sum += uint32(ECHO_REPLY << 8)
	sum = (sum & 0xffff) + (sum >> 16)
	sum = (sum & 0xffff) + (sum >> 16)
	return ^uint16(sum)
}

// Identifier and sequence number of an echo message
func ExtractIdSeq(icmp header.ICMPv4) (uint16, uint16) {
	id := binary.BigEndian.Uint16(icmp[4:6])
	seq := binary.BigEndian.Uint16(icmp[6:8])
	return id, seq
}

// IsEchoRequestFor reports whether b carries an ICMP echo request whose IPv4
// destination equals localIP (host order).
func IsEchoRequestFor(b *mbuf.Buf, localIP uint32) bool {
	icmp, ok := packet.ICMP(b)
	if !ok || icmp.Type() != header.ICMPv4Echo {
		return false
	}
	ip, _ := packet.IPv4(b)
	return util.IPv4ToUint32([]byte(ip.DestinationAddress())) == localIP
}

// MakeEchoReply rewrites an echo request into the matching echo reply in
// place: Ethernet and IPv4 addresses are swapped, the type becomes echo reply
// and the ICMP checksum is updated incrementally. The IPv4 checksum stays
// valid because swapping addresses does not change the one's complement sum.
// Packets with IPv4 options are refused since the ICMP header would not be
// where the locator expects it.
func MakeEchoReply(b *mbuf.Buf) bool {
	icmp, ok := packet.ICMP(b)
	if !ok || icmp.Type() != header.ICMPv4Echo || icmp.Code() != ECHO_CODE {
		return false
	}
	ip, _ := packet.IPv4(b)
	if int(ip.HeaderLength()) != packet.IPV4_HDR_LEN {
		return false
	}
	eth, _ := packet.Ethernet(b)

	var mac [header.EthernetAddressSize]byte
	copy(mac[:], eth[0:6])
	copy(eth[0:6], eth[6:12])
	copy(eth[6:12], mac[:])

	src, dst := ip.SourceAddress(), ip.DestinationAddress()
	ip.SetSourceAddress(dst)
	ip.SetDestinationAddress(src)

	icmp.SetType(header.ICMPv4EchoReply)
	icmp.SetChecksum(EchoReplyChecksum(icmp.Checksum()))
	return true
}
