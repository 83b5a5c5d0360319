// Package packettest builds Ethernet frames for tests.
package packettest

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"l3engine/pkg/mbuf"
)

var (
	MACA      = net.HardwareAddr{0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa}
	MACB      = net.HardwareAddr{0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb}
	MACZero   = net.HardwareAddr{0, 0, 0, 0, 0, 0}
	Broadcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
)

func serialize(ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func ip4(s string) net.IP {
	return net.ParseIP(s).To4()
}

// ARPFrame returns Ethernet(dst, src, ARP) + ARP(op, sha=src, sip, tha=0, tip).
// gopacket pads the frame to the 60 byte Ethernet minimum.
func ARPFrame(op uint16, dst, src net.HardwareAddr, sip, tip string) []byte {
	eth := &layers.Ethernet{
		DstMAC:       dst,
		SrcMAC:       src,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         op,
		SourceHwAddress:   src,
		SourceProtAddress: ip4(sip),
		DstHwAddress:      MACZero,
		DstProtAddress:    ip4(tip),
	}
	return serialize(eth, arp)
}

// IPv4Frame returns an IPv4 frame with the given protocol number followed by
// payloadLen zero bytes.
func IPv4Frame(proto uint8, src, dst string, payloadLen int) []byte {
	eth := &layers.Ethernet{
		DstMAC:       MACA,
		SrcMAC:       MACB,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocol(proto),
		SrcIP:    ip4(src),
		DstIP:    ip4(dst),
	}
	return serialize(eth, ip, gopacket.Payload(make([]byte, payloadLen)))
}

// UDPFrame returns a UDP datagram sent to dstMAC and dst:dport.
func UDPFrame(dstMAC net.HardwareAddr, src, dst string, sport, dport uint16, payload []byte) []byte {
	eth := &layers.Ethernet{
		DstMAC:       dstMAC,
		SrcMAC:       MACB,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    ip4(src),
		DstIP:    ip4(dst),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(sport),
		DstPort: layers.UDPPort(dport),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		panic(err)
	}
	return serialize(eth, ip, udp, gopacket.Payload(payload))
}

// EchoRequestFrame returns a complete ICMP echo request with valid checksums.
func EchoRequestFrame(src, dst string, id, seq uint16, data []byte) []byte {
	eth := &layers.Ethernet{
		DstMAC:       MACA,
		SrcMAC:       MACB,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    ip4(src),
		DstIP:    ip4(dst),
	}
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       id,
		Seq:      seq,
	}
	return serialize(eth, ip, icmp, gopacket.Payload(data))
}

// Load copies frame into a buffer from p.
func Load(p *mbuf.Pool, frame []byte) *mbuf.Buf {
	b, err := p.FromBytes(frame)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode parses frame with gopacket.
func Decode(frame []byte) gopacket.Packet {
	return gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
}
