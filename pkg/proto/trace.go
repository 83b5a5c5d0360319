package proto

import (
	"fmt"
	"log/slog"
	"strings"

	"l3engine/pkg/mbuf"
	"l3engine/pkg/packet"
)

// TraceHandler logs a one line summary of every buffer it receives and frees
// it. Meant to be registered for traffic the engine does not answer.
func TraceHandler(l *slog.Logger) func(*mbuf.Buf) {
	return func(b *mbuf.Buf) {
		l.Info(Summary(b))
		b.Free()
	}
}

// Summary describes the addressing of a frame: IPv4 source, ttl, protocol and
// ports when present.
func Summary(b *mbuf.Buf) string {
	var s strings.Builder
	ip, ok := packet.IPv4(b)
	if !ok {
		s.WriteString(fmt.Sprintf("Received %s frame: ", packet.Classify(b)))
		s.WriteString(fmt.Sprintf("len: %d", b.Len()))
		return s.String()
	}
	s.WriteString(fmt.Sprintf("Received %s packet: ", packet.Classify(b)))
	s.WriteString(fmt.Sprintf("src: %s ", ip.SourceAddress()))
	s.WriteString(fmt.Sprintf("dst: %s ", ip.DestinationAddress()))
	s.WriteString(fmt.Sprintf("ttl: %d ", ip.TTL()))
	if tcp, ok := packet.TCP(b); ok {
		s.WriteString(fmt.Sprintf("ports: %d -> %d ", tcp.SourcePort(), tcp.DestinationPort()))
	} else if udp, ok := packet.UDP(b); ok {
		s.WriteString(fmt.Sprintf("ports: %d -> %d ", udp.SourcePort(), udp.DestinationPort()))
	}
	s.WriteString(fmt.Sprintf("len: %d", b.Len()))
	return s.String()
}
