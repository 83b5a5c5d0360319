package packet

import (
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"l3engine/pkg/mbuf"
)

// Describe decodes the whole frame with gopacket and returns the layer names,
// e.g. "Ethernet/IPv4/ICMPv4/Payload". Debug logging only: it allocates.
func Describe(b *mbuf.Buf) string {
	if b == nil || b.Len() == 0 {
		return "empty"
	}
	p := gopacket.NewPacket(b.Bytes(), layers.LayerTypeEthernet, gopacket.DecodeOptions{
		Lazy:   true,
		NoCopy: true,
	})
	names := make([]string, 0, 4)
	for _, l := range p.Layers() {
		names = append(names, l.LayerType().String())
	}
	if errLayer := p.ErrorLayer(); errLayer != nil {
		names = append(names, "malformed")
	}
	return strings.Join(names, "/")
}
