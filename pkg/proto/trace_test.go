package proto

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"l3engine/pkg/packet/packettest"
)

func TestSummary(t *testing.T) {
	p := newPool(t)

	udp := packettest.Load(p, packettest.IPv4Frame(17, "10.0.0.2", "10.0.0.1", 8))
	assert.Equal(t, "Received udp packet: src: 10.0.0.2 dst: 10.0.0.1 ttl: 64 ports: 0 -> 0 len: 60", Summary(udp))

	icmp := packettest.Load(p, packettest.EchoRequestFrame("10.0.0.2", "10.0.0.1", 1, 1, nil))
	assert.Equal(t, "Received icmp packet: src: 10.0.0.2 dst: 10.0.0.1 ttl: 64 len: 60", Summary(icmp))

	arp := packettest.Load(p, packettest.ARPFrame(1, packettest.Broadcast, packettest.MACB, "10.0.0.2", "10.0.0.1"))
	assert.Equal(t, "Received arp frame: len: 60", Summary(arp))
}

func TestTraceHandlerFrees(t *testing.T) {
	p := newPool(t)
	var out bytes.Buffer
	h := TraceHandler(slog.New(slog.NewTextHandler(&out, nil)))

	h(packettest.Load(p, packettest.IPv4Frame(6, "10.0.0.2", "10.0.0.1", 20)))
	assert.Contains(t, out.String(), "Received tcp packet")
	assert.Equal(t, 0, p.InUse())
}
