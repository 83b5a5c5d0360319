package link

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"l3engine/pkg/mbuf"
	"l3engine/pkg/packet/packettest"
)

var loopback = netip.MustParseAddrPort("127.0.0.1:0")

func TestUDPPortExchange(t *testing.T) {
	poolA := newPool(t, 4)
	poolB := newPool(t, 4)

	// b's peer is unknown until a is bound
	b, err := OpenUDPPort("b", loopback, loopback, poolB, 50*time.Millisecond)
	require.NoError(t, err)
	defer b.Close()
	a, err := OpenUDPPort("a", loopback, b.LocalAddr(), poolA, 50*time.Millisecond)
	require.NoError(t, err)
	defer a.Close()

	frame := packettest.ARPFrame(layers.ARPRequest, packettest.Broadcast, packettest.MACB, "10.0.0.2", "10.0.0.1")
	out := []*mbuf.Buf{packettest.Load(poolA, frame)}
	n, err := a.TxBurst(out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, poolA.InUse())

	in := make([]*mbuf.Buf, 8)
	deadline := time.Now().Add(2 * time.Second)
	got := 0
	for got == 0 {
		require.True(t, time.Now().Before(deadline), "no frame received")
		got, err = b.RxBurst(in)
		require.NoError(t, err)
	}
	require.Equal(t, 1, got)
	assert.Equal(t, frame, in[0].Bytes())
	assert.True(t, IsARPRequestFor(in[0], ip1))
	in[0].Free()
	assert.Equal(t, 0, poolB.InUse())
}

func TestUDPPortRxTimeout(t *testing.T) {
	p := newPool(t, 2)
	port, err := OpenUDPPort("idle", loopback, loopback, p, 10*time.Millisecond)
	require.NoError(t, err)
	defer port.Close()

	n, err := port.RxBurst(make([]*mbuf.Buf, 4))
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, p.InUse())

	n, err = port.RxBurst(nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUDPPortClosed(t *testing.T) {
	p := newPool(t, 2)
	port, err := OpenUDPPort("closed", loopback, loopback, p, 0)
	require.NoError(t, err)
	assert.Equal(t, "closed", port.Name())

	require.NoError(t, port.Close())
	assert.NoError(t, port.Close())

	_, err = port.RxBurst(make([]*mbuf.Buf, 1))
	assert.True(t, errors.Is(err, ErrPortClosed))

	b := packettest.Load(p, packettest.IPv4Frame(17, "10.0.0.2", "10.0.0.1", 8))
	n, err := port.TxBurst([]*mbuf.Buf{b})
	assert.True(t, errors.Is(err, ErrPortClosed))
	assert.Equal(t, 0, n)
	// unsent buffers stay with the caller
	assert.Equal(t, 1, p.InUse())
}

func TestUDPPortNoBuffers(t *testing.T) {
	p := newPool(t, 1)
	held, err := p.Alloc()
	require.NoError(t, err)
	defer held.Free()

	port, err := OpenUDPPort("starved", loopback, loopback, p, 10*time.Millisecond)
	require.NoError(t, err)
	defer port.Close()

	_, err = port.RxBurst(make([]*mbuf.Buf, 1))
	assert.True(t, errors.Is(err, mbuf.ErrNoBuf))
}

func TestUDPPortDropsOversized(t *testing.T) {
	p, err := mbuf.NewPool("small", 2, 64)
	require.NoError(t, err)
	port, err := OpenUDPPort("small", loopback, loopback, p, 50*time.Millisecond)
	require.NoError(t, err)
	defer port.Close()

	conn, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(port.LocalAddr()))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(make([]byte, 100))
	require.NoError(t, err)
	frame := packettest.ARPFrame(layers.ARPRequest, packettest.Broadcast, packettest.MACB, "10.0.0.2", "10.0.0.1")
	_, err = conn.Write(frame)
	require.NoError(t, err)

	in := make([]*mbuf.Buf, 1)
	deadline := time.Now().Add(2 * time.Second)
	got := 0
	for got == 0 {
		require.True(t, time.Now().Before(deadline), "no frame received")
		got, err = port.RxBurst(in)
		require.NoError(t, err)
	}
	// the 100 byte datagram never shows up
	assert.Equal(t, frame, in[0].Bytes())
	assert.Equal(t, uint64(1), port.Oversized())
	in[0].Free()
	assert.Equal(t, 0, p.InUse())
}
