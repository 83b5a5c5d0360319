package capture

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"l3engine/pkg/mbuf"
	"l3engine/pkg/packet/packettest"
)

func TestWriteBufReadBack(t *testing.T) {
	pool, err := mbuf.NewPool("capture", 4, 2048)
	require.NoError(t, err)

	var out bytes.Buffer
	w, err := New(&out, 0)
	require.NoError(t, err)

	frame := packettest.ARPFrame(layers.ARPRequest, packettest.Broadcast, packettest.MACB, "10.0.0.2", "10.0.0.1")
	b := packettest.Load(pool, frame)
	ts := time.Unix(1700000000, 0)
	require.NoError(t, w.WriteBuf(b, ts))
	require.NoError(t, w.WriteBuf(b, ts.Add(time.Second)))
	assert.Equal(t, 2, w.Count())
	require.NoError(t, w.Close())

	r, err := pcapgo.NewReader(&out)
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeEthernet, r.LinkType())

	data, ci, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, frame, data)
	assert.Equal(t, len(frame), ci.Length)
	assert.True(t, ts.Equal(ci.Timestamp))

	_, _, err = r.ReadPacketData()
	require.NoError(t, err)
	_, _, err = r.ReadPacketData()
	assert.Equal(t, io.EOF, err)
}

func TestWriteBufSnaplen(t *testing.T) {
	pool, err := mbuf.NewPool("capture", 1, 2048)
	require.NoError(t, err)

	var out bytes.Buffer
	w, err := New(&out, 20)
	require.NoError(t, err)

	frame := packettest.IPv4Frame(17, "10.0.0.2", "10.0.0.1", 100)
	require.NoError(t, w.WriteBuf(packettest.Load(pool, frame), time.Now()))

	r, err := pcapgo.NewReader(&out)
	require.NoError(t, err)
	data, ci, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, frame[:20], data)
	assert.Equal(t, len(frame), ci.Length)
}

func TestOpenAndClose(t *testing.T) {
	pool, err := mbuf.NewPool("capture", 1, 2048)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "tap.pcap")

	w, err := Open(path, 0)
	require.NoError(t, err)
	b := packettest.Load(pool, packettest.IPv4Frame(6, "10.0.0.2", "10.0.0.1", 20))
	require.NoError(t, w.WriteBuf(b, time.Now()))
	require.NoError(t, w.Close())
	assert.Error(t, w.WriteBuf(b, time.Now()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r, err := pcapgo.NewReader(f)
	require.NoError(t, err)
	data, _, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, b.Bytes(), data)

	_, err = Open(filepath.Join(t.TempDir(), "missing", "tap.pcap"), 0)
	assert.Error(t, err)
}
