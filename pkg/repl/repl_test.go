package repl

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/netstack/tcpip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"l3engine/pkg/engine"
	"l3engine/pkg/mbuf"
)

type idlePort struct{}

func (idlePort) Name() string                          { return "vnet0" }
func (idlePort) RxBurst(bufs []*mbuf.Buf) (int, error) { return 0, nil }
func (idlePort) TxBurst(bufs []*mbuf.Buf) (int, error) { return len(bufs), nil }
func (idlePort) Close() error                          { return nil }

func run(t *testing.T, input string) string {
	t.Helper()
	pool, err := mbuf.NewPool("repl", 16, 2048)
	require.NoError(t, err)
	held, err := pool.Alloc()
	require.NoError(t, err)
	defer held.Free()

	e := engine.New(idlePort{}, pool, engine.Config{
		LocalIP:   0x0a000001,
		LocalMAC:  tcpip.LinkAddress("\x02\x00\x00\x00\x00\x01"),
		EchoReply: true,
	}, nil)

	var out bytes.Buffer
	CreateREPL(e, strings.NewReader(input), &out).StartREPL()
	return out.String()
}

func TestInfo(t *testing.T) {
	out := run(t, "info\n")
	assert.Contains(t, out, "vnet0")
	assert.Contains(t, out, "10.0.0.1")
	assert.Contains(t, out, "02:00:00:00:00:01")
	assert.Contains(t, out, "workers 1, burst 32, rings 512")
}

func TestPoolAndStats(t *testing.T) {
	out := run(t, "pool\nstats\n")
	assert.Contains(t, out, "repl       16     15     1      2048\n")
	assert.Contains(t, out, "rx ring 0, tx ring 0 queued")
	assert.Contains(t, out, "arp replies     0\n")
}

func TestEchoHelpAndUnknown(t *testing.T) {
	out := run(t, "echo hello  world\n\nhelp\nfoo\n")
	assert.Contains(t, out, "hello world\n")
	assert.Contains(t, out, "Packet counters")
	assert.Contains(t, out, "Command not supported")
}

func TestExitStopsReading(t *testing.T) {
	out := run(t, "exit\necho after\n")
	assert.NotContains(t, out, "after")
	assert.Equal(t, PROMPT, out)
}
