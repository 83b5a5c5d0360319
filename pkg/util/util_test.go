package util

import (
	"bytes"
	"log/slog"
	"net/netip"
	"testing"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIPv4(t *testing.T) {
	v, err := ParseIPv4("10.0.0.1")
	require.NoError(t, err)
	if v != 0x0a000001 {
		t.Fatalf("ParseIPv4 error, want %#x, received %#x", 0x0a000001, v)
	}

	v, err = ParseIPv4("192.168.1.254")
	require.NoError(t, err)
	assert.Equal(t, uint32(0xc0a801fe), v)

	for _, bad := range []string{"", "10.0.0", "10.0.0.256", "::1", "::ffff:10.0.0.1", "010.0.0.1", "hello"} {
		_, err := ParseIPv4(bad)
		assert.True(t, errors.Is(err, ErrBadIPv4), bad)
	}
}

func TestFormatIPv4(t *testing.T) {
	assert.Equal(t, "10.0.0.2", FormatIPv4(0x0a000002))
	assert.Equal(t, "255.255.255.255", FormatIPv4(0xffffffff))

	v, err := ParseIPv4(FormatIPv4(0xc0a80001))
	require.NoError(t, err)
	assert.Equal(t, uint32(0xc0a80001), v)
}

func TestByteOrderHelpers(t *testing.T) {
	b := Uint32ToIPv4(0x0a000001)
	assert.Equal(t, [4]byte{10, 0, 0, 1}, b)
	assert.Equal(t, uint32(0x0a000001), IPv4ToUint32(b[:]))
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), AddrFromUint32(0x0a000001))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestPrettyHandler(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	h := NewPrettyHandler(&out, PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{Level: slog.LevelInfo},
	})
	l := slog.New(h).With("port", "port0")

	l.Debug("hidden")
	l.Info("arp reply sent", "tip", "10.0.0.2")

	s := out.String()
	assert.NotContains(t, s, "hidden")
	assert.Contains(t, s, "INFO:")
	assert.Contains(t, s, "arp reply sent")
	assert.Contains(t, s, "port=port0")
	assert.Contains(t, s, "tip=10.0.0.2")
}

func TestPrettyHandlerGroup(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	h := NewPrettyHandler(&out, PrettyHandlerOptions{})
	l := slog.New(h).With("port", "port0").WithGroup("arp").With("op", "reply")

	l.Info("sent", "tip", "10.0.0.2")

	s := out.String()
	assert.Contains(t, s, "port=port0")
	assert.Contains(t, s, "arp.op=reply")
	assert.Contains(t, s, "arp.tip=10.0.0.2")
	assert.NotContains(t, s, "{")
	assert.Same(t, h, h.WithGroup(""))
}
