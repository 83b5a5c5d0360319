package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "l3engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
l3engine:
  port:
    listen: "127.0.0.1:7000"
    peer: "127.0.0.1:7001"
  local:
    ip: "172.16.0.1"
`), 0644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"validate", "-c", path})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "configuration ok: 172.16.0.1 on 127.0.0.1:7000, peer 127.0.0.1:7001\n", out.String())
}

func TestValidateCommandRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "l3engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
l3engine:
  local:
    ip: "nope"
`), 0644))

	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"validate", "-c", path})
	assert.Error(t, rootCmd.Execute())
}
