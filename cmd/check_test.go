package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/netaudit/internal/config"
	"grimm.is/netaudit/internal/logging"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestRunCheck_ValidConfig(t *testing.T) {
	path := writeConfig(t, "valid.hcl", `
gateway {
  transport = "loopback"
}
simulator {
  device {
    ip      = "192.168.1.1"
    mac     = "AA:AA:AA:AA:AA:AA"
    gateway = true
  }
}
`)

	var out bytes.Buffer
	require.NoError(t, RunCheck(&out, path, true))
	assert.Contains(t, out.String(), "Configuration valid!")
	assert.Contains(t, out.String(), "Transport: loopback")
	assert.Contains(t, out.String(), "192.168.1.1 AA:AA:AA:AA:AA:AA (gateway)")
}

func TestRunCheck_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "invalid.hcl", `
gateway {
    # Missing closing brace
`)
	assert.Error(t, RunCheck(&bytes.Buffer{}, path, false))
}

func TestRunCheck_SemanticError(t *testing.T) {
	path := writeConfig(t, "bad.yaml", "jammer:\n  command_timeout: soon\n")

	err := RunCheck(&bytes.Buffer{}, path, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestRunCheck_MissingPath(t *testing.T) {
	assert.Error(t, RunCheck(&bytes.Buffer{}, "", false))
}

func TestLoadConfig_DefaultsWhenDefaultFileMissing(t *testing.T) {
	t.Setenv("NETAUDIT_CONFIG_DIR", t.TempDir())

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultListen, cfg.API.Listen)

	_, err = loadConfig(filepath.Join(t.TempDir(), "absent.hcl"))
	assert.Error(t, err)
}

func TestOpenGateway_Loopback(t *testing.T) {
	cfg := config.Default()
	cfg.Gateway.Transport = config.TransportLoopback

	gw, closeFn, err := openGateway(cfg, logging.Default())
	require.NoError(t, err)
	defer closeFn()
	assert.NotNil(t, gw)

	cfg.Gateway.Transport = "carrier-pigeon"
	_, _, err = openGateway(cfg, logging.Default())
	assert.Error(t, err)
}
