package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "eth0", cfg.Interface)
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, 5*time.Second, cfg.ReportInterval)
	assert.Equal(t, 65535, cfg.SnapLen)
	assert.Equal(t, 8192, cfg.Tables.Connections)
	assert.Equal(t, 64, cfg.Tables.Devices)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
interface: ens3
server_addr: ":9090"
api_key: hunter2
report_interval: 10s
log_level: debug
tables:
  connections: 16384
docker_discovery: true
docker_labels:
  xnet.monitor: "true"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ens3", cfg.Interface)
	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "hunter2", cfg.APIKey)
	assert.Equal(t, 10*time.Second, cfg.ReportInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 16384, cfg.Tables.Connections)
	assert.True(t, cfg.DockerDiscovery)
	assert.Equal(t, "true", cfg.DockerLabels["xnet.monitor"])
	// Untouched fields keep their defaults.
	assert.Equal(t, 8, cfg.BufferSizeMB)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("interface: [unterminated"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
