package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
endpoint:
  id: demo-server
  secret_key: ${TEST_SECRET_KEY}
  target_origin: "*"
  allowed_origins:
    - https://app.example.com
  strict: true
  heartbeat_interval: 20s
  max_concurrent_per_client: 8

timeouts:
  ack: 2s
  response: 15s
  async: 90s

bridge:
  listen_addr: ":8088"
  read_timeout: 5s
  write_timeout: 5s

trace_level: debug
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	t.Setenv("TEST_SECRET_KEY", "my-secret-key")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "demo-server", cfg.Endpoint.ID)
	assert.Equal(t, "my-secret-key", cfg.Endpoint.SecretKey)
	assert.Equal(t, "*", cfg.Endpoint.TargetOrigin)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Endpoint.AllowedOrigins)
	assert.True(t, cfg.Endpoint.Strict)
	assert.Equal(t, 20*time.Second, cfg.Endpoint.HeartbeatInterval)
	assert.Equal(t, 8, cfg.Endpoint.MaxConcurrentPerClient)

	assert.Equal(t, 2*time.Second, cfg.Timeouts.Ack)
	assert.Equal(t, 15*time.Second, cfg.Timeouts.Response)
	assert.Equal(t, 90*time.Second, cfg.Timeouts.Async)

	assert.Equal(t, ":8088", cfg.Bridge.ListenAddr)
	assert.Equal(t, "debug", cfg.TraceLevel)
}

func TestLoadEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
endpoint:
  id: demo-server
bridge:
  listen_addr: ":8080"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	t.Setenv("BRIDGEHUB_BRIDGE_LISTEN_ADDR", ":3000")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Bridge.ListenAddr)
}

func TestLoadAppliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	err := os.WriteFile(configPath, []byte("endpoint:\n  id: demo-server\n"), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.Endpoint.HeartbeatInterval)
	assert.Equal(t, 32, cfg.Endpoint.MaxConcurrentPerClient)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Ack)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Response)
	assert.Equal(t, 2*time.Minute, cfg.Timeouts.Async)
	assert.Equal(t, "info", cfg.TraceLevel)
}
