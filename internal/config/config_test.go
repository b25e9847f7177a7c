package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, ":8020", c.ServerAddr)
	assert.Equal(t, 2*time.Second, c.Session.DebounceWindow)
	assert.Equal(t, 30*time.Minute, c.Session.IdleTTL)
	assert.Equal(t, SubmitModeDirect, c.Session.SubmitMode)
	assert.Equal(t, []string{"localhost:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Tracing.Enabled)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9000")
	t.Setenv("SCAN_DEBOUNCE_WINDOW", "500ms")
	t.Setenv("SESSION_IDLE_TTL", "5m")
	t.Setenv("SUBMIT_MODE", "temporal")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("STOW_SERVICE_URL", "http://stow:8011")
	t.Setenv("TRACING_ENABLED", "false")

	c, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, ":9000", c.ServerAddr)
	assert.Equal(t, 500*time.Millisecond, c.Session.DebounceWindow)
	assert.Equal(t, 5*time.Minute, c.Session.IdleTTL)
	assert.Equal(t, SubmitModeTemporal, c.Session.SubmitMode)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "http://stow:8011", c.Services.Stow)
	assert.False(t, c.Tracing.Enabled)
}

func TestLoad_FileWithEnvironmentOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scanner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_addr: ":7000"
session:
  debounce_window: 1s
  submit_mode: temporal
services:
  inventory_url: http://inventory:8008
mongodb:
  database: scanner_test
`), 0o600))
	t.Setenv("SERVER_ADDR", ":7100")

	c, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, ":7100", c.ServerAddr, "environment wins over the file")
	assert.Equal(t, time.Second, c.Session.DebounceWindow)
	assert.Equal(t, SubmitModeTemporal, c.Session.SubmitMode)
	assert.Equal(t, "http://inventory:8008", c.Services.Inventory)
	assert.Equal(t, "scanner_test", c.MongoDB.Database)
	assert.Equal(t, "mongodb://localhost:27017", c.MongoDB.URI)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown submit mode", map[string]string{"SUBMIT_MODE": "carrier-pigeon"}},
		{"negative debounce", map[string]string{"SCAN_DEBOUNCE_WINDOW": "-1s"}},
		{"zero idle ttl", map[string]string{"SESSION_IDLE_TTL": "0s"}},
		{"zero sweep interval", map[string]string{"SESSION_SWEEP_INTERVAL": "0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load("")

			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Error(t, err)
}
