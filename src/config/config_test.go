package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tickstream/src/helpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
name: "tickstream-test"
host: "127.0.0.1"
port: 8000
log_level: "error"
storage:
  db_type: "sqlite"
  db_path: "data/test.db"
broker:
  api_base_url: "https://api.broker.test"
  login_url: "https://broker.test/login"
  feed_url: "wss://feed.broker.test"
  timeout: 7
  retries: 3
  rate_limit_per_sec: 3
  exchanges: ["NSE"]
engine:
  broadcast_interval_seconds: 1
  reconcile_interval_seconds: 15
  range_ttl_hours: 24
  fetch_timeout_ms: 800
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewConfigValid(t *testing.T) {
	cfg, err := NewConfig(writeConfigFile(t, validYAML), "")
	require.NoError(t, err)

	assert.Equal(t, "tickstream-test", cfg.Name)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "sqlite", cfg.Storage.DBType)
	assert.Equal(t, []string{"NSE"}, cfg.Broker.Exchanges)
	assert.Equal(t, 800, cfg.Engine.FetchTimeoutMs)
}

func TestNewConfigMissingFile(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "nope.yaml"), "")
	require.Error(t, err)

	var cfgErr *helpers.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestNewConfigMalformedYAML(t *testing.T) {
	_, err := NewConfig(writeConfigFile(t, "name: [unclosed"), "")
	require.Error(t, err)

	var cfgErr *helpers.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestNewConfigInvalidValues(t *testing.T) {
	bad := `
name: "tickstream-test"
host: "127.0.0.1"
port: 80
`
	_, err := NewConfig(writeConfigFile(t, bad), "")
	require.Error(t, err)

	var valErr *helpers.ValidationError
	assert.True(t, errors.As(err, &valErr))
}
