package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicdocs/mosaic/pkg/observability"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MOSAIC_POSTGRES_URL", "postgres://localhost/mosaic")
	t.Setenv("MOSAIC_FGA_API_URL", "http://localhost:8081")
	t.Setenv("MOSAIC_FGA_STORE_ID", "01ARZ3")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 25, cfg.Database.MaxConns)
	assert.Equal(t, 10*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 4, cfg.Sync.Workers)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MOSAIC_PORT", "9000")
	t.Setenv("MOSAIC_SYNC_INTERVAL", "30s")
	t.Setenv("MOSAIC_SYNC_WORKERS", "8")
	t.Setenv("MOSAIC_LOG_LEVEL", "debug")
	t.Setenv("MOSAIC_METRICS_ENABLED", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 8, cfg.Sync.Workers)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.False(t, cfg.Observability.MetricsEnabled)
}

func TestLoadConfigYAMLFileWithEnvOnTop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mosaic.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "7070"
database:
  url: postgres://filehost/mosaic
  max_conns: 50
authz:
  api_url: http://fga.internal:8081
  store_id: 01FILE
sync:
  interval: 1m
`), 0o600))

	t.Setenv("MOSAIC_CONFIG_FILE", path)
	// Environment wins over the file.
	t.Setenv("MOSAIC_PORT", "9000")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "postgres://filehost/mosaic", cfg.Database.URL)
	assert.Equal(t, 50, cfg.Database.MaxConns)
	assert.Equal(t, "01FILE", cfg.Authz.StoreID)
	assert.Equal(t, time.Minute, cfg.Sync.Interval)
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("MOSAIC_CONFIG_FILE", "/nonexistent/mosaic.yaml")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing postgres url",
			mutate:  func(c *Config) { c.Database.URL = "" },
			wantErr: "postgres URL",
		},
		{
			name:    "missing authz api url",
			mutate:  func(c *Config) { c.Authz.APIURL = "" },
			wantErr: "API URL",
		},
		{
			name:    "missing store id",
			mutate:  func(c *Config) { c.Authz.StoreID = "" },
			wantErr: "store ID",
		},
		{
			name:    "non-positive sync interval",
			mutate:  func(c *Config) { c.Sync.Interval = 0 },
			wantErr: "sync interval",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Sync.Workers = 0 },
			wantErr: "workers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Database.URL = "postgres://localhost/mosaic"
			cfg.Authz.APIURL = "http://localhost:8081"
			cfg.Authz.StoreID = "01ARZ3"
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
