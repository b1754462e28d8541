package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad_defaults verifies defaults and derived paths without a file.
func TestLoad_defaults(t *testing.T) {
	t.Setenv("DB_PATH", "")
	t.Setenv("PROPSNAP_DATA_DIR", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, filepath.Join("./data", "photos"), cfg.PhotoDir)
	assert.Equal(t, time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 5, cfg.Sync.MaxAttempts)
	assert.Equal(t, "http://localhost:54321/health", cfg.Sync.ProbeURL)
}

// TestLoad_file verifies YAML parsing including durations.
func TestLoad_file(t *testing.T) {
	path := filepath.Join(t.TempDir(), "propsnap.yaml")
	content := `
data_dir: /var/lib/propsnap
api:
  base_url: https://api.example.com/
  timeout: 10s
sync:
  interval: 2m
  max_attempts: 3
housekeeping:
  schedule: "@daily"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/propsnap", cfg.DataDir)
	assert.Equal(t, "https://api.example.com/", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 3, cfg.Sync.MaxAttempts)
	assert.Equal(t, "@daily", cfg.Housekeeping.Schedule)
	assert.Equal(t, "https://api.example.com/health", cfg.Sync.ProbeURL)
	// Unset keys keep their defaults.
	assert.Equal(t, 15*time.Second, cfg.Sync.ProbeInterval)
}

// TestLoad_envOverrides verifies environment variables win over the file.
func TestLoad_envOverrides(t *testing.T) {
	t.Setenv("PROPSNAP_DATA_DIR", "/tmp/override")
	t.Setenv("PROPSNAP_SYNC_INTERVAL", "30s")
	t.Setenv("PROPSNAP_MAX_ATTEMPTS", "7")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/override", cfg.DataDir)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 7, cfg.Sync.MaxAttempts)
}

// TestLoad_missingFile verifies an explicit path must exist.
func TestLoad_missingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

// TestValidate verifies rejected values.
func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"empty api url", func(c *Config) { c.API.BaseURL = "" }},
		{"zero interval", func(c *Config) { c.Sync.Interval = 0 }},
		{"zero attempts", func(c *Config) { c.Sync.MaxAttempts = 0 }},
		{"zero probe interval", func(c *Config) { c.Sync.ProbeInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
