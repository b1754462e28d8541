// Package config loads runtime configuration from an optional YAML file and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration shared by the desktop server, the FFI bridge
// and the CLI.
type Config struct {
	DataDir    string `yaml:"data_dir"`
	PhotoDir   string `yaml:"photo_dir"`
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`
	// Secret derives the key that encrypts the API session token at rest.
	Secret string `yaml:"secret"`

	API          APIConfig          `yaml:"api"`
	Sync         SyncConfig         `yaml:"sync"`
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`
}

// APIConfig configures the remote marketplace API.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// SyncConfig configures the upload queue drain.
type SyncConfig struct {
	Interval      time.Duration `yaml:"interval"`
	MaxAttempts   int           `yaml:"max_attempts"`
	ProbeURL      string        `yaml:"probe_url"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

// HousekeepingConfig configures the periodic maintenance job.
type HousekeepingConfig struct {
	Schedule              string        `yaml:"schedule"`
	PendingGrace          time.Duration `yaml:"pending_grace"`
	NotificationRetention time.Duration `yaml:"notification_retention"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:    "./data",
		ListenAddr: "127.0.0.1:8090",
		LogLevel:   "info",
		API: APIConfig{
			BaseURL: "http://localhost:54321",
			Timeout: 30 * time.Second,
		},
		Sync: SyncConfig{
			Interval:      time.Minute,
			MaxAttempts:   5,
			ProbeInterval: 15 * time.Second,
		},
		Housekeeping: HousekeepingConfig{
			Schedule:              "@every 6h",
			PendingGrace:          time.Hour,
			NotificationRetention: 30 * 24 * time.Hour,
		},
	}
}

// Load reads the YAML file at path (if non-empty), applies environment overrides and
// fills derived defaults. A missing file at an explicit path is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if cfg.PhotoDir == "" {
		cfg.PhotoDir = filepath.Join(cfg.DataDir, "photos")
	}
	if cfg.Sync.ProbeURL == "" {
		cfg.Sync.ProbeURL = strings.TrimRight(cfg.API.BaseURL, "/") + "/health"
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides file values with PROPSNAP_* variables. DB_PATH is honored as an
// alias for the data directory.
func applyEnv(cfg *Config) {
	cfg.DataDir = getEnv("DB_PATH", cfg.DataDir)
	cfg.DataDir = getEnv("PROPSNAP_DATA_DIR", cfg.DataDir)
	cfg.PhotoDir = getEnv("PROPSNAP_PHOTO_DIR", cfg.PhotoDir)
	cfg.ListenAddr = getEnv("PROPSNAP_LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogLevel = getEnv("PROPSNAP_LOG_LEVEL", cfg.LogLevel)
	cfg.Secret = getEnv("PROPSNAP_SECRET", cfg.Secret)
	cfg.API.BaseURL = getEnv("PROPSNAP_API_URL", cfg.API.BaseURL)
	cfg.Sync.ProbeURL = getEnv("PROPSNAP_PROBE_URL", cfg.Sync.ProbeURL)
	cfg.Sync.Interval = getEnvDuration("PROPSNAP_SYNC_INTERVAL", cfg.Sync.Interval)
	cfg.Sync.MaxAttempts = getEnvInt("PROPSNAP_MAX_ATTEMPTS", cfg.Sync.MaxAttempts)
}

// Validate checks the configuration for values the core cannot run with.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive, got %s", c.Sync.Interval)
	}
	if c.Sync.MaxAttempts <= 0 {
		return fmt.Errorf("sync.max_attempts must be positive, got %d", c.Sync.MaxAttempts)
	}
	if c.Sync.ProbeInterval <= 0 {
		return fmt.Errorf("sync.probe_interval must be positive, got %s", c.Sync.ProbeInterval)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
