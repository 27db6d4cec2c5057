// Package config loads runtime configuration for the telos-offline daemon.
// Sources are layered: defaults, then a JSON config file, then environment
// variables. Command-line flags (handled by the CLI layer) override all.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds runtime settings for the offline daemon.
type Config struct {
	// ListenAddr is the address the gateway and control endpoints bind to.
	ListenAddr string `json:"listen_addr"`

	// DataDir holds the local database and the cache partitions.
	DataDir string `json:"data_dir"`

	// APIBaseURL is the remote Telos REST API.
	APIBaseURL string `json:"api_base_url"`

	// Origin is the upstream web application the gateway fronts.
	Origin string `json:"origin"`

	// SessionToken is the bearer credential for the remote API.
	SessionToken string `json:"session_token"`

	// CacheVersion tags the gateway cache partitions.
	CacheVersion string `json:"cache_version"`

	// ProbeInterval is how often connectivity is sampled.
	ProbeInterval time.Duration `json:"-"`

	// ProbeIntervalSeconds is the JSON/env representation of ProbeInterval.
	ProbeIntervalSeconds int `json:"probe_interval_seconds"`

	// LogLevel is DEBUG, INFO, WARN, or ERROR.
	LogLevel string `json:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:           "127.0.0.1:8090",
		DataDir:              "./data",
		APIBaseURL:           "https://api.telos.ink",
		Origin:               "https://app.telos.ink",
		CacheVersion:         "v1",
		ProbeInterval:        30 * time.Second,
		ProbeIntervalSeconds: 30,
		LogLevel:             "INFO",
	}
}

// Load builds the configuration: defaults, overlaid by the JSON file at
// path (skipped when path is empty or absent), overlaid by environment
// variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	applyEnv(cfg)

	if cfg.ProbeIntervalSeconds > 0 {
		cfg.ProbeInterval = time.Duration(cfg.ProbeIntervalSeconds) * time.Second
	}

	return cfg, nil
}

// applyEnv overlays TELOS_-prefixed environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("TELOS_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("TELOS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("TELOS_API_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("TELOS_ORIGIN"); v != "" {
		cfg.Origin = v
	}
	if v := os.Getenv("TELOS_SESSION_TOKEN"); v != "" {
		cfg.SessionToken = v
	}
	if v := os.Getenv("TELOS_CACHE_VERSION"); v != "" {
		cfg.CacheVersion = v
	}
	if v := os.Getenv("TELOS_PROBE_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ProbeIntervalSeconds = n
		}
	}
	if v := os.Getenv("TELOS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
