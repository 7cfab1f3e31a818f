// Package config loads engine configuration. Defaults are overlaid first by
// an optional TOML file, then by UPDRIFT_* environment variables, so env
// always wins (12-factor deployments never need the file).
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all engine configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Storage   StorageConfig   `toml:"storage"`
	Snapshot  SnapshotConfig  `toml:"snapshot"`
	Logging   LogConfig       `toml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `toml:"host" envconfig:"HOST"`
	Port string `toml:"port" envconfig:"PORT"`
}

// StorageConfig holds artifact store configuration.
type StorageConfig struct {
	Root  string `toml:"root" envconfig:"STORAGE_ROOT"`
	Watch bool   `toml:"watch" envconfig:"STORAGE_WATCH"`
}

// SnapshotConfig holds persistence snapshot configuration.
type SnapshotConfig struct {
	Root     string `toml:"root" envconfig:"SNAPSHOT_ROOT"`
	Compress bool   `toml:"compress" envconfig:"SNAPSHOT_COMPRESS"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `toml:"level" envconfig:"LOG_LEVEL"`
	Development bool   `toml:"development" envconfig:"LOG_DEV"`
}

// RateLimitConfig holds per-IP rate limiting configuration.
type RateLimitConfig struct {
	Enabled           bool `toml:"enabled" envconfig:"RATE_LIMIT_ENABLED"`
	RequestsPerSecond int  `toml:"requests_per_second" envconfig:"RATE_LIMIT_RPS"`
	Burst             int  `toml:"burst" envconfig:"RATE_LIMIT_BURST"`
}

// Default returns the development-friendly defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8600",
		},
		Storage: StorageConfig{
			Root:  "data/artifacts",
			Watch: true,
		},
		Snapshot: SnapshotConfig{
			Root:     "data/state",
			Compress: false,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 100,
			Burst:             200,
		},
	}
}

// Load builds configuration from defaults, an optional TOML file, and the
// environment. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("UPDRIFT", cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}
	return cfg, nil
}
