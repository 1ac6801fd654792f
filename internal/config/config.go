// Package config loads tool configuration: defaults, then an optional YAML
// file, then STOCKBOOK_* environment variables. A .env file in the working
// directory is folded into the environment first.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Retry tunes the store contention backoff.
type Retry struct {
	BaseMS      int `yaml:"base_ms"`
	MaxAttempts int `yaml:"max_attempts"`
}

// Base returns the backoff base as a duration.
func (r Retry) Base() time.Duration {
	return time.Duration(r.BaseMS) * time.Millisecond
}

// Config is the full tool configuration.
type Config struct {
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`
	Retry    Retry  `yaml:"retry"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		DBPath:   "stockbook.db",
		LogLevel: "info",
		Retry:    Retry{BaseMS: 100, MaxAttempts: 12},
	}
}

// Load builds the effective configuration. path may be empty, meaning no
// config file; a named file that does not exist is an error.
func Load(path string) (Config, error) {
	// Best-effort: absence of a .env file is the common case.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if cfg.Retry.MaxAttempts <= 0 {
		return Config{}, fmt.Errorf("retry max_attempts must be positive, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseMS <= 0 {
		return Config{}, fmt.Errorf("retry base_ms must be positive, got %d", cfg.Retry.BaseMS)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("STOCKBOOK_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("STOCKBOOK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STOCKBOOK_RETRY_BASE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retry.BaseMS = n
		}
	}
	if v := os.Getenv("STOCKBOOK_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retry.MaxAttempts = n
		}
	}
}
