// Package config loads service configuration from an optional TOML file and
// environment variables. Environment variables win over file values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the ledger service configuration.
type Config struct {
	ListenAddr       string
	DBPath           string
	CacheTTL         time.Duration
	SpendMaxAttempts int
	IdempotencyTTL   time.Duration
	JanitorInterval  time.Duration
	MetricsEnabled   bool

	// GeneratorURL is the upstream content-generation endpoint. Empty disables
	// the metered generation API; the ledger endpoints stay available.
	GeneratorURL string
}

// fileConfig mirrors Config for TOML decoding; durations are strings so the
// file can say "30s" rather than nanosecond integers.
type fileConfig struct {
	ListenAddr       string `toml:"listen_addr"`
	DBPath           string `toml:"db_path"`
	CacheTTL         string `toml:"cache_ttl"`
	SpendMaxAttempts int    `toml:"spend_max_attempts"`
	IdempotencyTTL   string `toml:"idempotency_ttl"`
	JanitorInterval  string `toml:"janitor_interval"`
	MetricsEnabled   *bool  `toml:"metrics_enabled"`
	GeneratorURL     string `toml:"generator_url"`
}

// defaults returns the baseline configuration before file and env overrides.
func defaults() *Config {
	return &Config{
		ListenAddr:       "127.0.0.1:8080",
		DBPath:           "creditledger.db",
		CacheTTL:         30 * time.Second,
		SpendMaxAttempts: 3,
		IdempotencyTTL:   24 * time.Hour,
		JanitorInterval:  time.Hour,
		MetricsEnabled:   true,
	}
}

// Load builds the configuration: defaults, then the TOML file named by
// CREDITLEDGER_CONFIG (if set), then CREDITLEDGER_* environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	if path, ok := os.LookupEnv("CREDITLEDGER_CONFIG"); ok && path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.SpendMaxAttempts < 1 {
		return nil, fmt.Errorf("spend_max_attempts must be at least 1, got %d", cfg.SpendMaxAttempts)
	}

	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}

	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.DBPath != "" {
		cfg.DBPath = fc.DBPath
	}
	if fc.SpendMaxAttempts != 0 {
		cfg.SpendMaxAttempts = fc.SpendMaxAttempts
	}
	if fc.MetricsEnabled != nil {
		cfg.MetricsEnabled = *fc.MetricsEnabled
	}
	if fc.GeneratorURL != "" {
		cfg.GeneratorURL = fc.GeneratorURL
	}

	var err error
	if cfg.CacheTTL, err = overrideDuration(cfg.CacheTTL, fc.CacheTTL, "cache_ttl"); err != nil {
		return err
	}
	if cfg.IdempotencyTTL, err = overrideDuration(cfg.IdempotencyTTL, fc.IdempotencyTTL, "idempotency_ttl"); err != nil {
		return err
	}
	if cfg.JanitorInterval, err = overrideDuration(cfg.JanitorInterval, fc.JanitorInterval, "janitor_interval"); err != nil {
		return err
	}

	return nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("CREDITLEDGER_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("CREDITLEDGER_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := os.LookupEnv("CREDITLEDGER_GENERATOR_URL"); ok {
		cfg.GeneratorURL = v
	}

	var err error
	if cfg.CacheTTL, err = overrideDuration(cfg.CacheTTL, os.Getenv("CREDITLEDGER_CACHE_TTL"), "CREDITLEDGER_CACHE_TTL"); err != nil {
		return err
	}
	if cfg.IdempotencyTTL, err = overrideDuration(cfg.IdempotencyTTL, os.Getenv("CREDITLEDGER_IDEMPOTENCY_TTL"), "CREDITLEDGER_IDEMPOTENCY_TTL"); err != nil {
		return err
	}
	if cfg.JanitorInterval, err = overrideDuration(cfg.JanitorInterval, os.Getenv("CREDITLEDGER_JANITOR_INTERVAL"), "CREDITLEDGER_JANITOR_INTERVAL"); err != nil {
		return err
	}

	if v, ok := os.LookupEnv("CREDITLEDGER_SPEND_MAX_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CREDITLEDGER_SPEND_MAX_ATTEMPTS has invalid value %q: %w", v, err)
		}
		cfg.SpendMaxAttempts = n
	}
	if v, ok := os.LookupEnv("CREDITLEDGER_METRICS_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CREDITLEDGER_METRICS_ENABLED has invalid value %q: %w", v, err)
		}
		cfg.MetricsEnabled = b
	}

	return nil
}

// overrideDuration parses raw as a duration when non-empty, otherwise keeps
// the current value.
func overrideDuration(current time.Duration, raw, name string) (time.Duration, error) {
	if raw == "" {
		return current, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", name, raw, err)
	}
	return d, nil
}
