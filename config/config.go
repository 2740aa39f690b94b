// Package config manages application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration for the proxy service.
// Quota thresholds and per-endpoint costs are provider-defined constants
// in the quota and youtube packages, not configuration.
type Config struct {
	// ListenAddr is the address the HTTP server binds to
	ListenAddr string `json:"listen_addr"`

	// APIKeys is the ordered pool of YouTube Data API keys. Pool order
	// determines rotation order and is stable across restarts.
	APIKeys []string `json:"api_keys"`

	// RedisAddr is the host:port of the Redis used to persist usage
	// state. Empty disables persistence (in-memory only).
	RedisAddr string `json:"redis_addr"`
	// RedisPassword is optional
	RedisPassword string `json:"redis_password"`
	// RedisDB selects the Redis logical database
	RedisDB int `json:"redis_db"`
	// RedisKeyPrefix namespaces all persisted keys
	RedisKeyPrefix string `json:"redis_key_prefix"`

	// UpstreamTimeout is the per-request timeout for Data API calls
	UpstreamTimeout time.Duration `json:"upstream_timeout"`
	// UpstreamRPS caps outbound requests per second (0 = uncapped)
	UpstreamRPS float64 `json:"upstream_rps"`

	// PaceMin and PaceMax bound the random delay inserted before each
	// upstream call (PaceMax 0 disables pacing)
	PaceMin time.Duration `json:"pace_min"`
	PaceMax time.Duration `json:"pace_max"`

	// ReadTimeout, WriteTimeout, and IdleTimeout configure the inbound
	// HTTP server
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `json:"log_level"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      ":8000",
		RedisAddr:       "redis:6379",
		RedisKeyPrefix:  "youtube_api:",
		UpstreamTimeout: 10 * time.Second,
		UpstreamRPS:     0,
		PaceMin:         50 * time.Millisecond,
		PaceMax:         250 * time.Millisecond,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		LogLevel:        "info",
	}
}

// Load loads configuration from environment variables, config file, and
// applies defaults. Priority: env vars > config file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(); err != nil {
		// Config file is optional
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile attempts to load config from ytproxy.json in the current
// directory or the user config directory.
func (c *Config) loadFromFile() error {
	paths := []string{
		"ytproxy.json",
		filepath.Join(os.Getenv("HOME"), ".config", "ytproxy", "ytproxy.json"),
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}

		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}

	return os.ErrNotExist
}

// loadFromEnv overrides config with environment variables.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("YTPROXY_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("YTPROXY_API_KEYS"); v != "" {
		c.APIKeys = splitKeys(v)
	}
	if v := os.Getenv("YTPROXY_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("YTPROXY_REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("YTPROXY_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RedisDB = n
		}
	}
	if v := os.Getenv("YTPROXY_REDIS_PREFIX"); v != "" {
		c.RedisKeyPrefix = v
	}
	if v := os.Getenv("YTPROXY_UPSTREAM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.UpstreamTimeout = d
		}
	}
	if v := os.Getenv("YTPROXY_UPSTREAM_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.UpstreamRPS = f
		}
	}
	if v := os.Getenv("YTPROXY_PACE_MIN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PaceMin = d
		}
	}
	if v := os.Getenv("YTPROXY_PACE_MAX"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PaceMax = d
		}
	}
	if v := os.Getenv("YTPROXY_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// splitKeys parses a comma-separated API key list, dropping empty
// entries so a trailing comma doesn't produce an unusable credential.
func splitKeys(v string) []string {
	parts := strings.Split(v, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if k := strings.TrimSpace(p); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Validate checks that configuration values are valid and consistent.
// It returns an error if any configuration value is invalid.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if len(c.APIKeys) == 0 {
		return fmt.Errorf("at least one api key is required (set YTPROXY_API_KEYS)")
	}
	for i, k := range c.APIKeys {
		if k == "" {
			return fmt.Errorf("api key %d is empty", i)
		}
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream_timeout must be positive")
	}
	if c.UpstreamRPS < 0 {
		return fmt.Errorf("upstream_rps must be non-negative")
	}
	if c.PaceMin < 0 || c.PaceMax < 0 {
		return fmt.Errorf("pacing delays must be non-negative")
	}
	if c.PaceMax > 0 && c.PaceMin > c.PaceMax {
		return fmt.Errorf("pace_min must be <= pace_max")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}
	return nil
}
