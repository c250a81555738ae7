package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines configuration for the nuke CLI.
type Config struct {
	OutputDir      string      `yaml:"output_dir"`
	FetchWorkers   int         `yaml:"fetch_workers"`
	ProcessWorkers int         `yaml:"process_workers"`
	CacheBytes     int64       `yaml:"cache_bytes"`
	RateLimit      bool        `yaml:"rate_limit"`
	Progressive    bool        `yaml:"progressive"`
	NoResume       bool        `yaml:"no_resume"`
	ResizeWidth    int         `yaml:"resize_width"`
	ResizeHeight   int         `yaml:"resize_height"`
	Retry          RetryConfig `yaml:"retry"`
}

// RetryConfig defines retry behavior for the HTTP loader.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		OutputDir:      ".",
		FetchWorkers:   6,
		ProcessWorkers: 2,
		CacheBytes:     64 << 20,
		Retry: RetryConfig{
			Attempts:   3,
			Backoff:    500 * time.Millisecond,
			MaxBackoff: 10 * time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations.
type yamlConfig struct {
	OutputDir      string          `yaml:"output_dir"`
	FetchWorkers   int             `yaml:"fetch_workers"`
	ProcessWorkers int             `yaml:"process_workers"`
	CacheBytes     int64           `yaml:"cache_bytes"`
	RateLimit      bool            `yaml:"rate_limit"`
	Progressive    bool            `yaml:"progressive"`
	NoResume       bool            `yaml:"no_resume"`
	ResizeWidth    int             `yaml:"resize_width"`
	ResizeHeight   int             `yaml:"resize_height"`
	Retry          yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.OutputDir != "" {
		cfg.OutputDir = yc.OutputDir
	}
	if yc.FetchWorkers != 0 {
		cfg.FetchWorkers = yc.FetchWorkers
	}
	if yc.ProcessWorkers != 0 {
		cfg.ProcessWorkers = yc.ProcessWorkers
	}
	if yc.CacheBytes != 0 {
		cfg.CacheBytes = yc.CacheBytes
	}
	cfg.RateLimit = yc.RateLimit
	cfg.Progressive = yc.Progressive
	cfg.NoResume = yc.NoResume
	cfg.ResizeWidth = yc.ResizeWidth
	cfg.ResizeHeight = yc.ResizeHeight
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	if yc.Retry.Backoff != "" {
		d, err := time.ParseDuration(yc.Retry.Backoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff: %w", err)
		}
		cfg.Retry.Backoff = d
	}
	if yc.Retry.MaxBackoff != "" {
		d, err := time.ParseDuration(yc.Retry.MaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.max_backoff: %w", err)
		}
		cfg.Retry.MaxBackoff = d
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the NUKE_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("NUKE_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("NUKE_FETCH_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse NUKE_FETCH_WORKERS: %w", err)
		}
		c.FetchWorkers = n
	}
	if v := os.Getenv("NUKE_PROCESS_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse NUKE_PROCESS_WORKERS: %w", err)
		}
		c.ProcessWorkers = n
	}
	if v := os.Getenv("NUKE_CACHE_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse NUKE_CACHE_BYTES: %w", err)
		}
		c.CacheBytes = n
	}
	if v := os.Getenv("NUKE_RATE_LIMIT"); v != "" {
		c.RateLimit = v == "true" || v == "1"
	}
	if v := os.Getenv("NUKE_PROGRESSIVE"); v != "" {
		c.Progressive = v == "true" || v == "1"
	}
	if v := os.Getenv("NUKE_NO_RESUME"); v != "" {
		c.NoResume = v == "true" || v == "1"
	}
	if v := os.Getenv("NUKE_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse NUKE_RETRY_ATTEMPTS: %w", err)
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("NUKE_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse NUKE_RETRY_BACKOFF: %w", err)
		}
		c.Retry.Backoff = d
	}
	if v := os.Getenv("NUKE_RETRY_MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse NUKE_RETRY_MAX_BACKOFF: %w", err)
		}
		c.Retry.MaxBackoff = d
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return errors.New("config: output_dir is required")
	}
	if c.FetchWorkers <= 0 {
		return errors.New("config: fetch_workers must be positive")
	}
	if c.ProcessWorkers <= 0 {
		return errors.New("config: process_workers must be positive")
	}
	if c.CacheBytes < 0 {
		return errors.New("config: cache_bytes must not be negative")
	}
	if (c.ResizeWidth == 0) != (c.ResizeHeight == 0) {
		return errors.New("config: resize_width and resize_height must be set together")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.OutputDir != "" {
		c.OutputDir = override.OutputDir
	}
	if override.FetchWorkers != 0 {
		c.FetchWorkers = override.FetchWorkers
	}
	if override.ProcessWorkers != 0 {
		c.ProcessWorkers = override.ProcessWorkers
	}
	if override.CacheBytes != 0 {
		c.CacheBytes = override.CacheBytes
	}
	if override.RateLimit {
		c.RateLimit = override.RateLimit
	}
	if override.Progressive {
		c.Progressive = override.Progressive
	}
	if override.NoResume {
		c.NoResume = override.NoResume
	}
	if override.ResizeWidth != 0 {
		c.ResizeWidth = override.ResizeWidth
	}
	if override.ResizeHeight != 0 {
		c.ResizeHeight = override.ResizeHeight
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	return c
}
