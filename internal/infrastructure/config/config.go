package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Runtime   RuntimeConfig
	Inspect   InspectConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// RuntimeConfig holds startup settings for the runtime configuration block.
// Individual runtime options are read separately with the JSC_ prefix.
type RuntimeConfig struct {
	OptionsFile string `envconfig:"JSC_OPTIONS_FILE"`
	Options     string `envconfig:"JSC_OPTIONS"`
	Testing     bool   `envconfig:"JSC_TESTING" default:"false"`
}

// InspectConfig holds the introspection server configuration.
type InspectConfig struct {
	Addr            string        `envconfig:"INSPECT_ADDR"`
	ShutdownTimeout time.Duration `envconfig:"INSPECT_SHUTDOWN_TIMEOUT" default:"5s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"20"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"40"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Inspect: InspectConfig{
			ShutdownTimeout: 5 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			Enabled:           true,
		},
	}
}
