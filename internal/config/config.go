// Package config loads the stress harness configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all harness configuration.
type Config struct {
	Pipe    PipeConfig
	Stress  StressConfig
	Logging LogConfig
	Metrics MetricsConfig
}

// PipeConfig sizes the pipe under test and bounds each call on it.
// A negative timeout blocks forever.
type PipeConfig struct {
	Capacity     int           `envconfig:"PIPE_CAPACITY" default:"4096"`
	WriteTimeout time.Duration `envconfig:"PIPE_WRITE_TIMEOUT" default:"-1ns"`
	ReadTimeout  time.Duration `envconfig:"PIPE_READ_TIMEOUT" default:"-1ns"`
}

// StressConfig describes the load.
type StressConfig struct {
	Writers        int `envconfig:"STRESS_WRITERS" default:"4"`
	Readers        int `envconfig:"STRESS_READERS" default:"4"`
	BytesPerWriter int `envconfig:"STRESS_BYTES_PER_WRITER" default:"1048576"`
	MaxChunk       int `envconfig:"STRESS_MAX_CHUNK" default:"512"`
	// WriteRate caps each writer in bytes per second; 0 disables pacing.
	WriteRate int `envconfig:"STRESS_WRITE_RATE" default:"0"`
	// ResetEvery resets the pipe periodically; 0 disables resets.
	ResetEvery time.Duration `envconfig:"STRESS_RESET_EVERY" default:"0s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// MetricsConfig holds the Prometheus endpoint address; empty disables it.
type MetricsConfig struct {
	Address string `envconfig:"METRICS_ADDR" default:""`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
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
		Pipe: PipeConfig{
			Capacity:     4096,
			WriteTimeout: -1,
			ReadTimeout:  -1,
		},
		Stress: StressConfig{
			Writers:        4,
			Readers:        4,
			BytesPerWriter: 1 << 20,
			MaxChunk:       512,
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}

// Validate rejects configurations the harness cannot run.
func (c *Config) Validate() error {
	switch {
	case c.Pipe.Capacity <= 0:
		return fmt.Errorf("invalid config: PIPE_CAPACITY must be positive, got %d", c.Pipe.Capacity)
	case c.Stress.Writers <= 0 || c.Stress.Readers <= 0:
		return fmt.Errorf("invalid config: need at least one writer and one reader")
	case c.Stress.BytesPerWriter < 0:
		return fmt.Errorf("invalid config: STRESS_BYTES_PER_WRITER must not be negative")
	case c.Stress.MaxChunk <= 0:
		return fmt.Errorf("invalid config: STRESS_MAX_CHUNK must be positive, got %d", c.Stress.MaxChunk)
	case c.Stress.WriteRate < 0:
		return fmt.Errorf("invalid config: STRESS_WRITE_RATE must not be negative")
	}
	return nil
}
