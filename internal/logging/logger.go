// Package logging builds the zap loggers used by the stress harness.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config defines logger configuration.
type Config struct {
	Level       string // "debug", "info", "warn", "error"
	Development bool
	OutputPaths []string
}

// DefaultConfig returns the JSON, info-level configuration.
func DefaultConfig() Config {
	return Config{
		Level:       "info",
		Development: false,
		OutputPaths: []string{"stderr"},
	}
}

// DevelopmentConfig returns the console, debug-level configuration.
func DevelopmentConfig() Config {
	return Config{
		Level:       "debug",
		Development: true,
		OutputPaths: []string{"stderr"},
	}
}

// New creates a logger with the provided configuration.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          encoding(cfg.Development),
		EncoderConfig:     encoderConfig(cfg.Development),
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !cfg.Development,
	}
	return zapCfg.Build()
}

// NewDefault creates a logger with DefaultConfig, falling back to a no-op
// logger if it cannot be built.
func NewDefault() *zap.Logger {
	logger, err := New(DefaultConfig())
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// NewDevelopment creates a logger with DevelopmentConfig.
func NewDevelopment() *zap.Logger {
	logger, err := New(DevelopmentConfig())
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func encoding(development bool) string {
	if development {
		return "console"
	}
	return "json"
}

func encoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.MessageKey = "message"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	return cfg
}
