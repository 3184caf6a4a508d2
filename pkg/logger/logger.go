// Package logger provides structured logging functionality for the lit-go-sdk.
// This package configures and creates zap loggers with appropriate settings for
// production and development environments, including request-scoped child loggers
// that carry the network request id through a node fan-out.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerConfig holds the configuration for logger creation.
// This configuration controls the logging level and behavior.
type LoggerConfig struct {
	// Debug enables debug-level logging when true, otherwise uses info level
	Debug bool
}

// NewLogger creates a new structured logger with the specified configuration.
// The logger is configured for production use with JSON encoding and ISO8601 timestamps.
// Debug mode can be enabled through the configuration to include debug-level logs.
//
// Parameters:
//   - cfg: The logger configuration
//   - options: Additional zap options to apply to the logger
//
// Returns:
//   - *zap.Logger: A configured zap logger instance
//   - error: An error if the logger cannot be created
func NewLogger(cfg *LoggerConfig, options ...zap.Option) (*zap.Logger, error) {
	mergedOptions := append([]zap.Option{
		zap.WithCaller(true),
	}, options...)

	c := zap.NewProductionConfig()
	c.EncoderConfig = zap.NewProductionEncoderConfig()
	c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if cfg.Debug {
		c.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		c.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return c.Build(mergedOptions...)
}

// WithRequestId returns a child logger that stamps every entry with the
// network request id. Components pass the child down through a node fan-out so
// per-node logs of one batch can be correlated.
//
// Parameters:
//   - l: The parent logger
//   - requestId: The request id assigned to the node batch
//
// Returns:
//   - *zap.Logger: A child logger carrying the requestId field
func WithRequestId(l *zap.Logger, requestId string) *zap.Logger {
	return l.With(zap.String("requestId", requestId))
}
