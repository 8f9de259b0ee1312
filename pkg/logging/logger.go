// Package logging configures zerolog for the bulk compliance job.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Service is attached to every log line.
const Service = "drs-bulk-compliance"

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables console output instead of JSON.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns JSON logging at info level to stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup configures and returns the global logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	log.Logger = zerolog.New(out).With().
		Timestamp().
		Str("service", Service).
		Logger()

	return log.Logger
}

func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger returns a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithJob tags logger with the tracking id of a bulk job.
func WithJob(logger zerolog.Logger, trackingID string) zerolog.Logger {
	return logger.With().Str("tracking_id", trackingID).Logger()
}

// Log levels:
//
// Debug: per-worker completion, condition counts, limiter state
// Info: job start and end, retry rounds, summary totals
// Warn: failed imei batches, skipped identifiers, limiter backend errors
// Error: batches dropped after the last retry round, report write failures
//
// Common fields: component, tracking_id, worker_id, imeis, round,
// status_code, error_class, duration.
