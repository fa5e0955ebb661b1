package config

import (
	"log/slog"
	"os"

	"github.com/hupe1980/agenttree/logging"
)

// ParseLogLevel converts a case-insensitive string to an [slog.Level].
//
// Accepted values:
//   - "debug" → [slog.LevelDebug]
//   - "info" or "" → [slog.LevelInfo]
//   - "warn" or "warning" → [slog.LevelWarn]
//   - "error" → [slog.LevelError]
func ParseLogLevel(s string) (slog.Level, error) {
	l, err := logging.ParseLevel(s)
	if err != nil {
		return slog.LevelInfo, err
	}
	return logging.SlogLevel(l), nil
}

// NewLogger builds the logger described by the logging section. Output
// goes to stderr.
func (c *Config) NewLogger() (*logging.TreeLogger, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: c.Logging.Format,
		Output: os.Stderr,
	}), nil
}
