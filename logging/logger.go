package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name into a LogLevel.
// "warning" is accepted as an alias for warn.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q (valid: debug, info, warn, error)", s)
	}
}

// Logger defines the minimal logging interface for agenttree.
// This allows users to provide their own logger implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// TreeLogger wraps slog.Logger adding component and agent context plus
// domain helpers for transitions, escalations, verification and backend
// calls. Values are cheap to copy via the With* methods.
type TreeLogger struct {
	logger    *slog.Logger
	level     LogLevel
	component string
	agentID   string
	agentName string
	attrs     []slog.Attr
}

// LoggerConfig configures construction of a TreeLogger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout}
}

// NewLogger builds a TreeLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *TreeLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: SlogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}
	return &TreeLogger{logger: slog.New(handler), level: cfg.Level, component: cfg.Component}
}

// SlogLevel maps a LogLevel to the slog equivalent.
func SlogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *TreeLogger) clone() *TreeLogger {
	nl := *l
	nl.attrs = append([]slog.Attr(nil), l.attrs...)
	return &nl
}

// With adds a key/value attribute that will be attached to every log entry.
func (l *TreeLogger) With(key string, value any) *TreeLogger {
	nl := l.clone()
	nl.attrs = append(nl.attrs, slog.Any(key, value))
	return nl
}

// WithComponent sets the logical component (engine, router, verifier, ...).
func (l *TreeLogger) WithComponent(c string) *TreeLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithAgent attaches agent identity.
func (l *TreeLogger) WithAgent(id, name string) *TreeLogger {
	nl := l.clone()
	nl.agentID = id
	nl.agentName = name
	return nl
}

func (l *TreeLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.attrs)+3)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.agentID != "" {
		attrs = append(attrs, slog.String("agent_id", l.agentID))
	}
	if l.agentName != "" {
		attrs = append(attrs, slog.String("agent_name", l.agentName))
	}
	return append(attrs, l.attrs...)
}

func (l *TreeLogger) log(level slog.Level, msg string, args ...any) {
	if level < SlogLevel(l.level) {
		return
	}
	attrs := l.buildAttrs()
	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.AddAttrs(attrs...)
	r.Add(args...)
	_ = l.logger.Handler().Handle(context.Background(), r)
}

// Debug logs at debug level.
func (l *TreeLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }

// Info logs at info level.
func (l *TreeLogger) Info(msg string, args ...any) { l.log(slog.LevelInfo, msg, args...) }

// Warn logs at warn level.
func (l *TreeLogger) Warn(msg string, args ...any) { l.log(slog.LevelWarn, msg, args...) }

// Error logs at error level.
func (l *TreeLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// LogTransition records one committed lifecycle transition.
func (l *TreeLogger) LogTransition(agentID, from, event, to string) {
	level := slog.LevelInfo
	if to == "failed" {
		level = slog.LevelWarn
	}
	l.log(level, "Agent transition", "agent_id", agentID, "from", from, "event", event, "to", to)
}

// LogEscalation records the outcome of routing one escalation.
func (l *TreeLogger) LogEscalation(escID, origin, outcome, handler string, hops int) {
	l.log(slog.LevelInfo, "Escalation routed", "escalation_id", escID, "origin", origin,
		"outcome", outcome, "handler", handler, "hops", hops)
}

// LogVerification records a verification round.
func (l *TreeLogger) LogVerification(agentID string, passed, failed int, dur time.Duration) {
	level := slog.LevelInfo
	msg := "Verification passed"
	if failed > 0 {
		level = slog.LevelWarn
		msg = "Verification failed"
	}
	l.log(level, msg, "agent_id", agentID, "passed", passed, "failed", failed, "duration", dur)
}

// LogBackendCall records backend latency, cost and success.
func (l *TreeLogger) LogBackendCall(agentID string, cost int64, dur time.Duration, err error) {
	if err != nil {
		l.log(slog.LevelError, "Backend call failed", "agent_id", agentID, "duration", dur, "error", err.Error())
		return
	}
	l.log(slog.LevelInfo, "Backend call completed", "agent_id", agentID, "cost", cost, "duration", dur)
}

// StartTimer returns a closure that logs the elapsed duration when invoked.
func (l *TreeLogger) StartTimer(op string) func() {
	start := time.Now()
	return func() { l.Debug("Operation completed", "operation", op, "duration", time.Since(start)) }
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// NewSlogLogger creates a new TreeLogger with the specified configuration.
func NewSlogLogger(level LogLevel, format string, addSource bool) *TreeLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

// domainLogger is implemented by loggers with structured domain helpers.
type domainLogger interface {
	LogTransition(agentID, from, event, to string)
	LogEscalation(escID, origin, outcome, handler string, hops int)
	LogVerification(agentID string, passed, failed int, dur time.Duration)
	LogBackendCall(agentID string, cost int64, dur time.Duration, err error)
}

var _ domainLogger = (*TreeLogger)(nil)

// Transition logs a lifecycle transition through l.
func Transition(l Logger, agentID, from, event, to string) {
	if dl, ok := l.(domainLogger); ok {
		dl.LogTransition(agentID, from, event, to)
		return
	}
	l.Debug("Agent transition", "agent_id", agentID, "from", from, "event", event, "to", to)
}

// Escalation logs a routed escalation through l.
func Escalation(l Logger, escID, origin, outcome, handler string, hops int) {
	if dl, ok := l.(domainLogger); ok {
		dl.LogEscalation(escID, origin, outcome, handler, hops)
		return
	}
	l.Info("Escalation routed", "escalation_id", escID, "origin", origin, "outcome", outcome, "handler", handler, "hops", hops)
}

// Verification logs a verification round through l.
func Verification(l Logger, agentID string, passed, failed int, dur time.Duration) {
	if dl, ok := l.(domainLogger); ok {
		dl.LogVerification(agentID, passed, failed, dur)
		return
	}
	l.Info("Verification finished", "agent_id", agentID, "passed", passed, "failed", failed, "duration", dur)
}

// BackendCall logs a backend round trip through l.
func BackendCall(l Logger, agentID string, cost int64, dur time.Duration, err error) {
	if dl, ok := l.(domainLogger); ok {
		dl.LogBackendCall(agentID, cost, dur, err)
		return
	}
	if err != nil {
		l.Warn("Backend call failed", "agent_id", agentID, "duration", dur, "error", err)
		return
	}
	l.Debug("Backend call completed", "agent_id", agentID, "cost", cost, "duration", dur)
}
