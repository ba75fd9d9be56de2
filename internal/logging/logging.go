// Package logging wraps log/slog with per-component loggers for the memory
// engine. All output goes to stderr: stdout belongs to the JSON-RPC stream
// when running as a server, and to command output otherwise.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config selects the minimum level and output format.
type Config struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string
	// Format is the output format: console (default) or json.
	Format string
}

var (
	mu   sync.RWMutex
	base *slog.Logger
)

func init() {
	base = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// Init configures the shared logger. Call once at startup; loggers handed
// out by GetLogger before Init keep the conservative warn-level default.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	base = slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// GetLogger returns a logger tagged with the given component name.
func GetLogger(component string) *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &Logger{slog: base.With("component", component)}
}

// Logger is a thin wrapper so callers don't depend on slog directly.
type Logger struct {
	slog *slog.Logger
}

// With returns a new Logger carrying the given attributes on every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }
