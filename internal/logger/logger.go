// Package logger provides structured logging for studio.
// Uses log/slog; level and format come from STUDIO_DEBUG, STUDIO_LOG_LEVEL and STUDIO_LOG_FORMAT.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	defaultLogger *slog.Logger
	mu            sync.Mutex
)

// Level represents logging verbosity.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Options configures the logger.
type Options struct {
	// Level is the minimum log level to output.
	Level Level

	// Output is where logs are written. Defaults to os.Stderr.
	Output io.Writer

	// JSON enables JSON output format instead of text.
	JSON bool

	// AddSource includes file:line in log output.
	AddSource bool
}

// DefaultOptions reads the environment. STUDIO_DEBUG=1 wins over STUDIO_LOG_LEVEL.
func DefaultOptions() Options {
	level := ParseLevel(os.Getenv("STUDIO_LOG_LEVEL"))
	if os.Getenv("STUDIO_DEBUG") == "1" {
		level = LevelDebug
	}

	return Options{
		Level:  level,
		Output: os.Stderr,
		JSON:   strings.EqualFold(os.Getenv("STUDIO_LOG_FORMAT"), "json"),
	}
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Init replaces the default logger and installs it as the slog default.
func Init(opts Options) *slog.Logger {
	l := New(opts)

	mu.Lock()
	defaultLogger = l
	mu.Unlock()

	slog.SetDefault(l)
	return l
}

// New creates a new logger with the given options.
func New(opts Options) *slog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(opts.Output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(opts.Output, handlerOpts)
	}

	return slog.New(handler)
}

// Default returns the default logger, initializing it from the environment if necessary.
func Default() *slog.Logger {
	mu.Lock()
	l := defaultLogger
	mu.Unlock()

	if l == nil {
		return Init(DefaultOptions())
	}
	return l
}

// WithComponent returns a logger tagged with a component name.
func WithComponent(name string) *slog.Logger {
	return Default().With("component", name)
}

// WithAgent returns a logger tagged with an agent and the feature it works on.
func WithAgent(agent, feature string) *slog.Logger {
	return Default().With("agent", agent, "feature", feature)
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}
