package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Options controls how the shared logger is built.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	Output io.Writer
}

var (
	mu     sync.RWMutex
	logger *slog.Logger
)

// Configure (re)builds the shared logger. It is safe to call multiple times; the last call wins.
func Configure(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		handler = slog.NewTextHandler(out, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(out, handlerOpts)
	}

	l := slog.New(handler)
	mu.Lock()
	logger = l
	mu.Unlock()
	return l
}

// Logger returns the configured slog logger, configuring a JSON info logger on first use if necessary.
func Logger() *slog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l == nil {
		return Configure(Options{})
	}
	return l
}

// ForJob returns a logger carrying the scan job id and target.
func ForJob(jobID, target string) *slog.Logger {
	return Logger().With("job_id", jobID, "target", target)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
