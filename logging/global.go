// Package logging wires log/slog for the service: console plus a weekly
// rotating JSON file, package-level helpers and an HTTP request logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LoggingService owns the process logger and the file it writes to.
type LoggingService struct {
	Logger *slog.Logger
	file   *RotatingLogger
}

var (
	DefaultLoggingService *LoggingService
	fallbackOnce          sync.Once
	fallbackLogger        *slog.Logger
)

// Options configures InitLogger.
type Options struct {
	Dir            string
	Level          string
	RetentionWeeks int
	MaxFileSize    int64
}

// InitLogger builds the global logger and installs it as the slog default.
// An empty Dir logs to the console only.
func InitLogger(opts Options) {
	level := parseLogLevel(opts.Level)
	svc := &LoggingService{}

	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}),
	}

	if opts.Dir != "" {
		rl, err := NewRotatingLogger(opts.Dir, opts.RetentionWeeks, opts.MaxFileSize)
		if err != nil {
			slog.New(handlers[0]).Error("Failed to initialize rotating logger, using console only", "error", err)
		} else {
			svc.file = rl
			handlers = append(handlers, slog.NewJSONHandler(rl, &slog.HandlerOptions{Level: level}))
		}
	}

	svc.Logger = slog.New(&multiHandler{handlers: handlers})
	DefaultLoggingService = svc
	slog.SetDefault(svc.Logger)
}

// InitWithWriter installs a logger writing text records to w. Tests use it
// to capture output.
func InitWithWriter(w io.Writer, level string) {
	DefaultLoggingService = &LoggingService{
		Logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLogLevel(level)})),
	}
}

// Close flushes and closes the log file, if any.
func Close() error {
	if DefaultLoggingService == nil || DefaultLoggingService.file == nil {
		return nil
	}
	return DefaultLoggingService.file.Close()
}

// Logger returns the configured logger or a console fallback.
func Logger() *slog.Logger {
	if DefaultLoggingService != nil && DefaultLoggingService.Logger != nil {
		return DefaultLoggingService.Logger
	}
	fallbackOnce.Do(func() {
		fallbackLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	})
	return fallbackLogger
}

func parseLogLevel(level string) slog.Level {
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

// Package-level functions for direct access

func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}
