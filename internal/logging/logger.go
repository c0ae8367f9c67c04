package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// InitLogger initializes the default structured logger from LOG_LEVEL and LOG_FORMAT.
func InitLogger() {
	Setup(os.Stderr, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

// Setup installs a slog default logger writing to w. The CLI logs to stderr
// so that stdout stays free for the event stream.
func Setup(w io.Writer, level, format string) *slog.Logger {
	logLevel := ParseLevel(level)
	logFormat := ParseFormat(format)

	handlerOpts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: true, // Include file and line number
	}

	var handler slog.Handler
	switch logFormat {
	case "json":
		handler = slog.NewJSONHandler(w, handlerOpts)
	default:
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	slog.Debug("logger initialized",
		"level", logLevel.String(),
		"format", logFormat,
	)
	return logger
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
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

// ParseFormat returns "json" or "text".
func ParseFormat(format string) string {
	if strings.ToLower(format) == "json" {
		return "json"
	}
	return "text"
}
