package util

import (
	"log/slog"
	"os"
	"strings"
)

// InitSlog configures the default slog logger from LOG_LEVEL (debug, info, warn, error)
// and LOG_FORMAT (text, json). Nothing changes when neither variable is set.
func InitSlog() {
	logLevel, hasLevel := os.LookupEnv("LOG_LEVEL")
	logFormat, hasFormat := os.LookupEnv("LOG_FORMAT")
	if !hasLevel && !hasFormat {
		return
	}

	opts := &slog.HandlerOptions{
		Level: ParseLogLevel(logLevel),
	}

	var handler slog.Handler
	if strings.ToLower(logFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// ParseLogLevel maps a level name to a slog.Level, falling back to info.
func ParseLogLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
