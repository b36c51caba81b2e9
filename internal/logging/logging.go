// Package logging configures the process-wide structured logger.
package logging

import (
	"log/slog"
	"os"
	"regexp"
	"strings"
)

var secretPattern = regexp.MustCompile(`(?i)(x-access-token:|bearer\s+)[A-Za-z0-9._\-]+`)

// Init installs and returns the process-wide logger. JSON output is selected
// by LEVIATHAN_JSON_LOG=1, otherwise a human-readable text handler is used.
// Level comes from LEVIATHAN_LOG_LEVEL (debug|info|warn|error, default info).
func Init(service string) *slog.Logger {
	level := levelFromEnv(os.Getenv("LEVIATHAN_LOG_LEVEL"))

	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactAttr,
	}

	var handler slog.Handler
	if os.Getenv("LEVIATHAN_JSON_LOG") == "1" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With(slog.String("service", service))
	slog.SetDefault(logger)
	return logger
}

func redactAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		s := a.Value.String()
		if secretPattern.MatchString(s) {
			a.Value = slog.StringValue(secretPattern.ReplaceAllString(s, "$1[redacted]"))
		}
	}
	return a
}

func levelFromEnv(v string) slog.Level {
	switch strings.ToLower(v) {
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
