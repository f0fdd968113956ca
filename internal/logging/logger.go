// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns the service logger on stdout.
// - env=prod: JSON handler without source locations
// - otherwise: text handler with source locations
// LOG_LEVEL controls the level (debug/info/warn/error), default info.
func NewLogger(env string) *slog.Logger {
	return NewWriterLogger(os.Stdout, env, os.Getenv("LOG_LEVEL"))
}

// NewWriterLogger is NewLogger with an explicit destination and level. The
// CLI logs to stderr so stdout stays machine readable.
func NewWriterLogger(w io.Writer, env, level string) *slog.Logger {
	if strings.EqualFold(strings.TrimSpace(env), "prod") {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     parseLevel(level),
			AddSource: false,
		}))
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: true,
	}))
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
