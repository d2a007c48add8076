// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

var levelVar slog.LevelVar

// Init installs a text handler writing to w as the default logger.
// A nil w logs to stderr so report output on stdout stays clean.
func Init(w io.Writer, level slog.Level) {
	if w == nil {
		w = os.Stderr
	}
	levelVar.Set(level)
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &levelVar})))
}

// ParseLevel converts "debug", "info", "warn" or "error" to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// SetLevel changes the level of the installed logger.
func SetLevel(level slog.Level) {
	levelVar.Set(level)
}

// Level returns the current level.
func Level() slog.Level {
	return levelVar.Level()
}
