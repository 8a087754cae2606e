// Package logging configures the process-wide structured logger. Every
// component takes a *slog.Logger explicitly rather than reaching for a
// package-level global, except the process default returned by Default.
package logging

import (
	"log/slog"
	"os"
)

// New builds a logger. jsonOutput selects the JSON handler (daemon/
// scheduler use) over the text handler (interactive CLI use), mirroring
// the teacher's jsonOutput toggle in cmd/bd/main.go.
func New(jsonOutput bool, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

var defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, nil))

// Default returns the fallback logger for code paths that run before a
// configured logger is available (e.g. config-loading failures).
func Default() *slog.Logger {
	return defaultLogger
}

// SetDefault installs l as the process default, used once at startup
// after config has been loaded.
func SetDefault(l *slog.Logger) {
	defaultLogger = l
}
