package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates a slog logger tagged with the application name. Development
// environments get a text handler, everything else JSON. An invalid level
// string falls back to info.
func New(appName, level string, development bool) *slog.Logger {
	return newWithWriter(os.Stdout, appName, level, development)
}

func newWithWriter(w io.Writer, appName, level string, development bool) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if development {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	if appName != "" {
		logger = logger.With(slog.String("app", appName))
	}
	return logger
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
