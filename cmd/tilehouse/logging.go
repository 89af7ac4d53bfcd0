package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/hlop3z/tilehouse/internal/alerr"
	"github.com/hlop3z/tilehouse/internal/cli"
)

// newLogger writes text to a terminal and JSON everywhere else. It also
// becomes the process default.
func newLogger(level string, w *os.File) (*slog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if cli.IsTerminal(w) {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, alerr.Newf(alerr.ErrConfig, "unknown log level %q", s)
}
