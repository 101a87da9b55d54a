// Package logging configures colored structured logging with tint.
//
// Environment variables:
//
//	GROCER_LOG_LEVEL: debug, info, warn, error (default: warn)
//	GROCER_LOG_FILE:  write logs to this file instead of stderr
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Options selects where logs go. A zero value logs to stderr at the level
// from GROCER_LOG_LEVEL.
type Options struct {
	Level *slog.Level
	// File, when set, receives logs (appended, no color).
	File string
	// Discard drops all output; used while the TUI owns the terminal and no
	// file was given.
	Discard bool
}

// Setup installs the default logger and returns a closer for any opened file.
func Setup(opts Options) (*slog.Logger, func() error, error) {
	level := LevelFromEnv()
	if opts.Level != nil {
		level = *opts.Level
	}
	var (
		w       io.Writer = os.Stderr
		noColor           = false
		closer            = func() error { return nil }
	)
	switch {
	case opts.File != "":
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		w, noColor, closer = f, true, f.Close
	case opts.Discard:
		w = io.Discard
	}
	l := New(w, level, noColor)
	slog.SetDefault(l)
	return l, closer, nil
}

// New builds a tint logger on w.
func New(w io.Writer, level slog.Level, noColor bool) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	}))
}

func LevelFromEnv() slog.Level {
	return ParseLevel(os.Getenv("GROCER_LOG_LEVEL"))
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
