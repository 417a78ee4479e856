// Package logging builds the process-wide slog logger. Output goes to
// stdout (text in development, JSON otherwise) and, when a file path is
// configured, also to a size-rotated JSON log file.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls the logger built by New.
type Options struct {
	Level      string
	JSON       bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New returns a logger and a closer for the rotating file, if any. The
// closer is never nil.
func New(opts Options, stdout io.Writer) (*slog.Logger, io.Closer) {
	level := ParseLevel(opts.Level)
	handlerOpts := &slog.HandlerOptions{Level: level}

	var console slog.Handler
	if opts.JSON {
		console = slog.NewJSONHandler(stdout, handlerOpts)
	} else {
		console = slog.NewTextHandler(stdout, handlerOpts)
	}

	if opts.File == "" {
		return slog.New(console), nopCloser{}
	}

	lj := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    nz(opts.MaxSizeMB, 100), // megabytes
		MaxBackups: nz(opts.MaxBackups, 5),
		MaxAge:     nz(opts.MaxAgeDays, 30), // days
		Compress:   true,
	}
	file := slog.NewJSONHandler(lj, handlerOpts)
	return slog.New(teeHandler{console, file}), lj
}

// Setup builds the logger with New, writing to stdout, and installs it as
// the slog default.
func Setup(opts Options) io.Closer {
	logger, closer := New(opts, os.Stdout)
	slog.SetDefault(logger)
	return closer
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func nz(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// teeHandler fans records out to several handlers.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
