// SPDX-License-Identifier: MPL-2.0

// Package logging builds the process logger: a charmbracelet/log handler
// behind log/slog, always writing to stderr-like sinks because stdout
// carries the result record.
package logging

import (
	"io"
	"log/slog"

	"github.com/charmbracelet/log"

	"github.com/postcond/postcond/internal/config"
)

// Options configures New.
type Options struct {
	Level config.LogLevel
	// Verbose forces debug level regardless of Level.
	Verbose bool
	// Prefix is printed before every line ("postcond").
	Prefix string
}

// New returns a slog.Logger backed by a charmbracelet/log handler on w.
func New(w io.Writer, opts Options) *slog.Logger {
	handler := log.NewWithOptions(w, log.Options{
		Level:           levelOf(opts),
		Prefix:          opts.Prefix,
		ReportTimestamp: opts.Verbose,
	})
	return slog.New(handler)
}

// Install makes New's logger the slog default, so package-level slog calls
// share the configured level and sink.
func Install(w io.Writer, opts Options) *slog.Logger {
	logger := New(w, opts)
	slog.SetDefault(logger)
	return logger
}

// Discard returns a logger that drops everything; used where a nil
// *slog.Logger was supplied.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrDiscard returns l, or Discard() when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

func levelOf(opts Options) log.Level {
	if opts.Verbose {
		return log.DebugLevel
	}
	switch opts.Level {
	case config.LogLevelDebug:
		return log.DebugLevel
	case config.LogLevelInfo:
		return log.InfoLevel
	case config.LogLevelError:
		return log.ErrorLevel
	default:
		return log.WarnLevel
	}
}
