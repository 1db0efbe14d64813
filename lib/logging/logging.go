// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/juju/lumberjack/v2"
	"golang.org/x/term"

	"github.com/quartermaster-backup/quartermaster/lib/config"
)

// FileName is the log file inside the logs directory.
const FileName = "backup.log"

// Default rotation limits for the log file.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 5
)

// Options configures New.
type Options struct {
	// Dir is the logs directory. Empty disables the file sink.
	Dir string

	// Level applies to both sinks. Defaults to Info.
	Level slog.Leveler

	// Stderr defaults to os.Stderr.
	Stderr io.Writer

	// Rotation. Zero sizes take the defaults.
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// FromConfig builds options from the logging settings section.
func FromConfig(settings config.LoggingConfig, directory string) (Options, error) {
	var level slog.Level
	if settings.Level != "" {
		if err := level.UnmarshalText([]byte(settings.Level)); err != nil {
			return Options{}, fmt.Errorf("logging.level: %w", err)
		}
	}
	return Options{
		Dir:        directory,
		Level:      level,
		MaxSizeMB:  settings.MaxSizeMB,
		MaxBackups: settings.MaxBackups,
		Compress:   settings.Compress,
	}, nil
}

// New returns a logger writing to stderr and, when Dir is set, to the
// rotating log file. Close the returned closer on exit to flush the
// file.
func New(options Options) (*slog.Logger, io.Closer, error) {
	level := options.Level
	if level == nil {
		level = slog.LevelInfo
	}
	handlerOptions := &slog.HandlerOptions{Level: level}

	stderr := options.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	handlers := Fanout{ConsoleHandler(stderr, handlerOptions)}

	var closer io.Closer = nopCloser{}
	if options.Dir != "" {
		if err := os.MkdirAll(options.Dir, 0700); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:   filepath.Join(options.Dir, FileName),
			MaxSize:    cmp.Or(options.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: cmp.Or(options.MaxBackups, DefaultMaxBackups),
			Compress:   options.Compress,
		}
		handlers = append(handlers, slog.NewJSONHandler(file, handlerOptions))
		closer = file
	}
	return slog.New(handlers), closer, nil
}

// ConsoleHandler writes text to a terminal and JSON to anything else.
func ConsoleHandler(w io.Writer, options *slog.HandlerOptions) slog.Handler {
	if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return slog.NewTextHandler(w, options)
	}
	return slog.NewJSONHandler(w, options)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
