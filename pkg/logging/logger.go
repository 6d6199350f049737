// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging builds the service's slog logger.
//
// Output goes to stderr, human-readable when attached to a terminal
// and JSON otherwise, plus an optional JSON log file per service and
// day. Every component derives child loggers via slog.With.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
)

// Config configures the logger. The zero value logs Info and above to
// stderr.
type Config struct {
	// Level is the minimum severity: "debug", "info", "warn" or
	// "error". Unknown values fall back to info.
	Level string

	// LogDir enables an additional JSON log file named
	// {service}_{YYYY-MM-DD}.log. Supports a leading ~.
	LogDir string

	// Service is attached to every record as the "service" attribute
	// and names the log file.
	Service string

	// JSON forces JSON on stderr. When false the format is chosen by
	// whether stderr is a terminal.
	JSON bool

	// Quiet drops the stderr handler entirely; useful for daemons
	// that only want the file.
	Quiet bool
}

// Logger wraps slog with the owned file handle.
//
// Thread Safety: Safe for concurrent use.
type Logger struct {
	*slog.Logger
	file *os.File
}

// New builds a logger per the config. Call Close to flush the file.
func New(cfg Config) *Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handlers []slog.Handler
	if !cfg.Quiet {
		if cfg.JSON || !stderrIsTerminal() {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
	}

	l := &Logger{}
	if cfg.LogDir != "" {
		if file, err := openLogFile(cfg.LogDir, cfg.Service); err == nil {
			l.file = file
			handlers = append(handlers, slog.NewJSONHandler(file, opts))
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.DiscardHandler
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}
	if cfg.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}

	l.Logger = slog.New(handler)
	return l
}

// Close syncs and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync log file: %w", err)
	}
	return l.file.Close()
}

// ParseLevel maps a level name to slog.Level, defaulting to Info.
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

func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func openLogFile(dir, service string) (*os.File, error) {
	dir = expandPath(dir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	if service == "" {
		service = "taskweave"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	return os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
