// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the slog loggers used by the SDMS binaries.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// New returns a logger writing to stderr at level. A terminal gets
// slog's text format; anything else (journald, files, pipes) gets
// JSON records.
func New(level slog.Level) *slog.Logger {
	return NewWriter(os.Stderr, level, term.IsTerminal(int(os.Stderr.Fd())))
}

// NewWriter returns a logger writing to w, in text when human is set
// and JSON otherwise.
func NewWriter(w io.Writer, level slog.Level, human bool) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	if human {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}

// ParseLevel parses debug, info, warn or error, in any case.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}
