// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"
	"os"

	"golang.org/x/term"
)

// newLogger builds the process logger. Format "auto" picks text when
// output is a terminal and JSON otherwise, so piped output stays
// machine-parseable.
func newLogger(format string, level slog.Level, output *os.File) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	useText := format == "text" || (format == "auto" && term.IsTerminal(int(output.Fd())))
	if useText {
		return slog.New(slog.NewTextHandler(output, options))
	}
	return slog.New(slog.NewJSONHandler(output, options))
}
