// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil bounds HTTP response reads.
//
// Matrix responses are JSON documents; even an initial /sync of a busy
// account is a few megabytes. Reading through MaxResponseSize keeps a
// misbehaving homeserver or proxy from exhausting memory.
package netutil

import (
	"io"
	"strings"
)

// MaxResponseSize is the most ReadResponse will read: 64 MB.
const MaxResponseSize int64 = 64 << 20

// ReadResponse reads a response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// errorBodyLimit keeps non-JSON error pages short in error messages.
const errorBodyLimit = 512

// ErrorBody shortens a non-JSON error body for an error message.
// Whitespace is collapsed and long bodies are truncated.
func ErrorBody(body []byte) string {
	text := strings.Join(strings.Fields(string(body)), " ")
	if len(text) > errorBodyLimit {
		return text[:errorBodyLimit] + "..."
	}
	return text
}
