// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// maxSecretSize bounds how much ReadFile and ReadFrom will read.
// Matrix access tokens are well under a kilobyte.
const maxSecretSize = 64 << 10

// ReadFile reads a secret from path, or from stdin when path is "-".
func ReadFile(path string) (*Buffer, error) {
	if path == "-" {
		return ReadFrom(os.Stdin)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	defer file.Close()
	return ReadFrom(file)
}

// ReadFrom reads a whole secret from reader, trims surrounding
// whitespace, and moves it into a Buffer. Every plain copy is zeroed.
func ReadFrom(reader io.Reader) (*Buffer, error) {
	data, err := io.ReadAll(io.LimitReader(reader, maxSecretSize+1))
	defer Zero(data)
	if err != nil {
		return nil, fmt.Errorf("secret: reading: %w", err)
	}
	if len(data) > maxSecretSize {
		return nil, fmt.Errorf("secret: larger than %d bytes", maxSecretSize)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("secret: empty")
	}
	return NewFromBytes(trimmed)
}
