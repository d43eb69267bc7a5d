// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/bureau-foundation/matrixbot/lib/secret"
)

// readAccessToken reads the token from path. "-" reads stdin; on a
// terminal the token is prompted for without echo.
func readAccessToken(path string, stdin *os.File, prompt io.Writer) (*secret.Buffer, error) {
	if path == "-" && term.IsTerminal(int(stdin.Fd())) {
		fmt.Fprint(prompt, "Access token: ")
		tokenBytes, err := term.ReadPassword(int(stdin.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return nil, fmt.Errorf("reading access token: %w", err)
		}
		if len(tokenBytes) == 0 {
			return nil, errors.New("empty access token")
		}
		buffer, err := secret.NewFromBytes(tokenBytes)
		if err != nil {
			secret.Zero(tokenBytes)
			return nil, err
		}
		return buffer, nil
	}

	buffer, err := secret.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading access token: %w", err)
	}
	return buffer, nil
}
