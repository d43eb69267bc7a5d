// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the matrixbot
// binary.
//
// Four package-level variables are injected at build time via
// -ldflags -X:
//
//	go build -ldflags "-X github.com/bureau-foundation/matrixbot/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Without ldflags the commit falls back to the vcs.revision stamp that
// the go command records in the binary's build info.
package version
