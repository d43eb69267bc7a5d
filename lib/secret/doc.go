// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret keeps access tokens out of the Go heap.
//
// A [Buffer] is an anonymous mmap region that is mlocked (never
// swapped) and excluded from core dumps. Close zeroes, unlocks and
// unmaps it; any later read panics. The Matrix client holds its access
// token in a Buffer and converts it to a string only when writing the
// Authorization header.
//
// [ReadFile] loads a token from a file, or from stdin when the path is
// "-", trimming surrounding whitespace and zeroing the plain copy.
package secret
