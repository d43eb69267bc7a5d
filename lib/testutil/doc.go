// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] bounds a channel receive with a wall-clock timeout
// so a test that would otherwise hang fails with a message instead.
// Everything else in the suite runs on lib/clock's fake clock; this is
// the one place a real timer is allowed.
package testutil
