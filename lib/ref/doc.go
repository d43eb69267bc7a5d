// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable Matrix identifiers:
// [RoomID], [UserID], [EventID] and [EventType].
//
// Identifiers arrive from the homeserver as plain strings. They are
// parsed into these types at the boundary (JSON decoding, command-line
// flags, configuration) so that the rest of the bot never passes a
// room ID where a user ID is expected. Constructors validate structure
// only: sigil, localpart and server name. Opaque parts are never
// interpreted.
//
// JSON marshaling uses the full identifier via encoding.TextMarshaler,
// which also lets RoomID serve as a JSON object key (sync responses
// key rooms by ID).
package ref
