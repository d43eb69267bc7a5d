// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration used for data the bot
// keeps for itself.
//
// The split is:
//
//   - JSON for everything exchanged with the homeserver: events,
//     request and response bodies. lib/event and messaging own that.
//   - CBOR for local state: the bot's extra data in lib/botstore.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same value always produces the same bytes and an unchanged record
// can be detected by comparing blobs. Identifier types from lib/ref
// encode as text strings through their MarshalText methods.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Types stored only locally use `cbor` struct tags. Types that are also
// sent to Matrix use `json` tags, which fxamacker/cbor reads when no
// `cbor` tag is present. Never tag one field both ways.
package codec
