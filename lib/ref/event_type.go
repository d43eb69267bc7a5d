// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// EventType identifies a Matrix event type ("m.room.message",
// "m.room.topic", or any custom type a federated server sends).
//
// EventType is a named string type, not a struct wrapper: event types
// are an open vocabulary and need no validation. The type exists for
// compile-time safety, preventing a state key from being passed where
// an event type is expected.
type EventType string

// String returns the event type string.
func (t EventType) String() string { return string(t) }
