// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package event decodes Matrix events into typed variants.
//
// A Matrix event is a JSON object whose "type" field selects the shape
// of its "content" (and, for state events, "prev_content"). Some
// content families carry a second discriminator: m.room.message content
// is selected by "msgtype", m.room.encrypted content by "algorithm".
// The vocabulary is open: any federated server may send event types,
// message types or algorithms this package has never heard of.
//
// Every dispatch point uses the same primitive: a discriminator
// field, a closed table of known variants, and a mandatory fallback
// variant that keeps every original field verbatim. Unknown values are
// never errors. The only failures are structural:
//
//   - [MissingFieldError] when the event has no "type".
//   - [InvalidContentError] when "content" or "prev_content" is not a
//     JSON object.
//
// Both match the sentinels [ErrMissingField] and [ErrInvalidContent]
// via errors.Is.
//
// Event variants:
//
//   - [RoomMessage]: Content is a [MessageContent] ([Text], [Notice],
//     or [RawMessageContent]).
//   - [RoomName]: Content is a [NameContent] ([RoomNameContent] or
//     [RawRoomNameContent] when "name" is not a string).
//   - [RoomTopic]: Content is a [TopicContent] ([RoomTopicContent] or
//     [RawRoomTopicContent] when "topic" is not a string).
//   - [RoomEncrypted]: Content is an [EncryptedContent] ([OlmContent],
//     [MegolmContent], or [RawEncryptedContent]).
//   - [Generic]: every other event type; Content is [RawContent].
//
// prev_content is always decoded through the same family as content,
// so both sides of a state change share a concrete type.
//
// Decoding is pure: no shared state, no I/O, safe for concurrent use.
// Every variant implements json.Marshaler and re-encodes to the wire
// shape it was decoded from.
package event
