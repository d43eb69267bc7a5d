// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/matrixbot/lib/ref"
)

// Standard Matrix event types with dedicated variants.
const (
	TypeRoomMessage   ref.EventType = "m.room.message"
	TypeRoomName      ref.EventType = "m.room.name"
	TypeRoomTopic     ref.EventType = "m.room.topic"
	TypeRoomEncrypted ref.EventType = "m.room.encrypted"

	// TypeRoomMember has no dedicated variant; member events decode as
	// Generic. The constant exists for registration predicates that
	// look for the bot's own join.
	TypeRoomMember ref.EventType = "m.room.member"

	// TypeRoomRedaction is the event type produced by a redaction.
	TypeRoomRedaction ref.EventType = "m.room.redaction"
)

// Content is the decoded "content" of an event. The set of
// implementations is closed: RawContent and the MessageContent,
// NameContent, TopicContent and EncryptedContent families.
type Content interface {
	json.Marshaler
	isContent()
}

// RawContent is the content of an event type with no dedicated
// variant. All fields are kept verbatim.
type RawContent struct {
	Fields Fields
}

func (RawContent) isContent() {}

// MarshalJSON encodes the original fields.
func (c RawContent) MarshalJSON() ([]byte, error) { return c.Fields.MarshalJSON() }

// NameContent is the content of an m.room.name state event. The
// concrete type is RoomNameContent or RawRoomNameContent.
type NameContent interface {
	Content
	isNameContent()
}

// RoomNameContent is m.room.name content whose name is a string. An
// absent or null name decodes as "", which Matrix uses to clear it.
type RoomNameContent struct {
	Name string
}

// RawRoomNameContent is m.room.name content whose "name" is not a
// string. Every field is kept.
type RawRoomNameContent struct {
	Fields Fields
}

func (RoomNameContent) isContent()        {}
func (RoomNameContent) isNameContent()    {}
func (RawRoomNameContent) isContent()     {}
func (RawRoomNameContent) isNameContent() {}

// MarshalJSON encodes {"name": ...}.
func (c RoomNameContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name string `json:"name"`
	}{c.Name})
}

// MarshalJSON encodes the original fields.
func (c RawRoomNameContent) MarshalJSON() ([]byte, error) { return c.Fields.MarshalJSON() }

// TopicContent is the content of an m.room.topic state event. The
// concrete type is RoomTopicContent or RawRoomTopicContent.
type TopicContent interface {
	Content
	isTopicContent()
}

// RoomTopicContent is m.room.topic content whose topic is a string.
type RoomTopicContent struct {
	Topic string
}

// RawRoomTopicContent is m.room.topic content whose "topic" is not a
// string (for example the structured topics of newer room versions).
// Every field is kept.
type RawRoomTopicContent struct {
	Fields Fields
}

func (RoomTopicContent) isContent()         {}
func (RoomTopicContent) isTopicContent()    {}
func (RawRoomTopicContent) isContent()      {}
func (RawRoomTopicContent) isTopicContent() {}

// MarshalJSON encodes {"topic": ...}.
func (c RoomTopicContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Topic string `json:"topic"`
	}{c.Topic})
}

// MarshalJSON encodes the original fields.
func (c RawRoomTopicContent) MarshalJSON() ([]byte, error) { return c.Fields.MarshalJSON() }

func decodeRaw(fields Fields) (RawContent, error) {
	return RawContent{Fields: fields}, nil
}

// Name and topic tables are keyed on the JSON kind of their one field:
// a string, or nothing at all, selects the typed variant. Any other
// kind misses and falls back to the raw variant.

var nameVariants = &discriminated[NameContent]{
	field: "name",
	key:   fieldKind,
	variants: map[string]func(Fields) (NameContent, error){
		kindString: func(fields Fields) (NameContent, error) {
			name, _ := fields.StringField("name")
			return RoomNameContent{Name: name}, nil
		},
		kindAbsent: func(Fields) (NameContent, error) {
			return RoomNameContent{}, nil
		},
	},
	fallback: func(fields Fields) (NameContent, error) {
		return RawRoomNameContent{Fields: fields}, nil
	},
}

var topicVariants = &discriminated[TopicContent]{
	field: "topic",
	key:   fieldKind,
	variants: map[string]func(Fields) (TopicContent, error){
		kindString: func(fields Fields) (TopicContent, error) {
			topic, _ := fields.StringField("topic")
			return RoomTopicContent{Topic: topic}, nil
		},
		kindAbsent: func(Fields) (TopicContent, error) {
			return RoomTopicContent{}, nil
		},
	},
	fallback: func(fields Fields) (TopicContent, error) {
		return RawRoomTopicContent{Fields: fields}, nil
	},
}

func decodeRoomName(fields Fields) (NameContent, error) {
	return nameVariants.decode(fields)
}

func decodeRoomTopic(fields Fields) (TopicContent, error) {
	return topicVariants.decode(fields)
}

// widen adapts a family decoder with a concrete result type to one
// returning Content.
func widen[C Content](family func(Fields) (C, error)) func(Fields) (Content, error) {
	return func(fields Fields) (Content, error) {
		value, err := family(fields)
		if err != nil {
			return nil, err
		}
		return value, nil
	}
}

// contentFamilies maps event types to the decoder for their content.
// Types not listed use RawContent.
var contentFamilies = map[ref.EventType]func(Fields) (Content, error){
	TypeRoomMessage:   widen(decodeMessage),
	TypeRoomName:      widen(decodeRoomName),
	TypeRoomTopic:     widen(decodeRoomTopic),
	TypeRoomEncrypted: widen(decodeEncrypted),
}

// DecodeContent decodes a content object using the family selected
// by eventType. It serves any body shaped like content: a state event
// fetched on its own, or a prev_content. The only error is an
// *InvalidContentError, labelled "object", when data is not a JSON
// object: every family has a fallback variant.
func DecodeContent(eventType ref.EventType, data []byte) (Content, error) {
	fields, err := parseObject(data)
	if err != nil {
		return nil, &InvalidContentError{Field: fieldObject, Err: err}
	}
	family, known := contentFamilies[eventType]
	if !known {
		family = widen(decodeRaw)
	}
	content, err := family(fields)
	if err != nil {
		return nil, &InvalidContentError{Field: fieldObject, Err: fmt.Errorf("%s: %w", eventType, err)}
	}
	return content, nil
}
