// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"encoding/json"
	"errors"

	"github.com/bureau-foundation/matrixbot/lib/ref"
)

// Top-level field names of the event wire format.
const (
	fieldType           = "type"
	fieldEventID        = "event_id"
	fieldRoomID         = "room_id"
	fieldSender         = "sender"
	fieldStateKey       = "state_key"
	fieldOriginServerTS = "origin_server_ts"
	fieldUnsigned       = "unsigned"
	fieldContent        = "content"
	fieldPrevContent    = "prev_content"

	// fieldObject labels errors from DecodeContent, whose input may be
	// a content, a prev_content or a fetched state body.
	fieldObject = "object"
)

// Event is a decoded Matrix event. The concrete type is one of
// *RoomMessage, *RoomName, *RoomTopic, *RoomEncrypted, or *Generic;
// use a type switch to reach the typed content.
type Event interface {
	json.Marshaler

	// EventHeader returns the fields common to every event.
	EventHeader() *Header

	// EventContent returns the decoded content.
	EventContent() Content

	// EventPrevContent returns the decoded prev_content, or nil when
	// the event has none.
	EventPrevContent() Content
}

// Header holds the fields every event carries besides its content.
type Header struct {
	ID             ref.EventID
	RoomID         ref.RoomID
	Sender         ref.UserID
	Type           ref.EventType
	StateKey       *string
	OriginServerTS int64

	// Unsigned is the server-added "unsigned" object, verbatim. Nil
	// when absent.
	Unsigned Fields

	// Extra holds top-level fields not modelled above, plus modelled
	// fields whose value did not parse (a malformed sender, a string
	// timestamp) or parsed to the zero value ("event_id": "",
	// "origin_server_ts": 0). Re-encoding writes them back unchanged
	// unless the modelled field has since been set.
	Extra Fields

	// contentOmitted records that the wire event had no content, or a
	// null one. Re-encoding then leaves content out.
	contentOmitted bool
}

// EventHeader returns h. It is promoted to every variant.
func (h *Header) EventHeader() *Header { return h }

// IsState reports whether the event is a state event.
func (h *Header) IsState() bool { return h.StateKey != nil }

// Age returns unsigned.age in milliseconds, if present.
func (h *Header) Age() (int64, bool) {
	raw, ok := h.Unsigned["age"]
	if !ok {
		return 0, false
	}
	var age int64
	if err := json.Unmarshal(raw, &age); err != nil {
		return 0, false
	}
	return age, true
}

// TransactionID returns unsigned.transaction_id, present only on
// events the bot itself sent.
func (h *Header) TransactionID() string {
	transactionID, _ := h.Unsigned.StringField("transaction_id")
	return transactionID
}

// RoomMessage is an m.room.message event.
type RoomMessage struct {
	Header
	Content     MessageContent
	PrevContent MessageContent
}

// RoomName is an m.room.name state event.
type RoomName struct {
	Header
	Content     NameContent
	PrevContent NameContent
}

// RoomTopic is an m.room.topic state event.
type RoomTopic struct {
	Header
	Content     TopicContent
	PrevContent TopicContent
}

// RoomEncrypted is an m.room.encrypted event.
type RoomEncrypted struct {
	Header
	Content     EncryptedContent
	PrevContent EncryptedContent
}

// Generic is any event whose type has no dedicated variant. Its content
// is kept verbatim.
type Generic struct {
	Header
	Content     RawContent
	PrevContent *RawContent
}

func (e *RoomMessage) EventContent() Content   { return e.Content }
func (e *RoomName) EventContent() Content      { return e.Content }
func (e *RoomTopic) EventContent() Content     { return e.Content }
func (e *RoomEncrypted) EventContent() Content { return e.Content }
func (e *Generic) EventContent() Content       { return e.Content }

func (e *RoomMessage) EventPrevContent() Content {
	if e.PrevContent == nil {
		return nil
	}
	return e.PrevContent
}

func (e *RoomName) EventPrevContent() Content {
	if e.PrevContent == nil {
		return nil
	}
	return e.PrevContent
}

func (e *RoomTopic) EventPrevContent() Content {
	if e.PrevContent == nil {
		return nil
	}
	return e.PrevContent
}

func (e *RoomEncrypted) EventPrevContent() Content {
	if e.PrevContent == nil {
		return nil
	}
	return e.PrevContent
}

func (e *Generic) EventPrevContent() Content {
	if e.PrevContent == nil {
		return nil
	}
	return *e.PrevContent
}

func (e *RoomMessage) MarshalJSON() ([]byte, error)   { return encode(e) }
func (e *RoomName) MarshalJSON() ([]byte, error)      { return encode(e) }
func (e *RoomTopic) MarshalJSON() ([]byte, error)     { return encode(e) }
func (e *RoomEncrypted) MarshalJSON() ([]byte, error) { return encode(e) }
func (e *Generic) MarshalJSON() ([]byte, error)       { return encode(e) }

// StrippedState is the projection of an event used while the bot is
// registering: who sent it, what kind of state, and the content.
type StrippedState struct {
	Sender   ref.UserID    `json:"sender"`
	StateKey *string       `json:"state_key,omitempty"`
	Type     ref.EventType `json:"type"`
	Content  Content       `json:"content"`
}

// Strip projects event to its stripped state.
func Strip(event Event) StrippedState {
	header := event.EventHeader()
	return StrippedState{
		Sender:   header.Sender,
		StateKey: header.StateKey,
		Type:     header.Type,
		Content:  event.EventContent(),
	}
}

var eventVariants = &discriminated[Event]{
	field:  fieldType,
	strict: true,
	variants: map[string]func(Fields) (Event, error){
		string(TypeRoomMessage): func(fields Fields) (Event, error) {
			content, prev, err := decodeContents(fields, decodeMessage)
			if err != nil {
				return nil, err
			}
			event := &RoomMessage{Header: parseHeader(fields), Content: content}
			if prev != nil {
				event.PrevContent = *prev
			}
			return event, nil
		},
		string(TypeRoomName): func(fields Fields) (Event, error) {
			content, prev, err := decodeContents(fields, decodeRoomName)
			if err != nil {
				return nil, err
			}
			event := &RoomName{Header: parseHeader(fields), Content: content}
			if prev != nil {
				event.PrevContent = *prev
			}
			return event, nil
		},
		string(TypeRoomTopic): func(fields Fields) (Event, error) {
			content, prev, err := decodeContents(fields, decodeRoomTopic)
			if err != nil {
				return nil, err
			}
			event := &RoomTopic{Header: parseHeader(fields), Content: content}
			if prev != nil {
				event.PrevContent = *prev
			}
			return event, nil
		},
		string(TypeRoomEncrypted): func(fields Fields) (Event, error) {
			content, prev, err := decodeContents(fields, decodeEncrypted)
			if err != nil {
				return nil, err
			}
			event := &RoomEncrypted{Header: parseHeader(fields), Content: content}
			if prev != nil {
				event.PrevContent = *prev
			}
			return event, nil
		},
	},
	fallback: func(fields Fields) (Event, error) {
		content, prev, err := decodeContents(fields, decodeRaw)
		if err != nil {
			return nil, err
		}
		return &Generic{Header: parseHeader(fields), Content: content, PrevContent: prev}, nil
	},
}

// Decode decodes one event from its JSON encoding.
//
// Errors are *MissingFieldError when "type" is missing and
// *InvalidContentError when data, "content" or "prev_content" is not a
// JSON object. An unknown type is not an error: it decodes to *Generic.
func Decode(data []byte) (Event, error) {
	fields, err := parseObject(data)
	if err != nil {
		return nil, &InvalidContentError{Field: "event", Err: err}
	}
	return decodeFields(fields)
}

// DecodeObject decodes an event that the transport has already parsed
// into a generic map.
func DecodeObject(object map[string]any) (Event, error) {
	data, err := json.Marshal(object)
	if err != nil {
		return nil, &InvalidContentError{Field: "event", Err: err}
	}
	return Decode(data)
}

func decodeFields(fields Fields) (Event, error) {
	if eventType, ok := fields.StringField(fieldType); !ok || eventType == "" {
		return nil, &MissingFieldError{Field: fieldType}
	}
	return eventVariants.decode(fields)
}

// decodeContents decodes content and, when present, prev_content
// through the same family. An absent content decodes as an empty
// object, which is what redacted events carry.
func decodeContents[C Content](fields Fields, family func(Fields) (C, error)) (content C, prev *C, err error) {
	content, err = decodeSubObject(fields, fieldContent, family)
	if err != nil {
		return content, nil, err
	}
	if raw, present := fields[fieldPrevContent]; present && !isNull(raw) {
		previous, err := decodeSubObject(fields, fieldPrevContent, family)
		if err != nil {
			return content, nil, err
		}
		prev = &previous
	}
	return content, prev, nil
}

func decodeSubObject[C Content](fields Fields, name string, family func(Fields) (C, error)) (C, error) {
	var zero C
	object := Fields{}
	if raw, present := fields[name]; present && !isNull(raw) {
		parsed, err := parseObject(raw)
		if err != nil {
			return zero, &InvalidContentError{Field: name, Err: err}
		}
		object = parsed
	}
	value, err := family(object)
	if err != nil {
		return zero, &InvalidContentError{Field: name, Err: err}
	}
	return value, nil
}

// parseHeader reads the common fields. It never fails: a value that
// does not parse, or parses to the zero value, stays in Extra.
func parseHeader(fields Fields) Header {
	var header Header
	keep := func(name string, raw json.RawMessage) {
		if header.Extra == nil {
			header.Extra = Fields{}
		}
		header.Extra[name] = raw
	}
	if raw, present := fields[fieldContent]; !present || isNull(raw) {
		header.contentOmitted = true
	}
	for name, raw := range fields {
		if isNull(raw) {
			keep(name, raw)
			continue
		}
		var err error
		zero := false
		switch name {
		case fieldContent, fieldPrevContent:
			continue
		case fieldType:
			err = json.Unmarshal(raw, &header.Type)
		case fieldEventID:
			err = json.Unmarshal(raw, &header.ID)
			zero = header.ID.IsZero()
		case fieldRoomID:
			err = json.Unmarshal(raw, &header.RoomID)
			zero = header.RoomID.IsZero()
		case fieldSender:
			err = json.Unmarshal(raw, &header.Sender)
			zero = header.Sender.IsZero()
		case fieldStateKey:
			var stateKey string
			if err = json.Unmarshal(raw, &stateKey); err == nil {
				header.StateKey = &stateKey
			}
		case fieldOriginServerTS:
			err = json.Unmarshal(raw, &header.OriginServerTS)
			zero = header.OriginServerTS == 0
		case fieldUnsigned:
			header.Unsigned, err = parseObject(raw)
		default:
			err = errUnmodelled
		}
		if err != nil || zero {
			keep(name, raw)
		}
	}
	return header
}

var errUnmodelled = errors.New("unmodelled field")

// encode writes the header fields, Extra, and the content pair.
// Modelled fields that are set win over Extra entries of the same
// name. Content is left out when the decoded event had none.
func encode(event Event) ([]byte, error) {
	header := event.EventHeader()
	object := make(map[string]any, len(header.Extra)+8)
	for name, raw := range header.Extra {
		object[name] = raw
	}
	object[fieldType] = header.Type
	if !header.ID.IsZero() {
		object[fieldEventID] = header.ID
	}
	if !header.RoomID.IsZero() {
		object[fieldRoomID] = header.RoomID
	}
	if !header.Sender.IsZero() {
		object[fieldSender] = header.Sender
	}
	if header.StateKey != nil {
		object[fieldStateKey] = *header.StateKey
	}
	if header.OriginServerTS != 0 {
		object[fieldOriginServerTS] = header.OriginServerTS
	}
	if header.Unsigned != nil {
		object[fieldUnsigned] = header.Unsigned
	}
	if !header.contentOmitted {
		if content := event.EventContent(); content != nil {
			object[fieldContent] = content
		} else {
			object[fieldContent] = Fields{}
		}
	}
	if prev := event.EventPrevContent(); prev != nil {
		object[fieldPrevContent] = prev
	}
	return json.Marshal(object)
}
