// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import "encoding/json"

// Message types with dedicated variants.
const (
	MsgTypeText   = "m.text"
	MsgTypeNotice = "m.notice"
)

// FormatHTML is the only "format" value Matrix defines for
// formatted_body.
const FormatHTML = "org.matrix.custom.html"

// MessageContent is the content of an m.room.message event. The
// concrete type is Text, Notice, or RawMessageContent.
type MessageContent interface {
	Content
	MsgType() string
	isMessageContent()
}

// Text is an m.text message. Body is "" when the sender omitted it.
type Text struct {
	Body          string
	Format        string
	FormattedBody string
}

// Notice is an m.notice message: bot output that other bots should not
// answer. Body is "" when the sender omitted it.
type Notice struct {
	Body          string
	Format        string
	FormattedBody string
}

// RawMessageContent is message content with an absent or unrecognised
// msgtype (m.emote, m.image, custom types). Every field is kept.
type RawMessageContent struct {
	Fields Fields
}

// NewText returns plain text content.
func NewText(body string) Text { return Text{Body: body} }

// NewNotice returns plain notice content.
func NewNotice(body string) Notice { return Notice{Body: body} }

// NewFormattedText returns text content with an HTML rendering.
func NewFormattedText(body, formattedBody string) Text {
	return Text{Body: body, Format: FormatHTML, FormattedBody: formattedBody}
}

func (Text) isContent()                     {}
func (Text) isMessageContent()              {}
func (Text) MsgType() string                { return MsgTypeText }
func (Notice) isContent()                   {}
func (Notice) isMessageContent()            {}
func (Notice) MsgType() string              { return MsgTypeNotice }
func (RawMessageContent) isContent()        {}
func (RawMessageContent) isMessageContent() {}

// MsgType returns the msgtype field, or "" when absent or not a string.
func (c RawMessageContent) MsgType() string {
	msgType, _ := c.Fields.StringField("msgtype")
	return msgType
}

// Body returns the body field, or "" when absent or not a string.
func (c RawMessageContent) Body() string {
	body, _ := c.Fields.StringField("body")
	return body
}

// MarshalJSON encodes the message with msgtype m.text.
func (t Text) MarshalJSON() ([]byte, error) {
	return json.Marshal(textualWire{MsgType: MsgTypeText, Body: t.Body, Format: t.Format, FormattedBody: t.FormattedBody})
}

// MarshalJSON encodes the message with msgtype m.notice.
func (n Notice) MarshalJSON() ([]byte, error) {
	return json.Marshal(textualWire{MsgType: MsgTypeNotice, Body: n.Body, Format: n.Format, FormattedBody: n.FormattedBody})
}

// MarshalJSON encodes the original fields.
func (c RawMessageContent) MarshalJSON() ([]byte, error) { return c.Fields.MarshalJSON() }

// textualWire is the wire shape shared by m.text and m.notice. Body is
// always written: Matrix requires it on every message.
type textualWire struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

func decodeTextual(fields Fields) (textualWire, error) {
	var wire textualWire
	var err error
	if wire.Body, err = fields.optionalString("body"); err != nil {
		return wire, err
	}
	if wire.Format, err = fields.optionalString("format"); err != nil {
		return wire, err
	}
	if wire.FormattedBody, err = fields.optionalString("formatted_body"); err != nil {
		return wire, err
	}
	return wire, nil
}

var messageVariants = &discriminated[MessageContent]{
	field: "msgtype",
	variants: map[string]func(Fields) (MessageContent, error){
		MsgTypeText: func(fields Fields) (MessageContent, error) {
			wire, err := decodeTextual(fields)
			if err != nil {
				return nil, err
			}
			return Text{Body: wire.Body, Format: wire.Format, FormattedBody: wire.FormattedBody}, nil
		},
		MsgTypeNotice: func(fields Fields) (MessageContent, error) {
			wire, err := decodeTextual(fields)
			if err != nil {
				return nil, err
			}
			return Notice{Body: wire.Body, Format: wire.Format, FormattedBody: wire.FormattedBody}, nil
		},
	},
	fallback: func(fields Fields) (MessageContent, error) {
		return RawMessageContent{Fields: fields}, nil
	},
}

func decodeMessage(fields Fields) (MessageContent, error) {
	return messageVariants.decode(fields)
}
