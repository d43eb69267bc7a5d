// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"encoding/json"
	"errors"
)

// Encryption algorithms with dedicated variants.
const (
	AlgorithmOlm    = "m.olm.v1.curve25519-aes-sha2"
	AlgorithmMegolm = "m.megolm.v1.aes-sha2"
)

// EncryptedContent is the content of an m.room.encrypted event. The
// concrete type is OlmContent, MegolmContent, or RawEncryptedContent.
// The bot does not decrypt; the variants exist so that handlers can
// tell what they were sent.
type EncryptedContent interface {
	Content
	Algorithm() string
	isEncryptedContent()
}

// OlmCiphertext is one per-device Olm payload.
type OlmCiphertext struct {
	Type int    `json:"type"`
	Body string `json:"body"`
}

// OlmContent is a to-device style Olm payload, keyed by the recipient
// device's Curve25519 key.
type OlmContent struct {
	SenderKey  string                   `json:"sender_key"`
	Ciphertext map[string]OlmCiphertext `json:"ciphertext"`
}

// MegolmContent is a room message encrypted with a Megolm session.
type MegolmContent struct {
	SenderKey  string `json:"sender_key,omitempty"`
	Ciphertext string `json:"ciphertext"`
	SessionID  string `json:"session_id"`
	DeviceID   string `json:"device_id,omitempty"`
}

// RawEncryptedContent is encrypted content with an unrecognised
// algorithm. Every field is kept.
type RawEncryptedContent struct {
	Fields Fields
}

func (OlmContent) isContent()                   {}
func (OlmContent) isEncryptedContent()          {}
func (OlmContent) Algorithm() string            { return AlgorithmOlm }
func (MegolmContent) isContent()                {}
func (MegolmContent) isEncryptedContent()       {}
func (MegolmContent) Algorithm() string         { return AlgorithmMegolm }
func (RawEncryptedContent) isContent()          {}
func (RawEncryptedContent) isEncryptedContent() {}

// Algorithm returns the algorithm field, or "" when absent.
func (c RawEncryptedContent) Algorithm() string {
	algorithm, _ := c.Fields.StringField("algorithm")
	return algorithm
}

// MarshalJSON encodes the payload with its algorithm.
func (c OlmContent) MarshalJSON() ([]byte, error) {
	type wire OlmContent
	return json.Marshal(struct {
		Algorithm string `json:"algorithm"`
		wire
	}{AlgorithmOlm, wire(c)})
}

// MarshalJSON encodes the payload with its algorithm.
func (c MegolmContent) MarshalJSON() ([]byte, error) {
	type wire MegolmContent
	return json.Marshal(struct {
		Algorithm string `json:"algorithm"`
		wire
	}{AlgorithmMegolm, wire(c)})
}

// MarshalJSON encodes the original fields.
func (c RawEncryptedContent) MarshalJSON() ([]byte, error) { return c.Fields.MarshalJSON() }

var encryptedVariants = &discriminated[EncryptedContent]{
	field: "algorithm",
	variants: map[string]func(Fields) (EncryptedContent, error){
		AlgorithmOlm: func(fields Fields) (EncryptedContent, error) {
			var content OlmContent
			if err := fields.Decode(&content); err != nil {
				return nil, err
			}
			if len(content.Ciphertext) == 0 {
				return nil, errors.New("olm content has no ciphertext")
			}
			return content, nil
		},
		AlgorithmMegolm: func(fields Fields) (EncryptedContent, error) {
			var content MegolmContent
			if err := fields.Decode(&content); err != nil {
				return nil, err
			}
			if content.Ciphertext == "" || content.SessionID == "" {
				return nil, errors.New("megolm content requires ciphertext and session_id")
			}
			return content, nil
		},
	},
	fallback: func(fields Fields) (EncryptedContent, error) {
		return RawEncryptedContent{Fields: fields}, nil
	},
}

func decodeEncrypted(fields Fields) (EncryptedContent, error) {
	return encryptedVariants.decode(fields)
}
