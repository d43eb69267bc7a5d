// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
)

// Fields is a JSON object with its values kept as raw, undecoded JSON.
// Fallback variants hold their content as Fields so that nothing the
// sender wrote is lost, including fields this package does not model.
type Fields map[string]json.RawMessage

var nullLiteral = []byte("null")

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), nullLiteral)
}

// parseObject decodes data as a JSON object. Arrays, strings, numbers,
// null and malformed input are rejected.
func parseObject(data []byte) (Fields, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("not a JSON object")
	}
	fields := Fields{}
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// StringField returns the named field as a string. ok is false when
// the field is absent, null, or not a JSON string.
func (f Fields) StringField(name string) (value string, ok bool) {
	raw, present := f[name]
	if !present || isNull(raw) {
		return "", false
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	return value, true
}

func (f Fields) stringKey(name string) (string, bool) {
	return f.StringField(name)
}

// JSON kinds distinguished by fieldKind.
const (
	kindAbsent = "absent"
	kindString = "string"
	kindOther  = "other"
)

// fieldKind reports kindAbsent when the named field is missing or
// null, kindString when it is a JSON string, and kindOther otherwise.
func fieldKind(f Fields, name string) (string, bool) {
	raw, present := f[name]
	if !present || isNull(raw) {
		return kindAbsent, true
	}
	if _, ok := f.StringField(name); ok {
		return kindString, true
	}
	return kindOther, true
}

// optionalString returns the named field as a string, "" when absent
// or null, and an error when present with a non-string value.
func (f Fields) optionalString(name string) (string, error) {
	raw, present := f[name]
	if !present || isNull(raw) {
		return "", nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", fmt.Errorf("field %q is not a string", name)
	}
	return value, nil
}

// Decode unmarshals the object into target.
func (f Fields) Decode(target any) error {
	data, err := f.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// Clone returns a shallow copy. Raw values are shared; they are never
// mutated in place.
func (f Fields) Clone() Fields {
	return maps.Clone(f)
}

// MarshalJSON encodes the object. A nil Fields encodes as {} rather
// than null: content is always an object on the wire.
func (f Fields) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]json.RawMessage(f))
}
