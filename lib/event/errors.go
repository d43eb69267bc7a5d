// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. The concrete errors carry the field name.
var (
	ErrMissingField   = errors.New("event: missing field")
	ErrInvalidContent = errors.New("event: invalid content")
)

// MissingFieldError reports that a mandatory field (the event "type")
// is absent, null, empty, or not a string.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("event: missing field %q", e.Field)
}

// Is reports whether target is ErrMissingField.
func (e *MissingFieldError) Is(target error) bool { return target == ErrMissingField }

// InvalidContentError reports that a sub-object could not be decoded.
// Field is "content" or "prev_content" within an event, "event" when
// the payload as a whole is not a JSON object, and "object" for a body
// passed to DecodeContent on its own.
type InvalidContentError struct {
	Field string
	Err   error
}

func (e *InvalidContentError) Error() string {
	return fmt.Sprintf("event: invalid %s: %v", e.Field, e.Err)
}

func (e *InvalidContentError) Unwrap() error { return e.Err }

// Is reports whether target is ErrInvalidContent.
func (e *InvalidContentError) Is(target error) bool { return target == ErrInvalidContent }
