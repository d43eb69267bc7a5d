// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import "fmt"

// DecodeError reports an inbound payload that could not be decoded
// into an event. The bot's state is never advanced for such a payload.
// Err is the lib/event error (*event.MissingFieldError or
// *event.InvalidContentError).
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("bot: decoding event: %v", e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// TransportError reports a failure of the Source delivering events.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("bot: receiving events: %v", e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }
