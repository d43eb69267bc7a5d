// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"

	"github.com/bureau-foundation/matrixbot/lib/ref"
)

// LoginRequest is the body of POST /login with a password.
type LoginRequest struct {
	Type                     string         `json:"type"`
	Identifier               UserIdentifier `json:"identifier"`
	Password                 string         `json:"password"`
	InitialDeviceDisplayName string         `json:"initial_device_display_name,omitempty"`
}

// UserIdentifier identifies the account in a LoginRequest.
type UserIdentifier struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// AuthResponse is returned by Login.
type AuthResponse struct {
	UserID      ref.UserID `json:"user_id"`
	AccessToken string     `json:"access_token"`
	DeviceID    string     `json:"device_id"`
}

// ServerVersionsResponse is returned by GET /_matrix/client/versions.
type ServerVersionsResponse struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features,omitempty"`
}

// WhoAmIResponse is returned by GET /account/whoami.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// SendEventResponse is returned by the send, state and redact
// endpoints.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// JoinedRoomsResponse is returned by GET /joined_rooms.
type JoinedRoomsResponse struct {
	JoinedRooms []ref.RoomID `json:"joined_rooms"`
}

// JoinedMember is one entry of GET /rooms/{roomId}/joined_members.
type JoinedMember struct {
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// RedactRequest is the body of a redaction.
type RedactRequest struct {
	Reason string `json:"reason,omitempty"`
}

// MessagesOptions selects a page of room history.
type MessagesOptions struct {
	// From is the pagination token to start at. Empty starts at the
	// latest event (dir=b) or the oldest (dir=f).
	From string
	// To stops pagination at this token.
	To string
	// Direction is "b" (backwards, the default) or "f".
	Direction string
	// Limit caps the number of events. Zero uses the server default.
	Limit int
	// Filter is a JSON RoomEventFilter.
	Filter string
}

// SyncOptions configures one /sync request.
type SyncOptions struct {
	// Since is the next_batch token of the previous sync. Empty
	// requests an initial sync.
	Since string
	// Timeout is the long-poll wait in milliseconds. Zero omits the
	// parameter and the server returns immediately.
	Timeout int
	// Filter is a filter ID or an inline JSON filter.
	Filter string
	// FullState requests all state events even with Since set.
	FullState bool
}

// SyncResponse is the subset of /sync the bot consumes. Events are
// kept raw so the caller can add room_id before decoding them.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection groups rooms by the bot's membership.
type RoomsSection struct {
	Join   map[ref.RoomID]JoinedRoom  `json:"join,omitempty"`
	Invite map[ref.RoomID]InvitedRoom `json:"invite,omitempty"`
	Leave  map[ref.RoomID]LeftRoom    `json:"leave,omitempty"`
}

// JoinedRoom is a room the bot is in.
type JoinedRoom struct {
	State    EventsSection   `json:"state"`
	Timeline TimelineSection `json:"timeline"`
}

// InvitedRoom is a room the bot has been invited to. Its events are
// stripped state.
type InvitedRoom struct {
	InviteState EventsSection `json:"invite_state"`
}

// LeftRoom is a room the bot left or was removed from since the last
// sync.
type LeftRoom struct {
	State    EventsSection   `json:"state"`
	Timeline TimelineSection `json:"timeline"`
}

// EventsSection is a list of raw events.
type EventsSection struct {
	Events []json.RawMessage `json:"events"`
}

// TimelineSection is a room's timeline slice in a sync response.
type TimelineSection struct {
	Events    []json.RawMessage `json:"events"`
	Limited   bool              `json:"limited,omitempty"`
	PrevBatch string            `json:"prev_batch,omitempty"`
}
