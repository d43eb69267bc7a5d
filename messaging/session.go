// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/bureau-foundation/matrixbot/lib/event"
	"github.com/bureau-foundation/matrixbot/lib/ref"
	"github.com/bureau-foundation/matrixbot/lib/secret"
)

// Session is an authenticated Matrix session for one bot user.
// Safe for concurrent use.
type Session struct {
	client      *Client
	accessToken *secret.Buffer
	userID      ref.UserID
	deviceID    string

	// assertIdentity adds user_id=<userID> to every request, for
	// application-service bots.
	assertIdentity bool
}

// UserID returns the bot's Matrix user ID.
func (s *Session) UserID() ref.UserID {
	return s.userID
}

// DeviceID returns the device ID from Login, or "" for sessions built
// from an existing token.
func (s *Session) DeviceID() string {
	return s.deviceID
}

// Close releases the access token. Idempotent.
func (s *Session) Close() error {
	if s.accessToken == nil {
		return nil
	}
	return s.accessToken.Close()
}

// WhoAmI validates the session and returns the user ID the homeserver
// associates with it.
func (s *Session) WhoAmI(ctx context.Context) (ref.UserID, error) {
	body, err := s.do(ctx, http.MethodGet, clientPrefix+"/account/whoami", nil, nil)
	if err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: whoami failed: %w", err)
	}

	var response WhoAmIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: failed to parse whoami response: %w", err)
	}
	return response.UserID, nil
}

// JoinRoom joins a room by ID and returns the joined room's ID.
func (s *Session) JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error) {
	path := clientPrefix + "/join/" + url.PathEscape(roomID.String())
	body, err := s.do(ctx, http.MethodPost, path, nil, struct{}{})
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: join room %q failed: %w", roomID, err)
	}

	var response struct {
		RoomID ref.RoomID `json:"room_id"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: failed to parse join response: %w", err)
	}
	return response.RoomID, nil
}

// LeaveRoom leaves a room.
func (s *Session) LeaveRoom(ctx context.Context, roomID ref.RoomID) error {
	path := fmt.Sprintf(clientPrefix+"/rooms/%s/leave", url.PathEscape(roomID.String()))
	if _, err := s.do(ctx, http.MethodPost, path, nil, struct{}{}); err != nil {
		return fmt.Errorf("messaging: leave room %q failed: %w", roomID, err)
	}
	return nil
}

// JoinedRooms returns the rooms the bot has joined.
func (s *Session) JoinedRooms(ctx context.Context) ([]ref.RoomID, error) {
	body, err := s.do(ctx, http.MethodGet, clientPrefix+"/joined_rooms", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: joined rooms failed: %w", err)
	}

	var response JoinedRoomsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse joined rooms response: %w", err)
	}
	return response.JoinedRooms, nil
}

// SetDisplayName sets the bot's global display name.
func (s *Session) SetDisplayName(ctx context.Context, displayName string) error {
	path := fmt.Sprintf(clientPrefix+"/profile/%s/displayname", url.PathEscape(s.userID.String()))
	request := struct {
		DisplayName string `json:"displayname"`
	}{DisplayName: displayName}
	if _, err := s.do(ctx, http.MethodPut, path, nil, request); err != nil {
		return fmt.Errorf("messaging: set display name failed: %w", err)
	}
	return nil
}

// SendEvent sends a timeline event of any type to a room and returns
// its event ID. content is JSON-encoded; event.Content values encode
// to their wire shape.
func (s *Session) SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content any) (ref.EventID, error) {
	path := fmt.Sprintf(clientPrefix+"/rooms/%s/send/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventType.String()),
		url.PathEscape(newTransactionID()),
	)
	body, err := s.do(ctx, http.MethodPut, path, nil, content)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: send %s to %q failed: %w", eventType, roomID, err)
	}
	return parseEventID(body)
}

// SendStateEvent sets a piece of room state and returns the event ID.
// An empty stateKey addresses the room-wide instance of eventType.
func (s *Session) SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error) {
	path := fmt.Sprintf(clientPrefix+"/rooms/%s/state/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventType.String()),
		url.PathEscape(stateKey),
	)
	body, err := s.do(ctx, http.MethodPut, path, nil, content)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: send state %s to %q failed: %w", eventType, roomID, err)
	}
	return parseEventID(body)
}

// SendMessage sends an m.text message.
func (s *Session) SendMessage(ctx context.Context, roomID ref.RoomID, body string) (ref.EventID, error) {
	return s.SendEvent(ctx, roomID, event.TypeRoomMessage, event.NewText(body))
}

// SendNotice sends an m.notice message.
func (s *Session) SendNotice(ctx context.Context, roomID ref.RoomID, body string) (ref.EventID, error) {
	return s.SendEvent(ctx, roomID, event.TypeRoomMessage, event.NewNotice(body))
}

// SendFormattedMessage sends an m.text message with an HTML rendering.
// body is the plain-text fallback.
func (s *Session) SendFormattedMessage(ctx context.Context, roomID ref.RoomID, body, formattedBody string) (ref.EventID, error) {
	return s.SendEvent(ctx, roomID, event.TypeRoomMessage, event.NewFormattedText(body, formattedBody))
}

// SendFormattedNotice sends an m.notice message with an HTML rendering.
func (s *Session) SendFormattedNotice(ctx context.Context, roomID ref.RoomID, body, formattedBody string) (ref.EventID, error) {
	notice := event.Notice{Body: body, Format: event.FormatHTML, FormattedBody: formattedBody}
	return s.SendEvent(ctx, roomID, event.TypeRoomMessage, notice)
}

// Redact redacts an event and returns the ID of the redaction event.
// reason may be empty.
func (s *Session) Redact(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, reason string) (ref.EventID, error) {
	path := fmt.Sprintf(clientPrefix+"/rooms/%s/redact/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventID.String()),
		url.PathEscape(newTransactionID()),
	)
	body, err := s.do(ctx, http.MethodPut, path, nil, RedactRequest{Reason: reason})
	if err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: redact %s in %q failed: %w", eventID, roomID, err)
	}
	return parseEventID(body)
}

// Event fetches a single event by ID.
func (s *Session) Event(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) (event.Event, error) {
	path := fmt.Sprintf(clientPrefix+"/rooms/%s/event/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventID.String()),
	)
	body, err := s.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: get event %s failed: %w", eventID, err)
	}
	decoded, err := event.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("messaging: decoding event %s: %w", eventID, err)
	}
	return decoded, nil
}

// StateEventContent fetches the content of one state event, decoded
// through the content family of eventType.
func (s *Session) StateEventContent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (event.Content, error) {
	path := fmt.Sprintf(clientPrefix+"/rooms/%s/state/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventType.String()),
		url.PathEscape(stateKey),
	)
	body, err := s.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: get state %s in %q failed: %w", eventType, roomID, err)
	}
	content, err := event.DecodeContent(eventType, body)
	if err != nil {
		return nil, fmt.Errorf("messaging: decoding state %s: %w", eventType, err)
	}
	return content, nil
}

// RoomState fetches every current state event of a room.
func (s *Session) RoomState(ctx context.Context, roomID ref.RoomID) ([]event.Event, error) {
	path := fmt.Sprintf(clientPrefix+"/rooms/%s/state", url.PathEscape(roomID.String()))
	body, err := s.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: get room state for %q failed: %w", roomID, err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse room state response: %w", err)
	}
	return decodeEvents(raw)
}

// Members fetches the m.room.member state events of a room.
func (s *Session) Members(ctx context.Context, roomID ref.RoomID) ([]event.Event, error) {
	path := fmt.Sprintf(clientPrefix+"/rooms/%s/members", url.PathEscape(roomID.String()))
	body, err := s.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: get members of %q failed: %w", roomID, err)
	}

	var response struct {
		Chunk []json.RawMessage `json:"chunk"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse members response: %w", err)
	}
	return decodeEvents(response.Chunk)
}

// JoinedMembers returns the users currently joined to a room.
func (s *Session) JoinedMembers(ctx context.Context, roomID ref.RoomID) (map[ref.UserID]JoinedMember, error) {
	path := fmt.Sprintf(clientPrefix+"/rooms/%s/joined_members", url.PathEscape(roomID.String()))
	body, err := s.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: get joined members of %q failed: %w", roomID, err)
	}

	var response struct {
		Joined map[ref.UserID]JoinedMember `json:"joined"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse joined members response: %w", err)
	}
	return response.Joined, nil
}

// MessagesPage is one page of room history.
type MessagesPage struct {
	// Start is the token the page starts at.
	Start string
	// End continues pagination. Empty when there are no more events.
	End string
	// Chunk holds the events in pagination order.
	Chunk []event.Event
}

// Messages fetches a page of room history.
func (s *Session) Messages(ctx context.Context, roomID ref.RoomID, options MessagesOptions) (*MessagesPage, error) {
	path := fmt.Sprintf(clientPrefix+"/rooms/%s/messages", url.PathEscape(roomID.String()))

	query := url.Values{}
	if options.From != "" {
		query.Set("from", options.From)
	}
	if options.To != "" {
		query.Set("to", options.To)
	}
	direction := options.Direction
	if direction == "" {
		direction = "b"
	}
	query.Set("dir", direction)
	if options.Limit > 0 {
		query.Set("limit", strconv.Itoa(options.Limit))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}

	body, err := s.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: room messages for %q failed: %w", roomID, err)
	}

	var response struct {
		Start string            `json:"start"`
		End   string            `json:"end"`
		Chunk []json.RawMessage `json:"chunk"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse messages response: %w", err)
	}
	chunk, err := decodeEvents(response.Chunk)
	if err != nil {
		return nil, err
	}
	return &MessagesPage{Start: response.Start, End: response.End, Chunk: chunk}, nil
}

// Sync performs one /sync request.
func (s *Session) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	query := url.Values{}
	if options.Since != "" {
		query.Set("since", options.Since)
	}
	if options.Timeout > 0 {
		query.Set("timeout", strconv.Itoa(options.Timeout))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}
	if options.FullState {
		query.Set("full_state", "true")
	}

	body, err := s.do(ctx, http.MethodGet, clientPrefix+"/sync", query, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: sync failed: %w", err)
	}

	var response SyncResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse sync response: %w", err)
	}
	return &response, nil
}

// do sends an authenticated request, adding the identity assertion for
// app-service sessions.
func (s *Session) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	if s.assertIdentity {
		if query == nil {
			query = url.Values{}
		}
		query.Set("user_id", s.userID.String())
	}
	return s.client.doRequest(ctx, method, path, s.accessToken, query, body)
}

// newTransactionID returns a client transaction ID. The homeserver
// deduplicates retried PUTs with the same ID.
func newTransactionID() string {
	return "mb" + uuid.NewString()
}

func parseEventID(body []byte) (ref.EventID, error) {
	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: failed to parse send response: %w", err)
	}
	if response.EventID.IsZero() {
		return ref.EventID{}, fmt.Errorf("messaging: send response has no event_id")
	}
	return response.EventID, nil
}

func decodeEvents(raw []json.RawMessage) ([]event.Event, error) {
	events := make([]event.Event, 0, len(raw))
	for index, data := range raw {
		decoded, err := event.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("messaging: decoding event %d: %w", index, err)
		}
		events = append(events, decoded)
	}
	return events, nil
}
