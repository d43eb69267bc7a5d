// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/bureau-foundation/matrixbot/lib/clock"
	"github.com/bureau-foundation/matrixbot/lib/ref"
)

// Syncer performs one /sync request. *Session implements it.
type Syncer interface {
	Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error)
}

// TokenStore persists the sync position across restarts.
type TokenStore interface {
	// NextBatch returns the stored token, or "" if none.
	NextBatch(ctx context.Context) (string, error)
	SetNextBatch(ctx context.Context, token string) error
}

// SyncSourceConfig configures a SyncSource.
type SyncSourceConfig struct {
	// Syncer issues the /sync requests. Required.
	Syncer Syncer

	// Tokens stores next_batch. Nil keeps the position in memory only,
	// so a restart replays from an initial sync.
	Tokens TokenStore

	// Filter is a filter ID or inline JSON filter.
	Filter string

	// Timeout is the long-poll timeout in milliseconds for incremental
	// syncs. Default: 30000. The initial sync never waits.
	Timeout int

	// MaxBackoff caps the wait between retries. Backoff starts at one
	// second and doubles. Default: 30 seconds.
	MaxBackoff time.Duration

	// MaxRetries is how many consecutive transient failures are
	// tolerated before Next returns the error. Default: 5.
	MaxRetries int

	// Clock drives the backoff timer. Default: clock.Real().
	Clock clock.Clock

	Logger *slog.Logger
}

// SyncSource turns the /sync long-poll into a stream of single events
// for the bot router. Each response is flattened in a fixed order:
// invited rooms' stripped state, then joined rooms' timelines, then
// left rooms' timelines, rooms sorted by ID within each group. Every
// event gets the room_id of the room it came from.
//
// The next_batch token of a response is persisted just before the
// following /sync, once every event of the response has been handed
// out. A crash mid-batch therefore replays the batch rather than
// losing it.
//
// Not safe for concurrent use; the router pulls from one goroutine.
type SyncSource struct {
	syncer     Syncer
	tokens     TokenStore
	filter     string
	timeout    int
	maxBackoff time.Duration
	maxRetries int
	clock      clock.Clock
	logger     *slog.Logger

	loaded  bool
	since   string
	unsaved bool
	queue   [][]byte
}

// NewSyncSource creates a SyncSource.
func NewSyncSource(config SyncSourceConfig) (*SyncSource, error) {
	if config.Syncer == nil {
		return nil, fmt.Errorf("messaging: SyncSourceConfig.Syncer is required")
	}
	source := &SyncSource{
		syncer:     config.Syncer,
		tokens:     config.Tokens,
		filter:     config.Filter,
		timeout:    config.Timeout,
		maxBackoff: config.MaxBackoff,
		maxRetries: config.MaxRetries,
		clock:      config.Clock,
		logger:     config.Logger,
	}
	if source.timeout == 0 {
		source.timeout = 30000
	}
	if source.maxBackoff == 0 {
		source.maxBackoff = 30 * time.Second
	}
	if source.maxRetries == 0 {
		source.maxRetries = 5
	}
	if source.clock == nil {
		source.clock = clock.Real()
	}
	if source.logger == nil {
		source.logger = slog.New(slog.DiscardHandler)
	}
	return source, nil
}

// Since returns the current sync position.
func (s *SyncSource) Since() string {
	return s.since
}

// Next returns the next event. It blocks in /sync until the homeserver
// has something to deliver. Errors are ctx.Err() on cancellation, or
// the last sync error once retries are exhausted or the failure is
// permanent (an invalid token, a refused request).
func (s *SyncSource) Next(ctx context.Context) ([]byte, error) {
	for len(s.queue) == 0 {
		if err := s.fill(ctx); err != nil {
			return nil, err
		}
	}
	data := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return data, nil
}

func (s *SyncSource) fill(ctx context.Context) error {
	if !s.loaded {
		if s.tokens != nil {
			token, err := s.tokens.NextBatch(ctx)
			if err != nil {
				return fmt.Errorf("messaging: loading sync token: %w", err)
			}
			s.since = token
		}
		s.loaded = true
	}
	if s.unsaved && s.tokens != nil {
		if err := s.tokens.SetNextBatch(ctx, s.since); err != nil {
			return fmt.Errorf("messaging: saving sync token: %w", err)
		}
	}
	s.unsaved = false

	response, err := s.syncWithRetry(ctx)
	if err != nil {
		return err
	}
	if response.NextBatch != "" && response.NextBatch != s.since {
		s.since = response.NextBatch
		s.unsaved = true
	}
	s.queue = flatten(response, s.logger)
	return nil
}

func (s *SyncSource) syncWithRetry(ctx context.Context) (*SyncResponse, error) {
	options := SyncOptions{Since: s.since, Filter: s.filter}
	if s.since != "" {
		options.Timeout = s.timeout
	}

	backoff := time.Second
	for attempt := 1; ; attempt++ {
		response, err := s.syncer.Sync(ctx, options)
		if err == nil {
			return response, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isPermanent(err) || attempt > s.maxRetries {
			return nil, err
		}

		s.logger.Warn("sync failed, retrying",
			"error", err,
			"attempt", attempt,
			"backoff", backoff,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.clock.After(backoff):
		}
		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

func flatten(response *SyncResponse, logger *slog.Logger) [][]byte {
	var queue [][]byte
	add := func(roomID ref.RoomID, events []json.RawMessage) {
		for _, raw := range events {
			data, err := withRoomID(raw, roomID)
			if err != nil {
				logger.Warn("dropping malformed sync event", "room_id", roomID, "error", err)
				continue
			}
			queue = append(queue, data)
		}
	}

	for _, roomID := range sortedRooms(response.Rooms.Invite) {
		add(roomID, response.Rooms.Invite[roomID].InviteState.Events)
	}
	for _, roomID := range sortedRooms(response.Rooms.Join) {
		add(roomID, response.Rooms.Join[roomID].Timeline.Events)
	}
	for _, roomID := range sortedRooms(response.Rooms.Leave) {
		add(roomID, response.Rooms.Leave[roomID].Timeline.Events)
	}
	return queue
}

// withRoomID sets room_id on an event object unless it already has
// one. /sync omits it because the room is the map key.
func withRoomID(raw json.RawMessage, roomID ref.RoomID) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, fmt.Errorf("event is null")
	}
	if _, ok := fields["room_id"]; ok {
		return raw, nil
	}
	encoded, err := json.Marshal(roomID.String())
	if err != nil {
		return nil, err
	}
	fields["room_id"] = encoded
	return json.Marshal(fields)
}

func sortedRooms[V any](rooms map[ref.RoomID]V) []ref.RoomID {
	ids := make([]ref.RoomID, 0, len(rooms))
	for roomID := range rooms {
		ids = append(ids, roomID)
	}
	slices.SortFunc(ids, func(a, b ref.RoomID) int {
		return strings.Compare(a.String(), b.String())
	})
	return ids
}
