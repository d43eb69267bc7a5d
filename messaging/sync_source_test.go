// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/matrixbot/lib/clock"
	"github.com/bureau-foundation/matrixbot/lib/ref"
	"github.com/bureau-foundation/matrixbot/lib/testutil"
)

type syncResult struct {
	response *SyncResponse
	err      error
}

// scriptedSyncer returns its results in order and records the options
// of every call. Once the script runs out it fails the test.
type scriptedSyncer struct {
	t *testing.T

	mu      sync.Mutex
	script  []syncResult
	options []SyncOptions
}

func (s *scriptedSyncer) Sync(_ context.Context, options SyncOptions) (*SyncResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.options = append(s.options, options)
	if len(s.script) == 0 {
		s.t.Errorf("unexpected sync call %d", len(s.options))
		return nil, errors.New("script exhausted")
	}
	result := s.script[0]
	s.script = s.script[1:]
	return result.response, result.err
}

func (s *scriptedSyncer) calls() []SyncOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SyncOptions(nil), s.options...)
}

type memoryTokens struct {
	token string
	saves []string
}

func (m *memoryTokens) NextBatch(context.Context) (string, error) { return m.token, nil }

func (m *memoryTokens) SetNextBatch(_ context.Context, token string) error {
	m.token = token
	m.saves = append(m.saves, token)
	return nil
}

func rawEvents(events ...string) []json.RawMessage {
	raw := make([]json.RawMessage, len(events))
	for i, event := range events {
		raw[i] = json.RawMessage(event)
	}
	return raw
}

func TestSyncSourceFlattensInOrder(t *testing.T) {
	response := &SyncResponse{NextBatch: "s1"}
	response.Rooms.Invite = map[ref.RoomID]InvitedRoom{
		ref.MustParseRoomID("!invite:local"): {InviteState: EventsSection{Events: rawEvents(
			`{"type":"m.room.member","state_key":"@bot:local","sender":"@alice:local","content":{"membership":"invite"}}`,
		)}},
	}
	response.Rooms.Join = map[ref.RoomID]JoinedRoom{
		ref.MustParseRoomID("!b:local"): {Timeline: TimelineSection{Events: rawEvents(`{"type":"m.room.message","event_id":"$b1:local"}`)}},
		ref.MustParseRoomID("!a:local"): {Timeline: TimelineSection{Events: rawEvents(
			`{"type":"m.room.message","event_id":"$a1:local"}`,
			`{"type":"m.room.message","event_id":"$a2:local","room_id":"!elsewhere:local"}`,
		)}},
	}
	response.Rooms.Leave = map[ref.RoomID]LeftRoom{
		ref.MustParseRoomID("!gone:local"): {Timeline: TimelineSection{Events: rawEvents(`{"type":"m.room.member","event_id":"$l1:local"}`)}},
	}

	syncer := &scriptedSyncer{t: t, script: []syncResult{{response: response}}}
	source := newTestSource(t, SyncSourceConfig{Syncer: syncer})

	want := []struct{ roomID, eventID string }{
		{"!invite:local", ""},
		{"!a:local", "$a1:local"},
		{"!elsewhere:local", "$a2:local"},
		{"!b:local", "$b1:local"},
		{"!gone:local", "$l1:local"},
	}
	for i, expected := range want {
		data, err := source.Next(context.Background())
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		var fields struct {
			RoomID  string `json:"room_id"`
			EventID string `json:"event_id"`
		}
		if err := json.Unmarshal(data, &fields); err != nil {
			t.Fatalf("event %d is not JSON: %v", i, err)
		}
		if fields.RoomID != expected.roomID || fields.EventID != expected.eventID {
			t.Errorf("event %d = (%s, %s), want (%s, %s)",
				i, fields.RoomID, fields.EventID, expected.roomID, expected.eventID)
		}
	}
	if source.Since() != "s1" {
		t.Errorf("Since = %q, want s1", source.Since())
	}
}

func TestSyncSourceTokenLifecycle(t *testing.T) {
	message := rawEvents(`{"type":"m.room.message"}`)
	batch := func(next string) syncResult {
		response := &SyncResponse{NextBatch: next}
		response.Rooms.Join = map[ref.RoomID]JoinedRoom{ref.MustParseRoomID("!a:local"): {Timeline: TimelineSection{Events: message}}}
		return syncResult{response: response}
	}
	syncer := &scriptedSyncer{t: t, script: []syncResult{
		batch("s2"),
		{response: &SyncResponse{NextBatch: "s3"}},
		batch("s4"),
	}}
	tokens := &memoryTokens{token: "s1"}
	source := newTestSource(t, SyncSourceConfig{Syncer: syncer, Tokens: tokens, Timeout: 5000, Filter: "f"})

	if _, err := source.Next(context.Background()); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if len(tokens.saves) != 0 {
		t.Fatalf("token saved before the batch was consumed: %v", tokens.saves)
	}

	// The empty s3 response makes the source sync again without
	// returning, saving s2 and then s3 on the way to s4's event.
	if _, err := source.Next(context.Background()); err != nil {
		t.Fatalf("second Next: %v", err)
	}
	if got := tokens.saves; len(got) != 2 || got[0] != "s2" || got[1] != "s3" {
		t.Errorf("saves = %v, want [s2 s3]", got)
	}

	calls := syncer.calls()
	if len(calls) != 3 {
		t.Fatalf("sync calls = %d, want 3", len(calls))
	}
	for i, since := range []string{"s1", "s2", "s3"} {
		if calls[i].Since != since || calls[i].Timeout != 5000 || calls[i].Filter != "f" {
			t.Errorf("call %d = %+v, want since %s", i, calls[i], since)
		}
	}
}

func TestSyncSourceInitialSyncDoesNotWait(t *testing.T) {
	syncer := &scriptedSyncer{t: t, script: []syncResult{{response: &SyncResponse{
		NextBatch: "s1",
		Rooms: RoomsSection{Join: map[ref.RoomID]JoinedRoom{
			ref.MustParseRoomID("!a:local"): {Timeline: TimelineSection{Events: rawEvents(`{"type":"x"}`)}},
		}},
	}}}}
	source := newTestSource(t, SyncSourceConfig{Syncer: syncer, Tokens: &memoryTokens{}})

	if _, err := source.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if call := syncer.calls()[0]; call.Since != "" || call.Timeout != 0 {
		t.Errorf("initial sync options = %+v, want no since and no timeout", call)
	}
}

func TestSyncSourceRetriesWithBackoff(t *testing.T) {
	transient := &MatrixError{Code: ErrCodeUnknown, StatusCode: http.StatusBadGateway}
	syncer := &scriptedSyncer{t: t, script: []syncResult{
		{err: transient},
		{err: transient},
		{response: &SyncResponse{NextBatch: "s1", Rooms: RoomsSection{Join: map[ref.RoomID]JoinedRoom{
			ref.MustParseRoomID("!a:local"): {Timeline: TimelineSection{Events: rawEvents(`{"type":"x"}`)}},
		}}}},
	}}
	fakeClock := clock.Fake(time.Unix(1700000000, 0))
	source := newTestSource(t, SyncSourceConfig{Syncer: syncer, Clock: fakeClock})

	results := make(chan error, 1)
	go func() {
		_, err := source.Next(context.Background())
		results <- err
	}()

	fakeClock.WaitForTimers(1)
	fakeClock.Advance(time.Second)
	fakeClock.WaitForTimers(1)
	// The second wait doubles; one second is not enough.
	fakeClock.Advance(time.Second)
	if fakeClock.PendingCount() != 1 {
		t.Fatalf("backoff did not double: pending = %d", fakeClock.PendingCount())
	}
	fakeClock.Advance(time.Second)

	if err := testutil.RequireReceive(t, results, 5*time.Second, "waiting for Next"); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got := len(syncer.calls()); got != 3 {
		t.Errorf("sync calls = %d, want 3", got)
	}
}

func TestSyncSourceGivesUpAfterMaxRetries(t *testing.T) {
	transient := errors.New("connection reset")
	syncer := &scriptedSyncer{t: t, script: []syncResult{{err: transient}, {err: transient}}}
	fakeClock := clock.Fake(time.Unix(1700000000, 0))
	source := newTestSource(t, SyncSourceConfig{Syncer: syncer, Clock: fakeClock, MaxRetries: 1})

	results := make(chan error, 1)
	go func() {
		_, err := source.Next(context.Background())
		results <- err
	}()

	fakeClock.WaitForTimers(1)
	fakeClock.Advance(time.Second)

	err := testutil.RequireReceive(t, results, 5*time.Second, "waiting for Next")
	if !errors.Is(err, transient) {
		t.Fatalf("Next error = %v, want %v", err, transient)
	}
}

func TestSyncSourcePermanentErrorFailsImmediately(t *testing.T) {
	syncer := &scriptedSyncer{t: t, script: []syncResult{{
		err: &MatrixError{Code: ErrCodeUnknownToken, StatusCode: http.StatusUnauthorized},
	}}}
	fakeClock := clock.Fake(time.Unix(1700000000, 0))
	source := newTestSource(t, SyncSourceConfig{Syncer: syncer, Clock: fakeClock})

	_, err := source.Next(context.Background())
	if !IsMatrixError(err, ErrCodeUnknownToken) {
		t.Fatalf("Next error = %v, want M_UNKNOWN_TOKEN", err)
	}
	if fakeClock.PendingCount() != 0 {
		t.Errorf("permanent error scheduled a retry")
	}
}

func TestSyncSourceCancelledDuringBackoff(t *testing.T) {
	syncer := &scriptedSyncer{t: t, script: []syncResult{{err: errors.New("timeout")}}}
	fakeClock := clock.Fake(time.Unix(1700000000, 0))
	source := newTestSource(t, SyncSourceConfig{Syncer: syncer, Clock: fakeClock})

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan error, 1)
	go func() {
		_, err := source.Next(ctx)
		results <- err
	}()

	fakeClock.WaitForTimers(1)
	cancel()

	err := testutil.RequireReceive(t, results, 5*time.Second, "waiting for Next")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Next error = %v, want context.Canceled", err)
	}
}

func TestSyncSourceDropsMalformedEvents(t *testing.T) {
	syncer := &scriptedSyncer{t: t, script: []syncResult{{response: &SyncResponse{
		NextBatch: "s1",
		Rooms: RoomsSection{Join: map[ref.RoomID]JoinedRoom{
			ref.MustParseRoomID("!a:local"): {Timeline: TimelineSection{Events: rawEvents(`null`, `[1]`, `{"type":"ok"}`)}},
		}},
	}}}}
	source := newTestSource(t, SyncSourceConfig{Syncer: syncer})

	data, err := source.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	var fields map[string]string
	if err := json.Unmarshal(data, &fields); err != nil || fields["type"] != "ok" {
		t.Errorf("first delivered event = %s", data)
	}
}

func TestNewSyncSourceRequiresSyncer(t *testing.T) {
	if _, err := NewSyncSource(SyncSourceConfig{}); err == nil {
		t.Fatal("NewSyncSource without Syncer succeeded")
	}
}

func newTestSource(t *testing.T, config SyncSourceConfig) *SyncSource {
	t.Helper()
	source, err := NewSyncSource(config)
	if err != nil {
		t.Fatalf("NewSyncSource: %v", err)
	}
	return source
}
