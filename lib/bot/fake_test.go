// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/bureau-foundation/matrixbot/lib/event"
	"github.com/bureau-foundation/matrixbot/lib/ref"
)

// memoryStore is a transactional in-memory Store. Transactions work on
// a copy that replaces the committed record only when fn succeeds.
type memoryStore struct {
	mu           sync.Mutex
	state        State
	extra        []byte
	transactions int
	readErr      error
}

type memoryTx struct {
	state State
	extra []byte
}

func newMemoryStore(state State) *memoryStore {
	return &memoryStore{state: state}
}

func (s *memoryStore) State(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return "", s.readErr
	}
	return s.state, nil
}

func (s *memoryStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions++
	tx := &memoryTx{state: s.state, extra: s.extra}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.state = tx.state
	s.extra = tx.extra
	return nil
}

func (s *memoryStore) current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (tx *memoryTx) State() (State, error) { return tx.state, nil }

func (tx *memoryTx) SetState(state State) error {
	tx.state = state
	return nil
}

func (tx *memoryTx) ExtraData(target any) (bool, error) {
	if tx.extra == nil {
		return false, nil
	}
	return true, json.Unmarshal(tx.extra, target)
}

func (tx *memoryTx) SetExtraData(value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	tx.extra = data
	return nil
}

// recordingProcessor records every batch and answers with signal.
type recordingProcessor struct {
	mu      sync.Mutex
	rooms   []ref.RoomID
	batches [][]event.Event
	signal  Signal
	err     error
}

func (p *recordingProcessor) ProcessRoom(ctx context.Context, roomID ref.RoomID, events []event.Event) (Signal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rooms = append(p.rooms, roomID)
	p.batches = append(p.batches, events)
	return p.signal, p.err
}

func (p *recordingProcessor) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

func acceptAll(ctx context.Context, rooms map[ref.RoomID][]event.StrippedState) (bool, error) {
	return true, nil
}

func rejectAll(ctx context.Context, rooms map[ref.RoomID][]event.StrippedState) (bool, error) {
	return false, nil
}

func newTestMachine(t *testing.T, store Store, config MachineConfig) *Machine {
	t.Helper()
	config.Store = store
	if config.Accept == nil {
		config.Accept = acceptAll
	}
	if config.Processor == nil {
		config.Processor = &recordingProcessor{}
	}
	machine, err := NewMachine(config)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	return machine
}

func testEvent(t *testing.T, data string) event.Event {
	t.Helper()
	decoded, err := event.Decode([]byte(data))
	if err != nil {
		t.Fatalf("event.Decode(%s): %v", data, err)
	}
	return decoded
}

const (
	textEvent   = `{"type":"m.room.message","room_id":"!room:example.org","sender":"@alice:example.org","content":{"msgtype":"m.text","body":"hello"}}`
	inviteEvent = `{"type":"m.room.member","room_id":"!room:example.org","sender":"@alice:example.org","state_key":"@bot:example.org","content":{"membership":"invite"}}`
)

var errBoom = errors.New("boom")
