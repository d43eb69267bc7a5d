// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/bureau-foundation/matrixbot/lib/event"
	"github.com/bureau-foundation/matrixbot/lib/ref"
)

type fakeRooms struct {
	rooms  []ref.RoomID
	err    error
	joined []ref.RoomID
	calls  int
}

func (f *fakeRooms) JoinedRooms(ctx context.Context) ([]ref.RoomID, error) {
	f.calls++
	return f.rooms, f.err
}

func (f *fakeRooms) JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error) {
	if f.err != nil {
		return ref.RoomID{}, f.err
	}
	f.joined = append(f.joined, roomID)
	return roomID, nil
}

const leaveEvent = `{"type":"m.room.member","room_id":"!room:example.org","sender":"@admin:example.org","state_key":"@bot:example.org","content":{"membership":"leave"}}`

func TestEmptyRoomsProcessor(t *testing.T) {
	room := ref.MustParseRoomID("!other:example.org")
	tests := []struct {
		name        string
		exitOnEmpty bool
		rooms       []ref.RoomID
		data        string
		wantSignal  Signal
		wantState   State
		wantLookups int
	}{
		{name: "last room left", exitOnEmpty: true, data: leaveEvent, wantSignal: Exit, wantState: StateDeleted, wantLookups: 1},
		{name: "rooms remain", exitOnEmpty: true, rooms: []ref.RoomID{room}, data: leaveEvent, wantSignal: Run, wantState: StateJoined, wantLookups: 1},
		{name: "disabled", exitOnEmpty: false, data: leaveEvent, wantSignal: Run, wantState: StateJoined},
		{name: "not a membership event", exitOnEmpty: true, data: textEvent, wantSignal: Run, wantState: StateJoined},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			store := newMemoryStore(StateJoined)
			lister := &fakeRooms{rooms: test.rooms}
			processor := NewEmptyRoomsProcessor(&recordingProcessor{}, lister, store, test.exitOnEmpty, nil)
			ev := testEvent(t, test.data)
			signal, err := processor.ProcessRoom(context.Background(), ev.EventHeader().RoomID, []event.Event{ev})
			if err != nil {
				t.Fatalf("ProcessRoom: %v", err)
			}
			if signal != test.wantSignal {
				t.Errorf("signal = %s, want %s", signal, test.wantSignal)
			}
			if store.current() != test.wantState {
				t.Errorf("state = %s, want %s", store.current(), test.wantState)
			}
			if lister.calls != test.wantLookups {
				t.Errorf("JoinedRooms called %d times, want %d", lister.calls, test.wantLookups)
			}
		})
	}
}

func TestEmptyRoomsProcessorListError(t *testing.T) {
	store := newMemoryStore(StateJoined)
	processor := NewEmptyRoomsProcessor(&recordingProcessor{}, &fakeRooms{err: errBoom}, store, true, nil)
	ev := testEvent(t, leaveEvent)
	if _, err := processor.ProcessRoom(context.Background(), ev.EventHeader().RoomID, []event.Event{ev}); !errors.Is(err, errBoom) {
		t.Errorf("error = %v, want %v", err, errBoom)
	}
	if store.current() != StateJoined {
		t.Errorf("state = %s, want JOINED", store.current())
	}
}

func TestEmptyRoomsProcessorLogsExit(t *testing.T) {
	var output bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&output, nil))
	processor := NewEmptyRoomsProcessor(&recordingProcessor{}, &fakeRooms{}, newMemoryStore(StateJoined), true, logger)
	ev := testEvent(t, leaveEvent)
	signal, err := processor.ProcessRoom(context.Background(), ev.EventHeader().RoomID, []event.Event{ev})
	if err != nil {
		t.Fatalf("ProcessRoom: %v", err)
	}
	if signal != Exit {
		t.Errorf("signal = %s, want EXIT", signal)
	}
	if !strings.Contains(output.String(), "room_id=!room:example.org") {
		t.Errorf("exit not logged with room_id: %q", output.String())
	}
}

func TestInvitedTo(t *testing.T) {
	bot := ref.MustParseUserID("@bot:example.org")
	room := ref.MustParseRoomID("!room:example.org")
	tests := []struct {
		name string
		data string
		want bool
	}{
		{name: "invite for bot", data: inviteEvent, want: true},
		{name: "invite for someone else", data: `{"type":"m.room.member","state_key":"@carol:example.org","content":{"membership":"invite"}}`},
		{name: "leave for bot", data: leaveEvent},
		{name: "message", data: textEvent},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rooms := map[ref.RoomID][]event.StrippedState{room: {event.Strip(testEvent(t, test.data))}}
			got, err := InvitedTo(bot)(context.Background(), rooms)
			if err != nil {
				t.Fatalf("predicate: %v", err)
			}
			if got != test.want {
				t.Errorf("accepted = %v, want %v", got, test.want)
			}
		})
	}
}

func TestJoinOnInvite(t *testing.T) {
	bot := ref.MustParseUserID("@bot:example.org")
	invited := ref.MustParseRoomID("!room:example.org")
	other := ref.MustParseRoomID("!other:example.org")
	rooms := map[ref.RoomID][]event.StrippedState{
		invited: {event.Strip(testEvent(t, inviteEvent))},
		other:   {event.Strip(testEvent(t, textEvent))},
	}

	joiner := &fakeRooms{}
	accepted, err := JoinOnInvite(joiner, bot, nil)(context.Background(), rooms)
	if err != nil || !accepted {
		t.Fatalf("JoinOnInvite = %v, %v; want accepted", accepted, err)
	}
	if len(joiner.joined) != 1 || joiner.joined[0] != invited {
		t.Errorf("joined %v, want [%s]", joiner.joined, invited)
	}

	failing := &fakeRooms{err: errBoom}
	accepted, err = JoinOnInvite(failing, bot, nil)(context.Background(), rooms)
	if accepted || !errors.Is(err, errBoom) {
		t.Errorf("JoinOnInvite with failing joiner = %v, %v; want rejected with %v", accepted, err, errBoom)
	}
}
