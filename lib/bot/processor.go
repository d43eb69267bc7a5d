// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/matrixbot/lib/event"
	"github.com/bureau-foundation/matrixbot/lib/ref"
)

// RoomLister reports the rooms the bot's account is joined to.
// *messaging.Session satisfies it.
type RoomLister interface {
	JoinedRooms(ctx context.Context) ([]ref.RoomID, error)
}

// RoomJoiner joins a room. *messaging.Session satisfies it.
type RoomJoiner interface {
	JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error)
}

// EmptyRoomsProcessor wraps a RoomProcessor and stops the bot once it
// is no longer in any room. After each membership event the wrapped
// processor lets through, it asks the RoomLister for the joined rooms;
// when there are none and exit-on-empty is set, it marks the bot
// DELETED and returns Exit.
type EmptyRoomsProcessor struct {
	next        RoomProcessor
	rooms       RoomLister
	store       Store
	exitOnEmpty bool
	logger      *slog.Logger
}

// NewEmptyRoomsProcessor wraps next. A nil logger discards.
func NewEmptyRoomsProcessor(next RoomProcessor, rooms RoomLister, store Store, exitOnEmpty bool, logger *slog.Logger) *EmptyRoomsProcessor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &EmptyRoomsProcessor{
		next:        next,
		rooms:       rooms,
		store:       store,
		exitOnEmpty: exitOnEmpty,
		logger:      logger,
	}
}

func (p *EmptyRoomsProcessor) ProcessRoom(ctx context.Context, roomID ref.RoomID, events []event.Event) (Signal, error) {
	signal, err := p.next.ProcessRoom(ctx, roomID, events)
	if err != nil || signal == Exit || !p.exitOnEmpty || !hasMembershipChange(events) {
		return signal, err
	}

	rooms, err := p.rooms.JoinedRooms(ctx)
	if err != nil {
		return signal, fmt.Errorf("listing joined rooms: %w", err)
	}
	if len(rooms) > 0 {
		return signal, nil
	}

	err = p.store.RunInTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.SetState(StateDeleted)
	})
	if err != nil {
		return signal, fmt.Errorf("marking bot deleted: %w", err)
	}
	p.logger.Info("bot left its last room, exiting", "room_id", roomID)
	return Exit, nil
}

func hasMembershipChange(events []event.Event) bool {
	for _, ev := range events {
		if ev.EventHeader().Type == event.TypeRoomMember {
			return true
		}
	}
	return false
}

// membership returns the membership value of an m.room.member stripped
// state entry addressed to user.
func membership(state event.StrippedState, user ref.UserID) (string, bool) {
	if state.Type != event.TypeRoomMember || state.StateKey == nil || *state.StateKey != user.String() {
		return "", false
	}
	raw, ok := state.Content.(event.RawContent)
	if !ok {
		return "", false
	}
	return raw.Fields.StringField("membership")
}

// invited reports whether states hold an invite addressed to user.
func invited(states []event.StrippedState, user ref.UserID) bool {
	for _, state := range states {
		if value, ok := membership(state, user); ok && value == "invite" {
			return true
		}
	}
	return false
}

// InvitedTo accepts registration when any room's stripped state holds
// an invite addressed to user.
func InvitedTo(user ref.UserID) RegistrationPredicate {
	return func(ctx context.Context, rooms map[ref.RoomID][]event.StrippedState) (bool, error) {
		for _, states := range rooms {
			if invited(states, user) {
				return true, nil
			}
		}
		return false, nil
	}
}

// JoinOnInvite accepts registration by joining every room in which
// user has been invited. It accepts when at least one join succeeds;
// the first join error is returned only when none did.
func JoinOnInvite(joiner RoomJoiner, user ref.UserID, logger *slog.Logger) RegistrationPredicate {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(ctx context.Context, rooms map[ref.RoomID][]event.StrippedState) (bool, error) {
		var firstErr error
		joined := false
		for roomID, states := range rooms {
			if !invited(states, user) {
				continue
			}
			if _, err := joiner.JoinRoom(ctx, roomID); err != nil {
				logger.Warn("joining invited room failed", "room_id", roomID, "error", err)
				if firstErr == nil {
					firstErr = fmt.Errorf("joining %s: %w", roomID, err)
				}
				continue
			}
			logger.Info("joined invited room", "room_id", roomID)
			joined = true
		}
		if joined {
			return true, nil
		}
		return false, firstErr
	}
}

// ExtraData reads the bot's extra data inside its own transaction.
func ExtraData(ctx context.Context, store Store, target any) (found bool, err error) {
	err = store.RunInTransaction(ctx, func(ctx context.Context, tx Tx) error {
		found, err = tx.ExtraData(target)
		return err
	})
	return found, err
}

// SetExtraData replaces the bot's extra data inside its own
// transaction.
func SetExtraData(ctx context.Context, store Store, value any) error {
	return store.RunInTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.SetExtraData(value)
	})
}
