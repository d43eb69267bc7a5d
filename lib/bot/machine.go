// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/matrixbot/lib/event"
	"github.com/bureau-foundation/matrixbot/lib/ref"
)

// InitAction prepares a NEW bot: typically it sets the display name
// and seeds the extra data. It runs inside the transaction that moves
// the bot to REGISTERED.
type InitAction func(ctx context.Context, tx Tx) error

// RegistrationPredicate decides whether a REGISTERED bot has been
// accepted into a room and should move to JOINED. rooms maps each room
// to the stripped state seen for it.
type RegistrationPredicate func(ctx context.Context, rooms map[ref.RoomID][]event.StrippedState) (bool, error)

// RoomProcessor handles events for a JOINED bot. A processor that
// wants the bot to stop returns Exit; one that wants a different
// lifecycle state writes it through the Store.
type RoomProcessor interface {
	ProcessRoom(ctx context.Context, roomID ref.RoomID, events []event.Event) (Signal, error)
}

// RoomProcessorFunc adapts a function to RoomProcessor.
type RoomProcessorFunc func(ctx context.Context, roomID ref.RoomID, events []event.Event) (Signal, error)

func (f RoomProcessorFunc) ProcessRoom(ctx context.Context, roomID ref.RoomID, events []event.Event) (Signal, error) {
	return f(ctx, roomID, events)
}

// MachineConfig holds the collaborators of a Machine.
type MachineConfig struct {
	// Store persists the lifecycle state. Required.
	Store Store

	// Init runs when a NEW bot sees its first event. Nil means there
	// is nothing to prepare; the bot still moves to REGISTERED.
	Init InitAction

	// Accept decides the REGISTERED to JOINED transition. Required.
	Accept RegistrationPredicate

	// Processor handles events once the bot is JOINED. Required.
	Processor RoomProcessor

	// Logger receives transition and error logs. Nil discards.
	Logger *slog.Logger
}

// Machine computes one lifecycle step per event. It holds no mutable
// state of its own; the current state lives in the Store and callers
// serialise steps (Router does).
type Machine struct {
	store     Store
	init      InitAction
	accept    RegistrationPredicate
	processor RoomProcessor
	logger    *slog.Logger
}

// NewMachine validates config and returns a Machine.
func NewMachine(config MachineConfig) (*Machine, error) {
	if config.Store == nil {
		return nil, errors.New("bot: machine requires a Store")
	}
	if config.Accept == nil {
		return nil, errors.New("bot: machine requires a RegistrationPredicate")
	}
	if config.Processor == nil {
		return nil, errors.New("bot: machine requires a RoomProcessor")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Machine{
		store:     config.Store,
		init:      config.Init,
		accept:    config.Accept,
		processor: config.Processor,
		logger:    logger,
	}, nil
}

// Step routes ev according to state, the state the caller read from
// the Store. It returns the state after the step and the signal for
// the caller.
//
// On error the persisted state is unchanged (except for writes a
// RoomProcessor committed itself) and the signal is Run, so the next
// event retries.
func (m *Machine) Step(ctx context.Context, state State, ev event.Event) (State, Signal, error) {
	switch state {
	case StateNew:
		return m.stepNew(ctx)
	case StateRegistered:
		return m.stepRegistered(ctx, ev)
	case StateJoined:
		return m.stepJoined(ctx, ev)
	case StateDeleted:
		return StateDeleted, Exit, nil
	default:
		m.logger.Error("unknown bot state, ignoring event",
			"state", string(state),
			"event_type", ev.EventHeader().Type,
		)
		return state, Run, nil
	}
}

func (m *Machine) stepNew(ctx context.Context) (State, Signal, error) {
	err := m.store.RunInTransaction(ctx, func(ctx context.Context, tx Tx) error {
		if m.init != nil {
			if err := m.init(ctx, tx); err != nil {
				return fmt.Errorf("init action: %w", err)
			}
		}
		return tx.SetState(StateRegistered)
	})
	if err != nil {
		return StateNew, Run, fmt.Errorf("bot: initialising: %w", err)
	}
	m.logger.Info("bot registered")
	return StateRegistered, Run, nil
}

func (m *Machine) stepRegistered(ctx context.Context, ev event.Event) (State, Signal, error) {
	roomID := ev.EventHeader().RoomID
	rooms := map[ref.RoomID][]event.StrippedState{
		roomID: {event.Strip(ev)},
	}
	accepted, err := m.accept(ctx, rooms)
	if err != nil {
		return StateRegistered, Run, fmt.Errorf("bot: registration predicate: %w", err)
	}
	if !accepted {
		return StateRegistered, Run, nil
	}
	err = m.store.RunInTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.SetState(StateJoined)
	})
	if err != nil {
		return StateRegistered, Run, fmt.Errorf("bot: recording join: %w", err)
	}
	m.logger.Info("bot joined", "room_id", roomID)
	return StateJoined, Run, nil
}

func (m *Machine) stepJoined(ctx context.Context, ev event.Event) (State, Signal, error) {
	roomID := ev.EventHeader().RoomID
	signal, err := m.processor.ProcessRoom(ctx, roomID, []event.Event{ev})
	if err != nil {
		return StateJoined, Run, fmt.Errorf("bot: processing room %s: %w", roomID, err)
	}
	state, err := m.store.State(ctx)
	if err != nil {
		return StateJoined, signal, fmt.Errorf("bot: reading state after processing: %w", err)
	}
	return state, signal, nil
}
