// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bureau-foundation/matrixbot/lib/event"
	"github.com/bureau-foundation/matrixbot/lib/ref"
)

// Config assembles a Bot.
type Config struct {
	// UserID is the bot's Matrix account. Required.
	UserID ref.UserID

	// Store persists the lifecycle state. Required.
	Store Store

	// Init prepares a NEW bot. Optional.
	Init InitAction

	// Accept decides registration. When nil, the bot joins every room
	// it is invited to through Joiner.
	Accept RegistrationPredicate

	// Joiner joins rooms for the default registration predicate.
	// Required when Accept is nil.
	Joiner RoomJoiner

	// Processor handles events once the bot is JOINED. Required.
	Processor RoomProcessor

	// ExitOnEmptyRooms makes the bot delete itself and exit once it
	// has left its last room. Requires Rooms.
	ExitOnEmptyRooms bool

	// Rooms lists joined rooms for ExitOnEmptyRooms.
	Rooms RoomLister

	// Logger is shared by every component. Nil discards.
	Logger *slog.Logger
}

// Bot is a configured lifecycle machine behind a Router.
type Bot struct {
	userID ref.UserID
	store  Store
	router *Router
}

// New validates config and wires the machine and router.
func New(config Config) (*Bot, error) {
	if config.UserID.IsZero() {
		return nil, errors.New("bot: UserID is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	accept := config.Accept
	if accept == nil {
		if config.Joiner == nil {
			return nil, errors.New("bot: a RoomJoiner is required when no RegistrationPredicate is given")
		}
		accept = JoinOnInvite(config.Joiner, config.UserID, logger)
	}

	processor := config.Processor
	if config.ExitOnEmptyRooms {
		if config.Rooms == nil {
			return nil, errors.New("bot: ExitOnEmptyRooms requires a RoomLister")
		}
		if processor == nil {
			return nil, errors.New("bot: machine requires a RoomProcessor")
		}
		processor = NewEmptyRoomsProcessor(processor, config.Rooms, config.Store, true, logger)
	}

	machine, err := NewMachine(MachineConfig{
		Store:     config.Store,
		Init:      config.Init,
		Accept:    accept,
		Processor: processor,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return &Bot{
		userID: config.UserID,
		store:  config.Store,
		router: NewRouter(machine, logger),
	}, nil
}

// UserID returns the bot's Matrix account.
func (b *Bot) UserID() ref.UserID { return b.userID }

// State returns the persisted lifecycle state.
func (b *Bot) State(ctx context.Context) (State, error) { return b.store.State(ctx) }

// OnShutdown registers a listener for the Exit signal.
func (b *Bot) OnShutdown(listener func()) { b.router.OnShutdown(listener) }

// Send routes one decoded event.
func (b *Bot) Send(ctx context.Context, ev event.Event) (Signal, error) {
	return b.router.Send(ctx, ev)
}

// SendRaw decodes and routes one event.
func (b *Bot) SendRaw(ctx context.Context, data []byte) (Signal, error) {
	return b.router.SendRaw(ctx, data)
}

// Run drives the bot from source. See Router.Run.
func (b *Bot) Run(ctx context.Context, source Source) error {
	return b.router.Run(ctx, source)
}
