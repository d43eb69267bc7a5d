// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import "fmt"

// State is the persisted lifecycle state of a bot.
type State string

const (
	// StateNew is the state of a bot that has never initialised.
	StateNew State = "NEW"

	// StateRegistered means initialisation committed and the bot is
	// waiting to be accepted into a room.
	StateRegistered State = "REGISTERED"

	// StateJoined means the bot is in at least one room and processes
	// events.
	StateJoined State = "JOINED"

	// StateDeleted is terminal. A deleted bot answers every event with
	// Exit.
	StateDeleted State = "DELETED"
)

// Valid reports whether s is one of the four lifecycle states.
func (s State) Valid() bool {
	switch s {
	case StateNew, StateRegistered, StateJoined, StateDeleted:
		return true
	}
	return false
}

// ParseState converts the persisted text form back into a State.
func ParseState(text string) (State, error) {
	state := State(text)
	if !state.Valid() {
		return "", fmt.Errorf("unknown bot state %q", text)
	}
	return state, nil
}

// Signal is the transient outcome of routing one event.
type Signal int

const (
	// Run means keep delivering events.
	Run Signal = iota

	// Exit means stop. The router fires shutdown listeners when a step
	// yields Exit.
	Exit
)

func (s Signal) String() string {
	switch s {
	case Run:
		return "run"
	case Exit:
		return "exit"
	default:
		return fmt.Sprintf("Signal(%d)", int(s))
	}
}
