// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import "context"

// Store persists a bot's lifecycle state and its opaque extra data.
type Store interface {
	// State returns the persisted state. A store that has never been
	// written returns StateNew.
	State(ctx context.Context) (State, error)

	// RunInTransaction runs fn as one unit of work. Writes made
	// through tx commit together when fn returns nil and are
	// discarded when it returns an error, which RunInTransaction
	// returns unchanged or wrapped.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the view of the Store inside a transaction.
type Tx interface {
	State() (State, error)
	SetState(state State) error

	// ExtraData decodes the bot's extra data into target. found is
	// false when nothing has been stored yet; target is untouched.
	ExtraData(target any) (found bool, err error)

	// SetExtraData replaces the bot's extra data with value.
	SetExtraData(value any) error
}
