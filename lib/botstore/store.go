// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package botstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/matrixbot/lib/bot"
	"github.com/bureau-foundation/matrixbot/lib/clock"
	"github.com/bureau-foundation/matrixbot/lib/codec"
	"github.com/bureau-foundation/matrixbot/lib/ref"
	"github.com/bureau-foundation/matrixbot/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS bots (
	user_id    TEXT PRIMARY KEY,
	state      TEXT NOT NULL DEFAULT 'NEW',
	extra      BLOB,
	next_batch TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL
);
`

// Config holds the parameters for opening a Store.
type Config struct {
	// Path is the database file. Required.
	Path string

	// UserID selects the bot record. Required.
	UserID ref.UserID

	// Clock stamps updated_at. Nil uses the real clock.
	Clock clock.Clock

	// Logger is passed to the connection pool. Nil discards.
	Logger *slog.Logger
}

// Store is the SQLite-backed record of one bot.
type Store struct {
	pool   *sqlitepool.Pool
	userID ref.UserID
	clock  clock.Clock
}

var (
	_ bot.Store = (*Store)(nil)
	_ bot.Tx    = (*tx)(nil)
)

// Open opens (creating if needed) the database at config.Path.
func Open(config Config) (*Store, error) {
	if config.UserID.IsZero() {
		return nil, errors.New("botstore: UserID is required")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   config.Path,
		Schema: schema,
		Logger: config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("botstore: %w", err)
	}
	return &Store{pool: pool, userID: config.UserID, clock: clk}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Record is a snapshot of a bot's row.
type Record struct {
	UserID    ref.UserID
	State     bot.State
	Extra     []byte // CBOR, nil when unset
	NextBatch string
	UpdatedAt time.Time // zero when the bot has no row yet
}

// Record reads the bot's full row. A bot without a row reports StateNew.
func (s *Store) Record(ctx context.Context) (Record, error) {
	record := Record{UserID: s.userID, State: bot.StateNew}
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"SELECT state, extra, next_batch, updated_at FROM bots WHERE user_id = ?",
			&sqlitex.ExecOptions{
				Args: []any{s.userID.String()},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					record.State = bot.State(stmt.ColumnText(0))
					record.Extra = columnBlob(stmt, 1)
					record.NextBatch = stmt.ColumnText(2)
					record.UpdatedAt = time.UnixMilli(stmt.ColumnInt64(3)).UTC()
					return nil
				},
			})
	})
	if err != nil {
		return Record{}, fmt.Errorf("botstore: reading record for %s: %w", s.userID, err)
	}
	return record, nil
}

// State returns the persisted state. A stored value that is not one of
// the known states is returned as is, so the lifecycle machine can
// report it.
func (s *Store) State(ctx context.Context) (bot.State, error) {
	record, err := s.Record(ctx)
	if err != nil {
		return "", err
	}
	return record.State, nil
}

// RunInTransaction runs fn inside one immediate transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx bot.Tx) error) error {
	return s.pool.Immediate(ctx, func(conn *sqlite.Conn) error {
		return fn(ctx, &tx{conn: conn, store: s})
	})
}

// ForceState overwrites the persisted state without running the
// lifecycle. Used by operators to reset or delete a bot.
func (s *Store) ForceState(ctx context.Context, state bot.State) error {
	if !state.Valid() {
		return fmt.Errorf("botstore: refusing to store unknown state %q", state)
	}
	return s.RunInTransaction(ctx, func(ctx context.Context, tx bot.Tx) error {
		return tx.SetState(state)
	})
}

// NextBatch returns the saved /sync position, "" when none.
func (s *Store) NextBatch(ctx context.Context) (string, error) {
	record, err := s.Record(ctx)
	if err != nil {
		return "", err
	}
	return record.NextBatch, nil
}

// SetNextBatch saves the /sync position.
func (s *Store) SetNextBatch(ctx context.Context, token string) error {
	return s.pool.Immediate(ctx, func(conn *sqlite.Conn) error {
		return s.upsert(conn, "next_batch", token)
	})
}

// upsert writes one column of the bot's row, creating the row as NEW
// when it does not exist. column is always a constant from this file.
func (s *Store) upsert(conn *sqlite.Conn, column string, value any) error {
	query := fmt.Sprintf(
		`INSERT INTO bots (user_id, %[1]s, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET %[1]s = excluded.%[1]s, updated_at = excluded.updated_at`,
		column)
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{s.userID.String(), value, s.clock.Now().UnixMilli()},
	})
	if err != nil {
		return fmt.Errorf("botstore: writing %s for %s: %w", column, s.userID, err)
	}
	return nil
}

func columnBlob(stmt *sqlite.Stmt, column int) []byte {
	if stmt.ColumnType(column) == sqlite.TypeNull {
		return nil
	}
	data := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, data)
	return data
}

// tx is the bot.Tx view over a connection inside an immediate
// transaction.
type tx struct {
	conn  *sqlite.Conn
	store *Store
}

func (t *tx) State() (bot.State, error) {
	state := bot.StateNew
	err := sqlitex.Execute(t.conn, "SELECT state FROM bots WHERE user_id = ?", &sqlitex.ExecOptions{
		Args: []any{t.store.userID.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			state = bot.State(stmt.ColumnText(0))
			return nil
		},
	})
	if err != nil {
		return "", fmt.Errorf("botstore: reading state: %w", err)
	}
	return state, nil
}

func (t *tx) SetState(state bot.State) error {
	return t.store.upsert(t.conn, "state", string(state))
}

func (t *tx) ExtraData(target any) (bool, error) {
	var data []byte
	err := sqlitex.Execute(t.conn, "SELECT extra FROM bots WHERE user_id = ?", &sqlitex.ExecOptions{
		Args: []any{t.store.userID.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			data = columnBlob(stmt, 0)
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("botstore: reading extra data: %w", err)
	}
	if data == nil {
		return false, nil
	}
	if err := codec.Unmarshal(data, target); err != nil {
		return true, fmt.Errorf("botstore: decoding extra data: %w", err)
	}
	return true, nil
}

func (t *tx) SetExtraData(value any) error {
	data, err := codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("botstore: encoding extra data: %w", err)
	}
	return t.store.upsert(t.conn, "extra", data)
}
