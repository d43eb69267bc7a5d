// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite databases for local bot state.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool, applies a fixed set
// of pragmas to every connection, runs the caller's schema script once
// per connection, and offers two helpers for the common shapes of work:
// [Pool.Read] for a borrowed connection and [Pool.Immediate] for a
// write transaction that commits when the callback returns nil.
//
// Pragmas applied to every connection:
//
//   - journal_mode=WAL so readers never block the writer
//   - synchronous=NORMAL: commits survive a process crash
//   - busy_timeout=5000 to wait for the write lock instead of failing
//   - foreign_keys=ON
//   - temp_store=MEMORY
//
// Immediate transactions take the write lock at BEGIN, so two writers
// never both read a value and then race to update it.
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   "/var/lib/matrixbot/bot.db",
//	    Schema: schema,
//	    Logger: logger,
//	})
//	...
//	err = pool.Immediate(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, "UPDATE ...", nil)
//	})
package sqlitepool
