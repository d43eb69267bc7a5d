// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/matrixbot/lib/sqlitepool"
)

const counterSchema = `
	CREATE TABLE IF NOT EXISTS counter (
		id    INTEGER PRIMARY KEY CHECK (id = 1),
		value INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO counter (id, value) VALUES (1, 0);
`

func TestPragmas(t *testing.T) {
	pool := openTestPool(t, "")
	err := pool.Read(context.Background(), func(conn *sqlite.Conn) error {
		for pragma, want := range map[string]string{
			"journal_mode": "wal",
			"synchronous":  "1",
			"foreign_keys": "1",
		} {
			var got string
			err := sqlitex.ExecuteTransient(conn, "PRAGMA "+pragma, &sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					got = stmt.ColumnText(0)
					return nil
				},
			})
			if err != nil {
				return fmt.Errorf("PRAGMA %s: %w", pragma, err)
			}
			if got != want {
				t.Errorf("%s = %q, want %q", pragma, got, want)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestImmediateCommitsAndRollsBack(t *testing.T) {
	pool := openTestPool(t, counterSchema)
	ctx := context.Background()

	if err := pool.Immediate(ctx, increment); err != nil {
		t.Fatalf("Immediate: %v", err)
	}

	failure := errors.New("abort")
	err := pool.Immediate(ctx, func(conn *sqlite.Conn) error {
		if err := increment(conn); err != nil {
			return err
		}
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("Immediate error = %v, want %v", err, failure)
	}

	if got := readCounter(t, pool); got != 1 {
		t.Errorf("counter = %d, want 1 (second increment rolled back)", got)
	}
}

func TestImmediateSerialisesWriters(t *testing.T) {
	pool := openTestPool(t, counterSchema)
	const writers = 8
	var waitGroup sync.WaitGroup
	failures := make(chan error, writers)
	for range writers {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			if err := pool.Immediate(context.Background(), increment); err != nil {
				failures <- err
			}
		}()
	}
	waitGroup.Wait()
	close(failures)
	for err := range failures {
		t.Error(err)
	}
	if got := readCounter(t, pool); got != writers {
		t.Errorf("counter = %d, want %d", got, writers)
	}
}

func TestBadSchemaSurfacesOnTake(t *testing.T) {
	pool := openTestPool(t, "CREATE TABLE broken (")
	if _, err := pool.Take(context.Background()); err == nil {
		t.Fatal("Take succeeded with an invalid schema")
	}
}

func TestEmptyPathRejected(t *testing.T) {
	if _, err := sqlitepool.Open(sqlitepool.Config{}); err == nil {
		t.Fatal("expected error for empty Path")
	}
}

func TestTakeHonoursCancellation(t *testing.T) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     filepath.Join(t.TempDir(), "cancel.db"),
		PoolSize: 1,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.Take(ctx); err == nil {
		t.Fatal("Take on an exhausted pool with a cancelled context succeeded")
	}
}

func increment(conn *sqlite.Conn) error {
	return sqlitex.Execute(conn, "UPDATE counter SET value = value + 1 WHERE id = 1", nil)
}

func readCounter(t *testing.T, pool *sqlitepool.Pool) int64 {
	t.Helper()
	var value int64
	err := pool.Read(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT value FROM counter WHERE id = 1", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				value = stmt.ColumnInt64(0)
				return nil
			},
		})
	})
	if err != nil {
		t.Fatalf("reading counter: %v", err)
	}
	return value
}

func openTestPool(t *testing.T, schema string) *sqlitepool.Pool {
	t.Helper()
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     filepath.Join(t.TempDir(), "test.db"),
		PoolSize: 4,
		Schema:   schema,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return pool
}
