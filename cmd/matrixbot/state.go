// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/bureau-foundation/matrixbot/lib/bot"
	"github.com/bureau-foundation/matrixbot/lib/botstore"
	"github.com/bureau-foundation/matrixbot/lib/codec"
)

// stateCommand shows or overwrites the persisted lifecycle record.
func stateCommand(args []string, stdout io.Writer) error {
	flagSet := newFlagSet("state")
	configPath := flagSet.String("config", "", "config file (default: $MATRIXBOT_CONFIG)")
	if proceed, err := parseFlags(flagSet, args); !proceed {
		return err
	}

	action := "show"
	if flagSet.NArg() > 0 {
		action = flagSet.Arg(0)
	}
	var target bot.State
	switch action {
	case "show":
		if flagSet.NArg() > 1 {
			return usagef("state show takes no arguments")
		}
	case "set":
		if flagSet.NArg() != 2 {
			return usagef("state set needs exactly one state")
		}
		parsed, err := bot.ParseState(flagSet.Arg(1))
		if err != nil {
			return usagef("%v", err)
		}
		target = parsed
	default:
		return usagef("unknown state action %q (want show or set)", action)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	userID, err := cfg.UserID()
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}
	store, err := botstore.Open(botstore.Config{Path: cfg.Storage.Database, UserID: userID})
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if action == "set" {
		if err := store.ForceState(ctx, target); err != nil {
			return err
		}
	}
	return printRecord(ctx, stdout, store)
}

func printRecord(ctx context.Context, w io.Writer, store *botstore.Store) error {
	record, err := store.Record(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "user_id:    %s\n", record.UserID)
	fmt.Fprintf(w, "state:      %s\n", record.State)
	if !record.State.Valid() {
		fmt.Fprintf(w, "            (not a known state; reset it with \"state set\")\n")
	}
	fmt.Fprintf(w, "next_batch: %s\n", valueOrNone(record.NextBatch))
	if record.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "updated_at: (never)\n")
	} else {
		fmt.Fprintf(w, "updated_at: %s\n", record.UpdatedAt.Format(time.RFC3339))
	}
	if record.Extra == nil {
		fmt.Fprintf(w, "extra:      (none)\n")
		return nil
	}
	notation, err := codec.Diagnose(record.Extra)
	if err != nil {
		return fmt.Errorf("extra data is not valid CBOR: %w", err)
	}
	fmt.Fprintf(w, "extra:      %s\n", notation)
	return nil
}

func valueOrNone(value string) string {
	if value == "" {
		return "(none)"
	}
	return value
}
