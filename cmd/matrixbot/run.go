// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/matrixbot/lib/bot"
	"github.com/bureau-foundation/matrixbot/lib/botstore"
	"github.com/bureau-foundation/matrixbot/lib/config"
	"github.com/bureau-foundation/matrixbot/lib/event"
	"github.com/bureau-foundation/matrixbot/lib/ref"
	"github.com/bureau-foundation/matrixbot/messaging"
)

func runCommand(args []string) error {
	flagSet := newFlagSet("run")
	configPath := flagSet.String("config", "", "config file (default: $MATRIXBOT_CONFIG)")
	if proceed, err := parseFlags(flagSet, args); !proceed {
		return err
	}
	if flagSet.NArg() > 0 {
		return usagef("unexpected argument: %s", flagSet.Arg(0))
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Format, cfg.LogLevel(), os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runBot(ctx, cfg, logger)
}

// runBot connects to the homeserver and drives the bot until it exits,
// ctx is cancelled, or /sync fails for good.
func runBot(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	userID, err := cfg.UserID()
	if err != nil {
		return err
	}
	logger = logger.With("user_id", userID)

	store, err := botstore.Open(botstore.Config{
		Path:   cfg.Storage.Database,
		UserID: userID,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	state, err := store.State(ctx)
	if err != nil {
		return err
	}
	if state == bot.StateDeleted {
		logger.Info("bot is deleted, not starting")
		return nil
	}

	session, err := connect(ctx, cfg, userID, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	if cfg.Bot.DisplayName != "" {
		if err := session.SetDisplayName(ctx, cfg.Bot.DisplayName); err != nil {
			logger.Warn("setting display name failed", "error", err)
		}
	}

	matrixBot, err := bot.New(bot.Config{
		UserID:           userID,
		Store:            store,
		Joiner:           session,
		Processor:        logProcessor(logger),
		ExitOnEmptyRooms: cfg.Bot.ExitOnEmptyRooms,
		Rooms:            session,
		Logger:           logger,
	})
	if err != nil {
		return err
	}
	matrixBot.OnShutdown(func() {
		logger.Info("bot signalled exit")
	})

	timeout, err := cfg.SyncTimeout()
	if err != nil {
		return err
	}
	maxBackoff, err := cfg.SyncMaxBackoff()
	if err != nil {
		return err
	}
	source, err := messaging.NewSyncSource(messaging.SyncSourceConfig{
		Syncer:     session,
		Tokens:     store,
		Filter:     cfg.Sync.Filter,
		Timeout:    int(timeout.Milliseconds()),
		MaxBackoff: maxBackoff,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	logger.Info("bot running", "state", state, "homeserver", cfg.Matrix.HomeserverURL)
	if err := matrixBot.Run(ctx, source); err != nil {
		return err
	}

	final, err := matrixBot.State(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	logger.Info("bot stopped", "state", final)
	return nil
}

// connect builds a session from the configured token and checks that
// the homeserver accepts it for userID.
func connect(ctx context.Context, cfg *config.Config, userID ref.UserID, logger *slog.Logger) (*messaging.Session, error) {
	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Matrix.HomeserverURL,
		HTTPClient:    &http.Client{},
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	token, err := readAccessToken(cfg.Matrix.AccessTokenFile, os.Stdin, os.Stderr)
	if err != nil {
		return nil, err
	}

	var session *messaging.Session
	if cfg.Matrix.AppService {
		session, err = client.AppServiceSession(userID, token)
	} else {
		session, err = client.SessionFromToken(userID, token)
	}
	if err != nil {
		token.Close()
		return nil, err
	}

	whoami, err := session.WhoAmI(ctx)
	if err != nil {
		session.Close()
		return nil, err
	}
	if whoami != userID {
		session.Close()
		return nil, fmt.Errorf("access token belongs to %s, config says %s", whoami, userID)
	}
	return session, nil
}

// logProcessor records events delivered to a joined bot. Behaviour
// beyond the lifecycle belongs to programs embedding lib/bot.
func logProcessor(logger *slog.Logger) bot.RoomProcessor {
	return bot.RoomProcessorFunc(func(ctx context.Context, roomID ref.RoomID, events []event.Event) (bot.Signal, error) {
		for _, ev := range events {
			header := ev.EventHeader()
			attributes := []any{
				"room_id", roomID,
				"event_id", header.ID,
				"sender", header.Sender,
				"type", header.Type,
			}
			if message, ok := ev.(*event.RoomMessage); ok && message.Content != nil {
				attributes = append(attributes, "msgtype", message.Content.MsgType())
			}
			logger.InfoContext(ctx, "event", attributes...)
		}
		return bot.Run, nil
	})
}
