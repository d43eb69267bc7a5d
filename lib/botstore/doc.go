// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package botstore persists bot lifecycle records in SQLite.
//
// One database can hold several bots; each record is keyed by the
// bot's Matrix user ID and carries the lifecycle state, the bot's
// extra data (CBOR, see lib/codec), the /sync next_batch token, and the
// time of the last write. A bot with no record is NEW.
//
// Store implements bot.Store: every RunInTransaction call is one
// BEGIN IMMEDIATE transaction, so the init action and the move to
// REGISTERED commit or roll back together. Store also implements
// messaging.TokenStore so the sync position survives restarts.
package botstore
