// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is the bot's Matrix client-server API transport.
//
// [Client] holds the homeserver URL and HTTP transport. It logs in with
// a password or wraps an existing access token into a [Session]. For an
// application-service bot, [Client.AppServiceSession] builds a Session
// that authenticates with the app service token and asserts the bot's
// identity by adding user_id=<bot> to every request.
//
// Session covers what a bot does in a room: sending messages, notices,
// formatted messages, arbitrary events and state events, redacting,
// joining and leaving, and reading events back. Events read from the
// homeserver come back decoded through lib/event. Every send uses an
// idempotent PUT with a random transaction ID.
//
// [SyncSource] long-polls /sync and hands the bot one raw event at a
// time, with room_id filled in, implementing bot.Source. It persists
// the sync position through a [TokenStore] and retries transient
// failures with exponential backoff.
//
// Homeserver errors are returned as [*MatrixError]; [IsMatrixError]
// tests for a specific errcode. Request URLs are built by string
// concatenation with url.PathEscape on each segment.
package messaging
