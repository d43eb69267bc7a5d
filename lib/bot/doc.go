// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bot drives a Matrix bot through its persisted lifecycle.
//
// A bot is in one of four persisted states:
//
//	NEW ──init──▶ REGISTERED ──accepted──▶ JOINED ──(processor)──▶ …
//	                                                    DELETED (terminal)
//
// Every inbound event is routed according to the state currently in the
// Store. In NEW the bot runs its InitAction; the action and the move to
// REGISTERED commit in one transaction, so a failed initialisation
// leaves the bot in NEW to retry on the next event. In REGISTERED the
// event is reduced to its stripped state and offered to a
// RegistrationPredicate, typically "is this an invite for me", which
// decides whether the bot moves to JOINED. In JOINED the event is
// handed to the bot's RoomProcessor. DELETED always answers Exit.
//
// Each step yields a Signal. Exit tells the caller to stop feeding
// events; the Router then runs the registered shutdown listeners, each
// at most once, in registration order.
//
// Collaborators are capability interfaces: the Store (see
// lib/botstore for the SQLite implementation), the Source that
// delivers raw events (messaging.SyncSource in production), and the
// bot-specific InitAction, RegistrationPredicate and RoomProcessor.
// Bot wires them together.
package bot
