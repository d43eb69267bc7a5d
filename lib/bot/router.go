// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/matrixbot/lib/event"
)

// Source delivers inbound events as raw JSON, one per call.
type Source interface {
	// Next blocks until an event is available. It returns io.EOF when
	// the source has nothing more to deliver; any other error is a
	// transport failure.
	Next(ctx context.Context) ([]byte, error)
}

// Router feeds events through a Machine one at a time. Reading the
// persisted state, stepping, and writing the next state happen under
// one mutex, so concurrent Send calls observe a serial history.
type Router struct {
	machine *Machine
	logger  *slog.Logger

	mu        sync.Mutex
	listeners []func()
	fired     bool
}

// NewRouter returns a Router stepping machine. A nil logger discards.
func NewRouter(machine *Machine, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Router{machine: machine, logger: logger}
}

// OnShutdown registers listener to run when a step yields Exit.
// Listeners run in registration order, at most once per Router, after
// the step that signalled Exit has released the router's lock. A
// listener registered after shutdown has already fired never runs.
func (r *Router) OnShutdown(listener func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, listener)
}

// Send routes one decoded event.
func (r *Router) Send(ctx context.Context, ev event.Event) (Signal, error) {
	signal, shutdown, err := r.step(ctx, ev)
	for _, listener := range shutdown {
		listener()
	}
	return signal, err
}

func (r *Router) step(ctx context.Context, ev event.Event) (Signal, []func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.machine.store.State(ctx)
	if err != nil {
		return Run, nil, fmt.Errorf("bot: reading state: %w", err)
	}
	next, signal, err := r.machine.Step(ctx, state, ev)
	if next != state {
		r.logger.Info("bot state changed", "from", string(state), "to", string(next))
	}
	if signal != Exit || r.fired {
		return signal, nil, err
	}
	r.fired = true
	shutdown := r.listeners
	r.listeners = nil
	return signal, shutdown, err
}

// SendRaw decodes data and routes the result. A payload that does not
// decode yields a *DecodeError and leaves the state untouched.
func (r *Router) SendRaw(ctx context.Context, data []byte) (Signal, error) {
	ev, err := event.Decode(data)
	if err != nil {
		return Run, &DecodeError{Err: err}
	}
	return r.Send(ctx, ev)
}

// Run pulls events from source until a step signals Exit, source
// returns io.EOF, or ctx is cancelled; each of these returns nil. A
// source failure is returned as *TransportError.
//
// Payloads that fail to decode and steps that fail are logged and
// skipped: the state is unchanged, so the next event retries the step.
func (r *Router) Run(ctx context.Context, source Source) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		data, err := source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return &TransportError{Err: err}
		}

		signal, err := r.SendRaw(ctx, data)
		if err != nil {
			var decodeErr *DecodeError
			if errors.As(err, &decodeErr) {
				r.logger.Warn("dropping undecodable event", "error", err)
			} else {
				r.logger.Error("event step failed", "error", err)
			}
		}
		if signal == Exit {
			return nil
		}
	}
}
