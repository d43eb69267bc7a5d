// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/matrixbot/lib/event"
	"github.com/bureau-foundation/matrixbot/lib/testutil"
)

// sliceSource delivers queued payloads, then returns end.
type sliceSource struct {
	payloads []string
	end      error
	reads    int
}

func (s *sliceSource) Next(ctx context.Context) ([]byte, error) {
	if s.reads >= len(s.payloads) {
		return nil, s.end
	}
	payload := s.payloads[s.reads]
	s.reads++
	return []byte(payload), nil
}

// blockingSource blocks until its context is cancelled.
type blockingSource struct{}

func (blockingSource) Next(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newTestRouter(t *testing.T, store *memoryStore, processor RoomProcessor) *Router {
	t.Helper()
	return NewRouter(newTestMachine(t, store, MachineConfig{Processor: processor}), nil)
}

func TestRouterWalksLifecycle(t *testing.T) {
	store := newMemoryStore(StateNew)
	processor := &recordingProcessor{}
	router := newTestRouter(t, store, processor)
	ctx := context.Background()

	for _, want := range []State{StateRegistered, StateJoined, StateJoined} {
		signal, err := router.SendRaw(ctx, []byte(textEvent))
		if err != nil {
			t.Fatalf("SendRaw: %v", err)
		}
		if signal != Run {
			t.Fatalf("signal = %s, want run", signal)
		}
		if store.current() != want {
			t.Errorf("state = %s, want %s", store.current(), want)
		}
	}
	if processor.calls() != 1 {
		t.Errorf("processor called %d times, want 1", processor.calls())
	}
}

func TestRouterShutdownListenersOrderedAndOnce(t *testing.T) {
	router := newTestRouter(t, newMemoryStore(StateDeleted), &recordingProcessor{})
	var order []int
	for index := range 3 {
		router.OnShutdown(func() { order = append(order, index) })
	}

	for range 3 {
		signal, err := router.Send(context.Background(), testEvent(t, textEvent))
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
		if signal != Exit {
			t.Fatalf("signal = %s, want exit", signal)
		}
	}
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Errorf("listener order = %v, want [0 1 2] exactly once", order)
	}
}

func TestRouterNoListenersOnRun(t *testing.T) {
	router := newTestRouter(t, newMemoryStore(StateJoined), &recordingProcessor{signal: Run})
	fired := false
	router.OnShutdown(func() { fired = true })
	if _, err := router.Send(context.Background(), testEvent(t, textEvent)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if fired {
		t.Error("shutdown listener fired on a run signal")
	}
}

func TestRouterListenerMayCallBack(t *testing.T) {
	router := newTestRouter(t, newMemoryStore(StateDeleted), &recordingProcessor{})
	var reentrant Signal
	router.OnShutdown(func() {
		reentrant, _ = router.Send(context.Background(), testEvent(t, textEvent))
	})
	if _, err := router.Send(context.Background(), testEvent(t, textEvent)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reentrant != Exit {
		t.Errorf("reentrant Send = %s, want exit", reentrant)
	}
}

func TestRouterSendRawDecodeError(t *testing.T) {
	store := newMemoryStore(StateNew)
	router := newTestRouter(t, store, &recordingProcessor{})
	signal, err := router.SendRaw(context.Background(), []byte(`{"content":{}}`))

	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("error = %v, want *DecodeError", err)
	}
	if !errors.Is(err, event.ErrMissingField) {
		t.Errorf("error %v does not wrap event.ErrMissingField", err)
	}
	if signal != Run {
		t.Errorf("signal = %s, want run", signal)
	}
	if store.current() != StateNew || store.transactions != 0 {
		t.Error("decode failure advanced the state")
	}
}

func TestRouterStoreReadError(t *testing.T) {
	store := newMemoryStore(StateJoined)
	store.readErr = errBoom
	router := newTestRouter(t, store, &recordingProcessor{})
	if _, err := router.Send(context.Background(), testEvent(t, textEvent)); !errors.Is(err, errBoom) {
		t.Errorf("Send error = %v, want %v", err, errBoom)
	}
}

func TestRouterRun(t *testing.T) {
	tests := []struct {
		name          string
		start         State
		processor     *recordingProcessor
		source        *sliceSource
		wantTransport bool
		wantProcessed int
	}{
		{
			name:          "drains to EOF skipping undecodable payloads",
			start:         StateJoined,
			processor:     &recordingProcessor{},
			source:        &sliceSource{payloads: []string{textEvent, `not json`, `{"content":{}}`, textEvent}, end: io.EOF},
			wantProcessed: 2,
		},
		{
			name:          "stops at exit",
			start:         StateJoined,
			processor:     &recordingProcessor{signal: Exit},
			source:        &sliceSource{payloads: []string{textEvent, textEvent}, end: io.EOF},
			wantProcessed: 1,
		},
		{
			name:          "transport failure",
			start:         StateJoined,
			processor:     &recordingProcessor{},
			source:        &sliceSource{payloads: []string{textEvent}, end: errBoom},
			wantTransport: true,
			wantProcessed: 1,
		},
		{
			name:          "processor errors are skipped",
			start:         StateJoined,
			processor:     &recordingProcessor{err: errBoom},
			source:        &sliceSource{payloads: []string{textEvent, textEvent}, end: io.EOF},
			wantProcessed: 2,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			router := newTestRouter(t, newMemoryStore(test.start), test.processor)
			err := router.Run(context.Background(), test.source)

			var transportErr *TransportError
			if test.wantTransport {
				if !errors.As(err, &transportErr) || !errors.Is(err, errBoom) {
					t.Fatalf("Run error = %v, want *TransportError wrapping %v", err, errBoom)
				}
				var decodeErr *DecodeError
				if errors.As(err, &decodeErr) {
					t.Error("transport error also matched *DecodeError")
				}
			} else if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := test.processor.calls(); got != test.wantProcessed {
				t.Errorf("processed %d events, want %d", got, test.wantProcessed)
			}
		})
	}
}

func TestRouterRunStopsOnCancel(t *testing.T) {
	router := newTestRouter(t, newMemoryStore(StateJoined), &recordingProcessor{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- router.Run(ctx, blockingSource{}) }()

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "waiting for Run to return"); err != nil {
		t.Errorf("Run after cancel = %v, want nil", err)
	}
}

func TestRouterSerialisesConcurrentSends(t *testing.T) {
	store := newMemoryStore(StateNew)
	initCalls := 0
	machine := newTestMachine(t, store, MachineConfig{
		Init: func(ctx context.Context, tx Tx) error {
			initCalls++
			return nil
		},
	})
	router := NewRouter(machine, nil)
	ev := testEvent(t, textEvent)

	var waitGroup sync.WaitGroup
	for range 8 {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			_, _ = router.Send(context.Background(), ev)
		}()
	}
	waitGroup.Wait()
	if initCalls != 1 {
		t.Errorf("init ran %d times, want exactly 1", initCalls)
	}
	if store.current() != StateJoined {
		t.Errorf("state = %s, want JOINED", store.current())
	}
}
