// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Code that stamps records or waits between retries takes a Clock
// instead of calling time.Now or time.After. Production passes Real();
// tests pass Fake(), whose time moves only when Advance is called:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go source.Next(ctx)     // fails, then waits on fake.After(backoff)
//	fake.WaitForTimers(1)   // the wait is registered
//	fake.Advance(time.Second)
//
// WaitForTimers closes the race between a goroutine registering its
// wait and the test advancing past it.
package clock
