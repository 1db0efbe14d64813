// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock lets schedule and retention code run against a clock
// that tests control.
//
// The scheduler, retention planner, and engine take a [Clock] instead
// of calling time.Now or time.After. Production wiring passes [Real];
// tests pass a [FakeClock] and move time forward explicitly:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 1, 59, 0, 0, time.UTC))
//	go orchestrator.Run(ctx)
//	fake.WaitForTimers(1)       // the loop is now parked in After
//	fake.Advance(time.Minute)   // 02:00, the nightly job becomes due
//
// WaitForTimers closes the race between a goroutine registering its
// timer and the test advancing past the deadline.
package clock
