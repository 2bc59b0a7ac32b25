// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for the supervision and backup loops.
// Production code injects Real(); tests inject Fake() and drive it with
// Advance, so probe timeouts and sync intervals are testable without
// wall-clock sleeps.
package clock

import "time"

// Clock is the time source used by anything in keeper that waits,
// ticks, or timestamps. Functions that need time accept a Clock (or
// live on a struct carrying one) instead of calling the time package
// directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. Equivalent to time.After.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks on C every d.
	// Panics if d <= 0, matching time.NewTicker.
	NewTicker(d time.Duration) *Ticker

	// Sleep blocks the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Ticker delivers periodic ticks on C. Call Stop when done; Stop does
// not close C. C is buffered with capacity 1, so a slow consumer drops
// ticks rather than queueing them, matching time.Ticker.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns off the ticker. No ticks are delivered after Stop returns.
func (t *Ticker) Stop() { t.stop() }
