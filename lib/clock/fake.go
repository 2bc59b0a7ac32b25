// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// FakeClock is a manually driven Clock. Time stands still until the
// test calls Advance. Safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
	tickers []*fakeTicker
}

// fakeWaiter is one pending After or Sleep call.
type fakeWaiter struct {
	at time.Time
	ch chan time.Time
}

type fakeTicker struct {
	interval time.Duration
	next     time.Time
	ch       chan time.Time
	stopped  bool
}

// Fake returns a FakeClock starting at a fixed instant. The start
// time is arbitrary but deterministic so tests can assert on absolute
// timestamps.
func Fake() *FakeClock {
	return &FakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the fake clock's current time.
func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After returns a channel that receives once Advance has moved the
// clock at least d past the current instant. A non-positive d delivers
// immediately.
func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- f.now
		return ch
	}
	f.waiters = append(f.waiters, &fakeWaiter{at: f.now.Add(d), ch: ch})
	return ch
}

// NewTicker returns a Ticker driven by Advance. Each Advance delivers
// at most one tick per elapsed interval, dropping ticks when the
// consumer has not drained the channel, matching time.Ticker.
func (f *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ticker := &fakeTicker{
		interval: d,
		next:     f.now.Add(d),
		ch:       make(chan time.Time, 1),
	}
	f.tickers = append(f.tickers, ticker)

	return &Ticker{
		C: ticker.ch,
		stop: func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			ticker.stopped = true
		},
	}
}

// Sleep blocks until Advance has moved the clock at least d forward.
func (f *FakeClock) Sleep(d time.Duration) {
	<-f.After(d)
}

// Advance moves the clock forward by d, firing every waiter whose
// deadline is reached and every due ticker in deadline order.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	target := f.now.Add(d)

	// Waiters fire once and are removed.
	remaining := f.waiters[:0]
	for _, w := range f.waiters {
		if !w.at.After(target) {
			w.ch <- w.at
		} else {
			remaining = append(remaining, w)
		}
	}
	f.waiters = remaining

	// Tickers fire once per elapsed interval; a full channel drops the
	// tick rather than blocking Advance.
	for _, ticker := range f.tickers {
		for !ticker.stopped && !ticker.next.After(target) {
			select {
			case ticker.ch <- ticker.next:
			default:
			}
			ticker.next = ticker.next.Add(ticker.interval)
		}
	}

	f.now = target
}
