// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/openclaw-infra/keeper/lib/clock"
)

// lockRetryInterval is how often a blocked cycle re-attempts the
// cross-process lock.
const lockRetryInterval = 200 * time.Millisecond

// cycleLock serializes supervision cycles across processes. The
// in-process mutex already serializes callers within one keeper; the
// flock covers a CLI invocation racing the daemon. Acquisition blocks
// (polling non-blocking flock) rather than failing, so a concurrent
// ensure waits for the in-flight one instead of double-launching.
type cycleLock struct {
	path string
	file *os.File
}

func newCycleLock(path string) *cycleLock {
	return &cycleLock{path: path}
}

// acquire blocks until the lock is held or the context ends. The lock
// is released by the OS if the process dies, so a crashed holder
// never wedges supervision.
func (l *cycleLock) acquire(ctx context.Context, clk clock.Clock) error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("creating lock file %s: %w", l.path, err)
	}

	for {
		err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			l.file = file
			return nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			file.Close()
			return fmt.Errorf("locking %s: %w", l.path, err)
		}
		select {
		case <-ctx.Done():
			file.Close()
			return fmt.Errorf("waiting for supervision lock %s: %w", l.path, ctx.Err())
		case <-clk.After(lockRetryInterval):
		}
	}
}

// release drops the lock. Safe to call when not held.
func (l *cycleLock) release() {
	if l.file == nil {
		return
	}
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	l.file.Close()
	l.file = nil
}
