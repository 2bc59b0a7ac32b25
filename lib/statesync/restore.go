// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package statesync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/openclaw-infra/keeper/lib/marker"
)

// ShouldRestore decides whether local state is behind the durable
// store, returning the decision and a loggable reason. The gate only
// fires when the remote marker parses and is provably newer: a
// missing remote means nothing to restore, and a malformed timestamp
// on either side fails closed, because a missed restore is cheaper
// than clobbering fresher local state.
func (e *Engine) ShouldRestore() (bool, string) {
	remoteTime, err := marker.ReadTimestamp(e.remoteMarkerPath())
	switch {
	case errors.Is(err, os.ErrNotExist):
		return false, "no remote sync marker"
	case errors.Is(err, marker.ErrMalformed):
		return false, "remote sync marker malformed"
	case err != nil:
		return false, fmt.Sprintf("remote sync marker unreadable: %v", err)
	}

	localTime, err := marker.ReadTimestamp(e.localMarkerPath())
	switch {
	case errors.Is(err, os.ErrNotExist):
		return true, "remote state present, no local sync marker"
	case errors.Is(err, marker.ErrMalformed):
		return false, "local sync marker malformed"
	case err != nil:
		return false, fmt.Sprintf("local sync marker unreadable: %v", err)
	}

	if remoteTime.After(localTime) {
		return true, fmt.Sprintf("remote sync %s newer than local %s",
			remoteTime.Format(time.RFC3339), localTime.Format(time.RFC3339))
	}
	return false, "local state is current"
}

// Restore mirrors the durable store's copy onto local state when the
// gating decision allows. Config and skills become exact copies of
// the remote; the workspace merges additively so locally written
// files survive. After all targets land, the remote marker value is
// mirrored into the local marker, which is what makes the next gating
// decision report current.
func (e *Engine) Restore(ctx context.Context) error {
	restore, reason := e.ShouldRestore()
	if !restore {
		e.logger.Info("restore skipped", "reason", reason)
		return nil
	}
	e.logger.Info("restoring from durable store", "reason", reason)

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Store.TransferTimeout.Std())
	defer cancel()

	for _, target := range e.targets() {
		stats, err := mirrorTree(ctx, target.remote, target.local, target.restoreMode, target.exclude)
		if err != nil {
			return fail(FailureTransfer, "restoring %s: %w", target.name, err)
		}
		e.logger.Info("restored target", "target", target.name,
			"copied", stats.copied, "deleted", stats.deleted, "unchanged", stats.unchanged)
	}

	remoteLine, err := marker.Read(e.remoteMarkerPath())
	if err != nil {
		return fail(FailureTransfer, "re-reading remote sync marker: %w", err)
	}
	if err := marker.Write(e.localMarkerPath(), remoteLine); err != nil {
		return fail(FailureTransfer, "writing local sync marker: %w", err)
	}
	e.logger.Info("restore complete", "synced_at", remoteLine)
	return nil
}
