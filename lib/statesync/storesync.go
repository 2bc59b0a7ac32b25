// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package statesync

import (
	"context"

	"github.com/openclaw-infra/keeper/lib/clawfile"
	"github.com/openclaw-infra/keeper/lib/config"
	"github.com/openclaw-infra/keeper/lib/marker"
)

// SyncToStore mirrors the backup target set onto the durable store.
// nil means verified success: every target transferred, the root sync
// marker written, and the marker read back as a recent well-formed
// timestamp. The mirror tooling's own exit status is never what
// decides success.
//
// Any failure before the marker write leaves the previous marker in
// place, so the store always describes its last complete sync.
func (e *Engine) SyncToStore(ctx context.Context, creds config.StoreCredentials) error {
	if !creds.Present() {
		return fail(FailureConfigurationMissing,
			"store bucket not configured (set %s)", config.EnvStateBucket)
	}

	mountCtx, cancel := context.WithTimeout(ctx, e.cfg.Store.MountTimeout.Std())
	mounted, err := e.store.EnsureMounted(mountCtx, creds)
	cancel()
	if err != nil {
		return &Error{Kind: FailureMount, Err: err}
	}
	if !mounted {
		return fail(FailureMount, "store not mounted at %s", e.cfg.Store.MountPoint)
	}

	// Integrity gate: a wiped or half-provisioned config root must
	// never be mirrored over a good remote copy. The gate is the
	// recognized config file, which every working gateway has.
	configPath, err := clawfile.Locate(e.cfg.Gateway.ConfigRoot)
	if err != nil {
		return &Error{Kind: FailureSyncIntegrity, Err: err}
	}
	e.logger.Debug("integrity gate passed", "config", configPath)

	transferCtx, cancelTransfer := context.WithTimeout(ctx, e.cfg.Store.TransferTimeout.Std())
	defer cancelTransfer()

	for _, target := range e.targets() {
		stats, err := mirrorTree(transferCtx, target.local, target.remote, mirrorFull, target.exclude)
		if err != nil {
			return fail(FailureTransfer, "mirroring %s to store: %w", target.name, err)
		}
		e.logger.Info("mirrored target to store", "target", target.name,
			"copied", stats.copied, "deleted", stats.deleted, "unchanged", stats.unchanged)
	}

	// Commit point. Written only after every transfer; verified by
	// reading it back.
	if err := marker.WriteTimestamp(e.remoteMarkerPath(), e.clk.Now()); err != nil {
		return fail(FailureTransfer, "writing sync marker: %w", err)
	}
	committed, err := marker.CheckRecent(e.remoteMarkerPath(), MarkerRecency, e.clk.Now())
	if err != nil {
		return fail(FailureTransfer, "verifying sync marker: %w", err)
	}

	// The local mirror of the marker keeps the restore gate quiet on
	// the next boot. The remote commit already happened, so failure
	// here costs at most a redundant restore of identical state.
	if err := marker.WriteTimestamp(e.localMarkerPath(), committed); err != nil {
		e.logger.Warn("writing local sync marker", "error", err)
	}

	e.logger.Info("store sync complete", "synced_at", committed)
	return nil
}
