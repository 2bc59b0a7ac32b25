// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/openclaw-infra/keeper/lib/bucket"
	"github.com/openclaw-infra/keeper/lib/config"
	"github.com/openclaw-infra/keeper/lib/gitmirror"
	"github.com/openclaw-infra/keeper/lib/ipc"
	"github.com/openclaw-infra/keeper/lib/snapshot"
)

// Cycle kinds. Each kind has one slot in the persisted daemon state.
const (
	cycleEnsure    = "ensure"
	cycleStoreSync = "store-sync"
	cycleRepoSync  = "repo-sync"
	cycleSnapshot  = "snapshot"
)

// runEnsure executes one supervision cycle against a fresh environment
// snapshot.
func (d *Daemon) runEnsure(ctx context.Context) error {
	environ := config.EnvironSnapshot(os.Environ())
	handle, err := d.supervisor.EnsureRunning(ctx, environ)
	if err != nil {
		d.record(cycleEnsure, err, "")
		return err
	}
	d.record(cycleEnsure, nil, fmt.Sprintf("pid %d", handle.PID))
	return nil
}

// runStoreSync mirrors local state to the durable store. A host with
// no store bucket configured has nothing to sync; that is not a
// failure and records no outcome.
func (d *Daemon) runStoreSync(ctx context.Context) error {
	environ := config.EnvironSnapshot(os.Environ())
	creds := config.StoreCredentialsFrom(environ)
	if !creds.Present() {
		d.logger.Debug("store sync skipped", "reason", "no store bucket configured")
		return nil
	}
	err := d.store.SyncToStore(ctx, creds)
	d.record(cycleStoreSync, err, "")
	return err
}

// runRepoSync pushes local state to the backup repository.
func (d *Daemon) runRepoSync(ctx context.Context) error {
	environ := config.EnvironSnapshot(os.Environ())
	creds := d.cfg.RepoCredentialsFrom(environ)
	if !creds.Present() {
		d.logger.Debug("repository sync skipped", "reason", "no repository configured")
		return nil
	}
	result, err := d.repo.SyncToRepository(ctx, creds)
	if err != nil {
		d.record(cycleRepoSync, err, "")
		return err
	}
	note := "no changes"
	if result.Outcome == gitmirror.OutcomePushed {
		note = "pushed " + result.Commit
	}
	d.record(cycleRepoSync, nil, note)
	return nil
}

// runSnapshot builds a point-in-time archive and uploads it to the
// snapshot bucket.
func (d *Daemon) runSnapshot(ctx context.Context) error {
	environ := config.EnvironSnapshot(os.Environ())
	bucketName := d.cfg.SnapshotBucketFrom(environ)
	if bucketName == "" {
		d.logger.Debug("snapshot skipped", "reason", "no snapshot bucket configured")
		return nil
	}

	builder, err := snapshot.New(d.cfg, d.logger, d.clk)
	if err != nil {
		d.record(cycleSnapshot, err, "")
		return err
	}
	defer builder.Close()

	archive, err := builder.Create(ctx)
	if err != nil {
		d.record(cycleSnapshot, err, "")
		return err
	}

	client, err := bucket.New(ctx, bucketName, d.cfg.Snapshot.CredentialsFile, d.cfg.Snapshot.UploadTimeout.Std(), d.logger)
	if err != nil {
		d.record(cycleSnapshot, err, "")
		return err
	}
	defer client.Close()

	if err := client.UploadArchive(ctx, archive); err != nil {
		d.record(cycleSnapshot, err, "")
		return err
	}
	d.record(cycleSnapshot, nil, archive.Name)
	return nil
}

// record stores a cycle outcome and persists the daemon state so the
// outcome survives a restart.
func (d *Daemon) record(cycle string, err error, note string) {
	outcome := &ipc.CycleOutcome{
		At:   d.clk.Now().UTC(),
		OK:   err == nil,
		Note: note,
	}
	if err != nil {
		outcome.Error = err.Error()
	}

	d.mu.Lock()
	switch cycle {
	case cycleEnsure:
		d.state.LastEnsure = outcome
	case cycleStoreSync:
		d.state.LastStoreSync = outcome
	case cycleRepoSync:
		d.state.LastRepoSync = outcome
	case cycleSnapshot:
		d.state.LastSnapshot = outcome
	}
	saveErr := d.saveStateLocked()
	d.mu.Unlock()

	if saveErr != nil {
		d.logger.Error("persisting daemon state", "error", saveErr)
	}
}
