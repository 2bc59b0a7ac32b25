// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package statesync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openclaw-infra/keeper/lib/clawfile"
	"github.com/openclaw-infra/keeper/lib/config"
	"github.com/openclaw-infra/keeper/lib/marker"
)

// riggedMounted points the engine's adapter at a fixture mount table
// that already lists the store, so EnsureMounted reports mounted
// without running anything.
func riggedMounted(t *testing.T, e *Engine) {
	t.Helper()
	mountInfo := filepath.Join(t.TempDir(), "mountinfo")
	line := fmt.Sprintf("36 25 0:32 / %s rw shared:1 - fuse.gcsfuse openclaw-state rw\n",
		e.cfg.Store.MountPoint)
	if err := os.WriteFile(mountInfo, []byte(line), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	e.store.MountInfo = mountInfo
}

func testCreds() config.StoreCredentials {
	return config.StoreCredentials{Bucket: "openclaw-state"}
}

func TestSyncToStoreNoCredentials(t *testing.T) {
	e := newTestEngine(t)

	err := e.SyncToStore(context.Background(), config.StoreCredentials{})
	if Kind(err) != FailureConfigurationMissing {
		t.Fatalf("Kind = %q (%v), want %q", Kind(err), err, FailureConfigurationMissing)
	}
}

type failingMounter struct{ err error }

func (m failingMounter) Mount(context.Context, config.StoreCredentials, string) error {
	return m.err
}

func TestSyncToStoreMountFailure(t *testing.T) {
	e := newTestEngine(t)

	// Empty mount table plus a failing mounter: the attach cannot be
	// confirmed.
	mountInfo := filepath.Join(t.TempDir(), "mountinfo")
	if err := os.WriteFile(mountInfo, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	e.store.MountInfo = mountInfo
	e.store.Mounter = failingMounter{err: errors.New("gcsfuse: bucket not found")}

	err := e.SyncToStore(context.Background(), testCreds())
	if Kind(err) != FailureMount {
		t.Fatalf("Kind = %q (%v), want %q", Kind(err), err, FailureMount)
	}
}

func TestSyncToStoreIntegrityGate(t *testing.T) {
	e := newTestEngine(t)
	riggedMounted(t, e)

	// A populated remote from an earlier sync; the local config root
	// has lost its config file.
	writeTestFile(t, filepath.Join(e.cfg.Store.MountPoint, "openclaw", "openclaw.json"), "{}")
	if err := marker.Write(e.remoteMarkerPath(), "2026-02-01T00:00:00Z"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	writeTestFile(t, filepath.Join(e.cfg.Gateway.ConfigRoot, "notes.md"), "not a config")

	err := e.SyncToStore(context.Background(), testCreds())
	if Kind(err) != FailureSyncIntegrity {
		t.Fatalf("Kind = %q (%v), want %q", Kind(err), err, FailureSyncIntegrity)
	}
	if !errors.Is(err, clawfile.ErrNoConfig) {
		t.Errorf("error %v does not wrap ErrNoConfig", err)
	}

	// The remote copy and its marker are untouched.
	if line, err := marker.Read(e.remoteMarkerPath()); err != nil || line != "2026-02-01T00:00:00Z" {
		t.Errorf("remote marker = %q, %v; want prior value intact", line, err)
	}
	if !exists(filepath.Join(e.cfg.Store.MountPoint, "openclaw", "openclaw.json")) {
		t.Error("remote config deleted by a gated sync")
	}
	if exists(filepath.Join(e.cfg.Store.MountPoint, "openclaw", "notes.md")) {
		t.Error("transfer ran despite the integrity gate")
	}
}

func TestSyncToStoreSuccess(t *testing.T) {
	e := newTestEngine(t)
	riggedMounted(t, e)

	writeTestFile(t, filepath.Join(e.cfg.Gateway.ConfigRoot, "openclaw.json"), `{"gateway":{}}`)
	writeTestFile(t, filepath.Join(e.cfg.Gateway.ConfigRoot, "credentials", "google.json"), `{}`)
	writeTestFile(t, filepath.Join(e.cfg.Gateway.SkillsDir, "tool.sh"), "#!/bin/sh\n")
	writeTestFile(t, filepath.Join(e.cfg.Gateway.WorkspaceRoot, "IDENTITY.md"), "claw")
	writeTestFile(t, filepath.Join(e.cfg.Gateway.WorkspaceRoot, "debug.log"), "noise")

	if err := e.SyncToStore(context.Background(), testCreds()); err != nil {
		t.Fatalf("SyncToStore: %v", err)
	}

	store := e.cfg.Store.MountPoint
	for _, path := range []string{
		filepath.Join(store, "openclaw", "openclaw.json"),
		filepath.Join(store, "openclaw", "credentials", "google.json"),
		filepath.Join(store, "skills", "tool.sh"),
		filepath.Join(store, "workspace", "IDENTITY.md"),
	} {
		if !exists(path) {
			t.Errorf("%s missing after sync", path)
		}
	}

	// Skills live under their own store directory, never inside the
	// config subtree; transients are not mirrored.
	if exists(filepath.Join(store, "openclaw", "skills")) {
		t.Error("skills mirrored into the config subtree")
	}
	if exists(filepath.Join(store, "workspace", "debug.log")) {
		t.Error("transient log mirrored to the store")
	}

	// Commit marker: well-formed, matching the engine clock, mirrored
	// locally.
	syncedAt, err := marker.ReadTimestamp(e.remoteMarkerPath())
	if err != nil {
		t.Fatalf("ReadTimestamp: %v", err)
	}
	if want := e.clk.Now().Truncate(time.Second); !syncedAt.Equal(want) {
		t.Errorf("remote marker = %v, want %v", syncedAt, want)
	}
	localAt, err := marker.ReadTimestamp(e.localMarkerPath())
	if err != nil {
		t.Fatalf("ReadTimestamp: %v", err)
	}
	if !localAt.Equal(syncedAt) {
		t.Errorf("local marker = %v, want %v", localAt, syncedAt)
	}

	// With equal markers the restore gate stays closed.
	if restore, reason := e.ShouldRestore(); restore {
		t.Errorf("ShouldRestore after sync = true (%s), want false", reason)
	}
}

func TestSyncToStorePropagatesDeletions(t *testing.T) {
	e := newTestEngine(t)
	riggedMounted(t, e)
	writeTestFile(t, filepath.Join(e.cfg.Gateway.ConfigRoot, "openclaw.json"), "{}")
	writeTestFile(t, filepath.Join(e.cfg.Gateway.WorkspaceRoot, "OLD.md"), "old")

	if err := e.SyncToStore(context.Background(), testCreds()); err != nil {
		t.Fatalf("first SyncToStore: %v", err)
	}

	if err := os.Remove(filepath.Join(e.cfg.Gateway.WorkspaceRoot, "OLD.md")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	writeTestFile(t, filepath.Join(e.cfg.Gateway.WorkspaceRoot, "NEW.md"), "new")

	if err := e.SyncToStore(context.Background(), testCreds()); err != nil {
		t.Fatalf("second SyncToStore: %v", err)
	}

	store := e.cfg.Store.MountPoint
	if exists(filepath.Join(store, "workspace", "OLD.md")) {
		t.Error("deleted workspace file still on the store")
	}
	if !exists(filepath.Join(store, "workspace", "NEW.md")) {
		t.Error("new workspace file missing from the store")
	}
}

func TestSyncToStoreAbortedTransferKeepsPriorMarker(t *testing.T) {
	e := newTestEngine(t)
	riggedMounted(t, e)
	writeTestFile(t, filepath.Join(e.cfg.Gateway.ConfigRoot, "openclaw.json"), "{}")
	if err := marker.Write(e.remoteMarkerPath(), "2026-02-01T00:00:00Z"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Cancellation surfaces inside the transfer phase: the mount gate
	// and integrity gate consult fixtures, not the context.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.SyncToStore(ctx, testCreds())
	if Kind(err) != FailureTransfer {
		t.Fatalf("Kind = %q (%v), want %q", Kind(err), err, FailureTransfer)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error %v does not wrap context.Canceled", err)
	}

	// An aborted transfer leaves the previous commit point alone.
	if line, _ := marker.Read(e.remoteMarkerPath()); line != "2026-02-01T00:00:00Z" {
		t.Errorf("remote marker = %q, want prior value intact", line)
	}
}
