// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/openclaw-infra/keeper/lib/codec"
	"github.com/openclaw-infra/keeper/lib/ipc"
)

// stateName is the daemon state file in the keeper state directory.
const stateName = "daemon-state.cbor"

// daemonState is what keeper-daemon persists across restarts: the
// last outcome of each cycle kind. "keeper status" reports these even
// right after a reboot, before any cycle has run.
type daemonState struct {
	LastEnsure    *ipc.CycleOutcome `cbor:"last_ensure,omitempty"`
	LastStoreSync *ipc.CycleOutcome `cbor:"last_store_sync,omitempty"`
	LastRepoSync  *ipc.CycleOutcome `cbor:"last_repo_sync,omitempty"`
	LastSnapshot  *ipc.CycleOutcome `cbor:"last_snapshot,omitempty"`
}

func statePath(stateDir string) string {
	return filepath.Join(stateDir, stateName)
}

// loadState restores persisted outcomes. A missing file is a normal
// first boot; an unreadable one is logged and ignored, the daemon
// simply starts with empty history.
func (d *Daemon) loadState() {
	data, err := os.ReadFile(statePath(d.cfg.StateDir))
	if err != nil {
		if !os.IsNotExist(err) {
			d.logger.Warn("unreadable daemon state file", "error", err)
		}
		return
	}

	var state daemonState
	if err := codec.Unmarshal(data, &state); err != nil {
		d.logger.Warn("corrupt daemon state file", "error", err)
		return
	}

	d.mu.Lock()
	d.state = state
	d.mu.Unlock()
}

// saveStateLocked persists the daemon state with temp file + rename so
// readers never see a partial write. Callers hold d.mu.
func (d *Daemon) saveStateLocked() error {
	data, err := codec.Marshal(d.state)
	if err != nil {
		return fmt.Errorf("marshaling daemon state: %w", err)
	}

	target := statePath(d.cfg.StateDir)
	temporary := target + ".tmp"

	file, err := os.OpenFile(temporary, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary state file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporary)
		return fmt.Errorf("writing temporary state file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporary)
		return fmt.Errorf("syncing temporary state file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporary)
		return fmt.Errorf("closing temporary state file: %w", err)
	}
	if err := os.Rename(temporary, target); err != nil {
		os.Remove(temporary)
		return fmt.Errorf("renaming state file into place: %w", err)
	}
	return nil
}
