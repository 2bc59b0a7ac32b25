// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openclaw-infra/keeper/lib/statesync"
)

// writeOps are the event kinds that count as local writes. Chmod
// churn (editors, git touching modes) never triggers a sync.
const writeOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// startWatcher watches the config root and the workspace for writes.
// After a burst of writes settles for the configured debounce window,
// the watcher requests an early store sync instead of waiting for the
// next scheduled one. Roots missing at startup stay unwatched until
// the next daemon restart; the scheduled sync still covers them.
func (d *Daemon) startWatcher(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}

	watched := 0
	for _, root := range []string{d.cfg.Gateway.ConfigRoot, d.cfg.Gateway.WorkspaceRoot} {
		watched += addTree(watcher, root)
	}
	d.watcher = watcher

	d.logger.Info("watching for local writes",
		"directories", watched,
		"debounce", d.cfg.Daemon.Debounce.Std().String(),
	)

	go d.watchLoop(ctx)
	return nil
}

// stopWatcher closes the watcher, which ends watchLoop.
func (d *Daemon) stopWatcher() {
	if d.watcher != nil {
		d.watcher.Close()
	}
}

// watchLoop turns raw events into debounced sync requests. Every
// relevant event re-arms the debounce window, so the request fires
// once the writes settle.
func (d *Daemon) watchLoop(ctx context.Context) {
	var settled <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&writeOps == 0 || ignoredPath(event.Name) {
				continue
			}
			// Directories created after startup join the watch set so
			// writes inside them keep triggering.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					addTree(d.watcher, event.Name)
				}
			}
			settled = d.clk.After(d.cfg.Daemon.Debounce.Std())

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Debug("file watcher error", "error", err)

		case <-settled:
			settled = nil
			d.logger.Debug("local writes settled, requesting early store sync")
			d.requestStoreSync()
		}
	}
}

// addTree watches root and every directory below it, returning how
// many joined the watch set. Unreadable directories are skipped; the
// watcher is an optimization, not a correctness requirement.
func addTree(watcher *fsnotify.Watcher, root string) int {
	added := 0
	filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if ignoredPath(path) {
			return filepath.SkipDir
		}
		if watcher.Add(path) == nil {
			added++
		}
		return nil
	})
	return added
}

// ignoredPath filters watcher noise. The sync marker is written by the
// store sync itself; watching it would make every sync schedule the
// next one. Repository internals churn constantly under gateway
// activity, and never change without a worktree write nearby.
func ignoredPath(path string) bool {
	if filepath.Base(path) == statesync.SyncMarkerName {
		return true
	}
	for _, segment := range strings.Split(path, string(filepath.Separator)) {
		if segment == ".git" {
			return true
		}
	}
	return false
}
