// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

// Package statesync moves gateway state between the local filesystem
// and the durable store: SyncToStore mirrors the backup target set
// (config subtree, workspace, skills) onto the store and commits with
// the root sync marker; Restore brings local state up to date from
// the store during boot, gated on marker timestamps.
//
// Both directions run over the same mirror engine. Sync is always a
// full mirror with deletions propagated; restore mirrors config and
// skills fully but merges the workspace additively, so files an agent
// wrote locally are never deleted by a restore.
//
// Conflict resolution is last-writer-wins at directory granularity.
// Two environments alternating against one store can silently lose
// one side's writes; a single writer is assumed.
package statesync

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/openclaw-infra/keeper/lib/clock"
	"github.com/openclaw-infra/keeper/lib/config"
	"github.com/openclaw-infra/keeper/lib/storemount"
)

const (
	// SyncMarkerName is the commit-point marker, present at the store
	// root and mirrored into the local config root.
	SyncMarkerName = ".last-sync"

	// MarkerRecency bounds how old a freshly written sync marker may
	// read back as before the sync counts as unverified.
	MarkerRecency = 2 * time.Minute

	storeConfigDir    = "openclaw"
	storeWorkspaceDir = "workspace"
	storeSkillsDir    = "skills"
)

// Engine runs sync and restore against one configuration.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger
	clk    clock.Clock
	store  *storemount.Adapter
}

// New returns an Engine over the live system.
func New(cfg *config.Config, logger *slog.Logger, clk clock.Clock) *Engine {
	return &Engine{
		cfg:    cfg,
		logger: logger,
		clk:    clk,
		store:  storemount.New(cfg.Store.MountPoint),
	}
}

// target is one member of the backup set: a local directory and its
// location under the store root.
type target struct {
	name   string
	local  string
	remote string

	// exclude lists store-relative paths invisible to the mirror in
	// both directions.
	exclude []string

	// restoreMode is how restore treats local files with no remote
	// counterpart. Sync to the store is always a full mirror.
	restoreMode mirrorMode
}

// targets returns the backup set. The skills directory is its own
// target; when it sits inside the config root (the default layout) it
// is excluded from the config mirror so the two targets never fight
// over the same files.
func (e *Engine) targets() []target {
	configExcludes := []string{SyncMarkerName}
	if rel, ok := e.cfg.Gateway.SkillsWithinConfig(); ok {
		configExcludes = append(configExcludes, rel)
	}

	root := e.cfg.Store.MountPoint
	return []target{
		{
			name:        "config",
			local:       e.cfg.Gateway.ConfigRoot,
			remote:      filepath.Join(root, storeConfigDir),
			exclude:     configExcludes,
			restoreMode: mirrorFull,
		},
		{
			name:        "workspace",
			local:       e.cfg.Gateway.WorkspaceRoot,
			remote:      filepath.Join(root, storeWorkspaceDir),
			restoreMode: mirrorAdditive,
		},
		{
			name:        "skills",
			local:       e.cfg.Gateway.SkillsDir,
			remote:      filepath.Join(root, storeSkillsDir),
			restoreMode: mirrorFull,
		},
	}
}

// remoteMarkerPath is the store-root sync marker.
func (e *Engine) remoteMarkerPath() string {
	return filepath.Join(e.cfg.Store.MountPoint, SyncMarkerName)
}

// localMarkerPath is the local mirror of the sync marker.
func (e *Engine) localMarkerPath() string {
	return filepath.Join(e.cfg.Gateway.ConfigRoot, SyncMarkerName)
}
