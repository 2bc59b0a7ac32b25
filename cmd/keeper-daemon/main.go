// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openclaw-infra/keeper/lib/clock"
	"github.com/openclaw-infra/keeper/lib/config"
	"github.com/openclaw-infra/keeper/lib/cron"
	"github.com/openclaw-infra/keeper/lib/gateway"
	"github.com/openclaw-infra/keeper/lib/gitmirror"
	"github.com/openclaw-infra/keeper/lib/statesync"
	"github.com/openclaw-infra/keeper/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "path to the keeper config file (defaults to $KEEPER_CONFIG, then built-in defaults)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("keeper-daemon %s\n", version.Info())
		return nil
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := os.MkdirAll(cfg.StateDir, 0700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	daemon := newDaemon(cfg, logger, clock.Real())
	daemon.loadState()

	logger.Info("keeper-daemon starting",
		"version", version.Info(),
		"pid", os.Getpid(),
		"state_dir", cfg.StateDir,
		"ensure_interval", cfg.Daemon.EnsureInterval.Std().String(),
		"store_sync_interval", cfg.Daemon.StoreSyncInterval.Std().String(),
		"repo_sync_interval", cfg.Daemon.RepoSyncInterval.Std().String(),
		"snapshot_interval", cfg.Daemon.SnapshotInterval.Std().String(),
		"snapshot_cron", cfg.Daemon.SnapshotCron,
	)

	if err := daemon.startControlSocket(ctx); err != nil {
		return fmt.Errorf("starting control socket: %w", err)
	}
	defer daemon.stopControlSocket()

	if err := daemon.startWatcher(ctx); err != nil {
		// The scheduled store sync still runs; only the early trigger
		// after local writes is lost.
		logger.Error("file watcher unavailable", "error", err)
	}
	defer daemon.stopWatcher()

	// Initial supervision cycle.
	if err := daemon.runEnsure(ctx); err != nil {
		logger.Error("initial supervision cycle failed", "error", err)
		// Keep running; the next cycle will retry.
	}

	go daemon.ensureLoop(ctx)
	go daemon.storeSyncLoop(ctx)
	go daemon.repoSyncLoop(ctx)
	switch {
	case cfg.Daemon.SnapshotCron != "":
		go daemon.snapshotCronLoop(ctx)
	case cfg.Daemon.SnapshotInterval.Std() > 0:
		go daemon.snapshotLoop(ctx)
	}

	// One store sync shortly after boot picks up anything written while
	// the daemon was down, without blocking startup.
	daemon.requestStoreSync()

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// Daemon is the long-running keeper process: it owns the cycle
// schedules, the control socket, the file watcher, and the persisted
// outcome state.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	clk    clock.Clock

	supervisor *gateway.Supervisor
	store      *statesync.Engine
	repo       *gitmirror.Engine

	startedAt time.Time

	// ensureNow and syncNow wake their loops ahead of schedule.
	// Buffered with capacity 1 so repeated requests collapse into one
	// early cycle.
	ensureNow chan struct{}
	syncNow   chan struct{}

	listener net.Listener
	watcher  *fsnotify.Watcher

	// mu guards state. Cycle loops record outcomes while the control
	// socket reads them.
	mu    sync.Mutex
	state daemonState
}

func newDaemon(cfg *config.Config, logger *slog.Logger, clk clock.Clock) *Daemon {
	return &Daemon{
		cfg:        cfg,
		logger:     logger,
		clk:        clk,
		supervisor: gateway.New(cfg, logger, clk),
		store:      statesync.New(cfg, logger, clk),
		repo:       gitmirror.New(cfg, logger, clk),
		startedAt:  clk.Now().UTC(),
		ensureNow:  make(chan struct{}, 1),
		syncNow:    make(chan struct{}, 1),
	}
}

// requestEnsure wakes the supervision loop ahead of schedule. A
// request while one is already pending is a no-op.
func (d *Daemon) requestEnsure() {
	select {
	case d.ensureNow <- struct{}{}:
	default:
	}
}

// requestStoreSync wakes the store sync loop ahead of schedule.
func (d *Daemon) requestStoreSync() {
	select {
	case d.syncNow <- struct{}{}:
	default:
	}
}

// ensureLoop runs supervision cycles on the configured interval and
// whenever requestEnsure fires.
func (d *Daemon) ensureLoop(ctx context.Context) {
	ticker := d.clk.NewTicker(d.cfg.Daemon.EnsureInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.ensureNow:
		}
		if err := d.runEnsure(ctx); err != nil {
			d.logger.Error("supervision cycle failed", "error", err)
		}
	}
}

// storeSyncLoop runs durable-store syncs on the configured interval,
// plus early syncs requested by the file watcher or the control
// socket.
func (d *Daemon) storeSyncLoop(ctx context.Context) {
	ticker := d.clk.NewTicker(d.cfg.Daemon.StoreSyncInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.syncNow:
		}
		if err := d.runStoreSync(ctx); err != nil {
			d.logger.Error("store sync failed", "error", err)
		}
	}
}

// repoSyncLoop runs repository syncs on the configured interval.
func (d *Daemon) repoSyncLoop(ctx context.Context) {
	ticker := d.clk.NewTicker(d.cfg.Daemon.RepoSyncInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := d.runRepoSync(ctx); err != nil {
			d.logger.Error("repository sync failed", "error", err)
		}
	}
}

// snapshotLoop runs scheduled snapshot uploads. Only started when a
// snapshot interval is configured.
func (d *Daemon) snapshotLoop(ctx context.Context) {
	ticker := d.clk.NewTicker(d.cfg.Daemon.SnapshotInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := d.runSnapshot(ctx); err != nil {
			d.logger.Error("snapshot failed", "error", err)
		}
	}
}

// snapshotCronLoop runs snapshot uploads on the configured cron
// schedule. The expression was validated with the rest of the config
// at startup.
func (d *Daemon) snapshotCronLoop(ctx context.Context) {
	schedule, err := cron.Parse(d.cfg.Daemon.SnapshotCron)
	if err != nil {
		d.logger.Error("invalid snapshot cron expression", "error", err)
		return
	}

	for {
		now := d.clk.Now()
		next, err := schedule.Next(now)
		if err != nil {
			d.logger.Error("snapshot schedule has no next occurrence", "error", err)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-d.clk.After(next.Sub(now)):
		}
		if err := d.runSnapshot(ctx); err != nil {
			d.logger.Error("snapshot failed", "error", err)
		}
	}
}
