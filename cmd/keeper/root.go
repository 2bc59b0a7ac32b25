// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/openclaw-infra/keeper/lib/cli"
	"github.com/openclaw-infra/keeper/lib/config"
	"github.com/openclaw-infra/keeper/lib/version"
)

// root builds the keeper command tree.
func root() *cli.Command {
	return &cli.Command{
		Name: "keeper",
		Description: `Keeper: supervision and state continuity for an OpenClaw gateway.

Keeps exactly one gateway running with current credentials, mirrors
its state to durable storage, and restores that state onto fresh or
recycled machines.`,
		Subcommands: []*cli.Command{
			ensureCommand(),
			restoreCommand(),
			backupCommand(),
			statusCommand(),
			fingerprintCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("keeper %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Make sure a gateway is running (idempotent, cron-safe)",
				Command:     "keeper ensure",
			},
			{
				Description: "Check the gateway and the last backups",
				Command:     "keeper status",
			},
			{
				Description: "Mirror gateway state to the durable store",
				Command:     "keeper backup store",
			},
			{
				Description: "Run every configured backup destination",
				Command:     "keeper backup all",
			},
			{
				Description: "Restore from the durable store if local state is behind",
				Command:     "keeper restore",
			},
		},
	}
}

// loadConfig resolves the effective configuration for a command. The
// empty path falls through to KEEPER_CONFIG and then defaults.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// commandContext returns a context canceled on SIGINT or SIGTERM, so
// an interrupted command releases its locks and leaves markers
// consistent instead of dying mid-write.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
