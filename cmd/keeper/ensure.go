// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/openclaw-infra/keeper/lib/cli"
	"github.com/openclaw-infra/keeper/lib/clock"
	"github.com/openclaw-infra/keeper/lib/config"
	"github.com/openclaw-infra/keeper/lib/gateway"
)

func ensureCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "ensure",
		Summary: "Make sure a healthy gateway is running",
		Description: `Run one supervision cycle: mount the durable store if credentials
allow, find the gateway in the process table, and reuse, replace, or
launch it depending on liveness and the credential fingerprint.

The cycle is idempotent. A healthy gateway with a current fingerprint
is left untouched, so this is safe to run from cron every minute. Two
concurrent ensures serialize on a file lock; the second waits and
then reuses whatever the first started.`,
		Usage: "keeper ensure [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("ensure", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "path to keeper config file")
			return flags
		},
		Examples: []cli.Example{
			{
				Description: "One supervision cycle with the default config",
				Command:     "keeper ensure",
			},
		},
		Run: func(args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := cli.NewCommandLogger().With("command", "ensure")
			ctx, stop := commandContext()
			defer stop()

			supervisor := gateway.New(cfg, logger, clock.Real())
			handle, err := supervisor.EnsureRunning(ctx, config.EnvironSnapshot(os.Environ()))
			if err != nil {
				return err
			}
			fmt.Printf("gateway running: pid %d, port %d\n", handle.PID, handle.Port)
			return nil
		},
	}
}
