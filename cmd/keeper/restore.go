// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/openclaw-infra/keeper/lib/cli"
	"github.com/openclaw-infra/keeper/lib/clock"
	"github.com/openclaw-infra/keeper/lib/config"
	"github.com/openclaw-infra/keeper/lib/statesync"
	"github.com/openclaw-infra/keeper/lib/storemount"
)

func restoreCommand() *cli.Command {
	var (
		configPath string
		execAfter  bool
	)

	return &cli.Command{
		Name:    "restore",
		Summary: "Bring local state up to date from the durable store",
		Description: `Compare the local and remote sync markers and, when the store holds
newer state, mirror it onto this machine. Config and skills become
exact copies of the remote; the workspace merges additively so files
written locally since the last sync survive.

With --exec, everything after "--" is executed in this process once
the restore finishes, environment intact. The supervisor launches the
gateway through this chain so reconciliation runs inside the
gateway's own boot. In that mode a failed restore is logged and the
command still runs: a gateway on slightly stale state beats no
gateway, and the untouched sync marker makes the next boot retry.`,
		Usage: "keeper restore [flags] [-- command args...]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("restore", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "path to keeper config file")
			flags.BoolVar(&execAfter, "exec", false, "exec the command after \"--\" once restore completes")
			return flags
		},
		Examples: []cli.Example{
			{
				Description: "Restore if the store is ahead of local state",
				Command:     "keeper restore",
			},
			{
				Description: "Restore, then become the gateway process",
				Command:     "keeper restore --exec -- openclaw gateway --port 18789",
			},
		},
		Run: func(args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := cli.NewCommandLogger().With("command", "restore")
			ctx, stop := commandContext()
			defer stop()

			mounted, mountErr := ensureStoreMounted(ctx, cfg, logger)
			switch {
			case mounted:
				engine := statesync.New(cfg, logger, clock.Real())
				if err := engine.Restore(ctx); err != nil {
					if !execAfter {
						return err
					}
					// Boot chain: availability wins. The marker was not
					// advanced, so the next boot retries the restore.
					logger.Error("restore failed, starting command anyway", "error", err)
				}
			case !execAfter && mountErr != nil:
				return &statesync.Error{Kind: statesync.FailureMount, Err: mountErr}
			case !execAfter:
				return &statesync.Error{
					Kind: statesync.FailureConfigurationMissing,
					Err:  fmt.Errorf("store not mounted and no bucket configured (set %s)", config.EnvStateBucket),
				}
			default:
				logger.Warn("durable store unavailable, skipping restore", "error", mountErr)
			}

			if !execAfter {
				return nil
			}
			return execCommand(args, cfg, logger)
		},
	}
}

// ensureStoreMounted attaches the durable store when possible. The
// returned error explains a failed attach; (false, nil) means there
// were no credentials to attach with.
func ensureStoreMounted(ctx context.Context, cfg *config.Config, logger *slog.Logger) (bool, error) {
	store := storemount.New(cfg.Store.MountPoint)
	creds := config.StoreCredentialsFrom(config.EnvironSnapshot(os.Environ()))

	mountCtx, cancel := context.WithTimeout(ctx, cfg.Store.MountTimeout.Std())
	defer cancel()
	mounted, err := store.EnsureMounted(mountCtx, creds)
	if mounted {
		logger.Debug("durable store mounted", "mount_point", cfg.Store.MountPoint)
	}
	return mounted, err
}

// execCommand replaces this process with the given command. An empty
// argv falls back to the configured gateway command, so a bare
// "keeper restore --exec" still boots the gateway.
func execCommand(argv []string, cfg *config.Config, logger *slog.Logger) error {
	if len(argv) == 0 {
		argv = cfg.Gateway.Command
	}
	if len(argv) == 0 {
		return fmt.Errorf("no command to exec: none given and gateway.command is empty")
	}

	binary, err := exec.LookPath(argv[0])
	if err != nil {
		return fmt.Errorf("resolving %q: %w", argv[0], err)
	}
	logger.Info("handing off to command", "binary", binary)

	// One-way door: on success this never returns.
	if err := syscall.Exec(binary, argv, os.Environ()); err != nil {
		return fmt.Errorf("exec %q: %w", binary, err)
	}
	return nil
}
