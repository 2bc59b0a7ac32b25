// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/openclaw-infra/keeper/lib/bucket"
	"github.com/openclaw-infra/keeper/lib/cli"
	"github.com/openclaw-infra/keeper/lib/clock"
	"github.com/openclaw-infra/keeper/lib/config"
	"github.com/openclaw-infra/keeper/lib/gitmirror"
	"github.com/openclaw-infra/keeper/lib/snapshot"
	"github.com/openclaw-infra/keeper/lib/statesync"
)

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:    "backup",
		Summary: "Sync gateway state to backup destinations",
		Description: `Mirror gateway state to the configured backup destinations.

The durable store carries the full state including credentials; the
repository carries a redacted, human-browsable history; snapshots are
immutable point-in-time archives for recovering from corruption that
the mirrors would faithfully propagate.`,
		Subcommands: []*cli.Command{
			backupStoreCommand(),
			backupRepoCommand(),
			backupSnapshotCommand(),
			backupAllCommand(),
		},
	}
}

// backupFlags is the flag set shared by every backup subcommand.
func backupFlags(name string, configPath *string) func() *pflag.FlagSet {
	return func() *pflag.FlagSet {
		flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
		flags.StringVar(configPath, "config", "", "path to keeper config file")
		return flags
	}
}

func backupStoreCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "store",
		Summary: "Mirror full state to the durable store",
		Description: `Mount the durable store if needed and mirror the config root,
workspace, and skills onto it, then commit by writing the sync
marker. Success means the marker was written and read back, never
that the mirror tooling exited zero.`,
		Usage: "keeper backup store [flags]",
		Flags: backupFlags("store", &configPath),
		Run: func(args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := cli.NewCommandLogger().With("command", "backup/store")
			ctx, stop := commandContext()
			defer stop()

			creds := config.StoreCredentialsFrom(config.EnvironSnapshot(os.Environ()))
			if err := statesync.New(cfg, logger, clock.Real()).SyncToStore(ctx, creds); err != nil {
				return err
			}
			fmt.Println("store: synced")
			return nil
		},
	}
}

func backupRepoCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "repo",
		Summary: "Push redacted state to the backup repository",
		Description: `Stage the workspace and a redacted copy of the gateway config into
the mirror clone, commit when anything changed, and push. A no-op
push is a success; the remote simply already matched.`,
		Usage: "keeper backup repo [flags]",
		Flags: backupFlags("repo", &configPath),
		Run: func(args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := cli.NewCommandLogger().With("command", "backup/repo")
			ctx, stop := commandContext()
			defer stop()

			creds := cfg.RepoCredentialsFrom(config.EnvironSnapshot(os.Environ()))
			result, err := gitmirror.New(cfg, logger, clock.Real()).SyncToRepository(ctx, creds)
			if err != nil {
				return err
			}
			printRepoResult(result)
			return nil
		},
	}
}

func backupSnapshotCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "snapshot",
		Summary: "Upload a point-in-time archive to the snapshot bucket",
		Description: `Archive the config root, workspace, and skills into a compressed
(and, with a key file configured, encrypted) tar, and upload it with
its manifest to the snapshot bucket. Snapshots are never overwritten;
each upload is a new recovery point named by its creation time.`,
		Usage: "keeper backup snapshot [flags]",
		Flags: backupFlags("snapshot", &configPath),
		Run: func(args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := cli.NewCommandLogger().With("command", "backup/snapshot")
			ctx, stop := commandContext()
			defer stop()

			name, err := uploadSnapshot(ctx, cfg, logger)
			if err != nil {
				return err
			}
			fmt.Printf("snapshot: uploaded %s\n", name)
			return nil
		},
	}
}

// uploadSnapshot builds one archive and stores it with its manifest.
func uploadSnapshot(ctx context.Context, cfg *config.Config, logger *slog.Logger) (string, error) {
	builder, err := snapshot.New(cfg, logger, clock.Real())
	if err != nil {
		return "", err
	}
	defer builder.Close()

	archive, err := builder.Create(ctx)
	if err != nil {
		return "", err
	}

	bucketName := cfg.SnapshotBucketFrom(config.EnvironSnapshot(os.Environ()))
	client, err := bucket.New(ctx, bucketName, cfg.Snapshot.CredentialsFile, cfg.Snapshot.UploadTimeout.Std(), logger)
	if err != nil {
		return "", err
	}
	defer client.Close()

	if err := client.UploadArchive(ctx, archive); err != nil {
		return "", err
	}
	return archive.Name, nil
}

func backupAllCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "all",
		Summary: "Run every configured backup destination",
		Description: `Run the store, repository, and snapshot backups in that order,
skipping destinations with no configuration. One destination failing
does not stop the others; the command reports every failure and exits
by the first one's classification.`,
		Usage: "keeper backup all [flags]",
		Flags: backupFlags("all", &configPath),
		Run: func(args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := cli.NewCommandLogger().With("command", "backup/all")
			ctx, stop := commandContext()
			defer stop()

			environ := config.EnvironSnapshot(os.Environ())
			var failures []error

			if creds := config.StoreCredentialsFrom(environ); creds.Present() {
				if err := statesync.New(cfg, logger, clock.Real()).SyncToStore(ctx, creds); err != nil {
					failures = append(failures, fmt.Errorf("store: %w", err))
				} else {
					fmt.Println("store: synced")
				}
			} else {
				logger.Info("store destination not configured, skipping")
			}

			if creds := cfg.RepoCredentialsFrom(environ); creds.Present() {
				result, err := gitmirror.New(cfg, logger, clock.Real()).SyncToRepository(ctx, creds)
				if err != nil {
					failures = append(failures, fmt.Errorf("repo: %w", err))
				} else {
					printRepoResult(result)
				}
			} else {
				logger.Info("repository destination not configured, skipping")
			}

			if cfg.SnapshotBucketFrom(environ) != "" {
				name, err := uploadSnapshot(ctx, cfg, logger)
				if err != nil {
					failures = append(failures, fmt.Errorf("snapshot: %w", err))
				} else {
					fmt.Printf("snapshot: uploaded %s\n", name)
				}
			} else {
				logger.Info("snapshot destination not configured, skipping")
			}

			return errors.Join(failures...)
		},
	}
}

func printRepoResult(result gitmirror.Result) {
	if result.Outcome == gitmirror.OutcomePushed {
		fmt.Printf("repo: pushed %s\n", result.Commit)
		return
	}
	fmt.Println("repo: already current")
}
