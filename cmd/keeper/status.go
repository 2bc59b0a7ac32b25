// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/openclaw-infra/keeper/lib/cli"
	"github.com/openclaw-infra/keeper/lib/clock"
	"github.com/openclaw-infra/keeper/lib/config"
	"github.com/openclaw-infra/keeper/lib/gateway"
	"github.com/openclaw-infra/keeper/lib/ipc"
)

func statusCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "status",
		Summary: "Report gateway, store, and backup state",
		Description: `Show what keeper knows: whether the gateway is running and
reachable, whether its launch fingerprint still matches the current
credentials, whether the durable store is mounted, and when the
backups last ran.

When keeper-daemon is running the report comes from its control
socket and includes last cycle outcomes; otherwise the state
directory and process table are inspected directly. Exits non-zero
when no reachable gateway is running, so health checks can script
against it.`,
		Usage: "keeper status [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("status", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "path to keeper config file")
			return flags
		},
		Run: func(args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := cli.NewCommandLogger().With("command", "status")
			ctx, stop := commandContext()
			defer stop()

			snapshot := config.EnvironSnapshot(os.Environ())

			client := &ipc.Client{SocketPath: cfg.Daemon.SocketPath}
			response, err := client.Call(ctx, ipc.Request{Action: ipc.ActionStatus})
			if err == nil && response.OK && response.Status != nil {
				printDaemonStatus(response.Status)
				return statusExit(response.Status.Gateway)
			}
			if err != nil {
				logger.Debug("no daemon answering, inspecting directly", "error", err)
			}

			report := gateway.New(cfg, logger, clock.Real()).Status(snapshot)
			fmt.Println("daemon: not running")
			printGatewayReport(&report)
			return statusExit(&report)
		},
	}
}

// statusExit decides the command's exit status from the gateway
// report: zero only for a running, reachable gateway. The report
// itself is the output; ExitError keeps main from printing more.
func statusExit(report *gateway.StatusReport) error {
	if report != nil && report.Gateway != nil && report.Reachable {
		return nil
	}
	return &cli.ExitError{Code: 1}
}

func printDaemonStatus(status *ipc.DaemonStatus) {
	fmt.Printf("daemon: running (pid %d, started %s)\n",
		status.PID, status.StartedAt.UTC().Format(time.RFC3339))
	printGatewayReport(status.Gateway)
	printOutcome("last ensure", status.LastEnsure)
	printOutcome("last store sync", status.LastStoreSync)
	printOutcome("last repo sync", status.LastRepoSync)
	printOutcome("last snapshot", status.LastSnapshot)
}

func printGatewayReport(report *gateway.StatusReport) {
	if report == nil {
		fmt.Println("gateway: unknown")
		return
	}

	switch {
	case report.Gateway == nil:
		fmt.Println("gateway: not running")
	case report.Reachable:
		fmt.Printf("gateway: running (pid %d, port %d), reachable\n",
			report.Gateway.PID, report.Gateway.Port)
	default:
		fmt.Printf("gateway: running (pid %d, port %d), NOT reachable\n",
			report.Gateway.PID, report.Gateway.Port)
	}

	switch {
	case report.MarkerFingerprint == "":
		fmt.Println("fingerprint: no launch marker")
	case report.FingerprintMatch():
		fmt.Println("fingerprint: matches launch")
	default:
		fmt.Println("fingerprint: changed since launch (next ensure replaces the gateway)")
	}

	if report.StoreMounted {
		fmt.Println("store: mounted")
	} else {
		fmt.Println("store: not mounted")
	}

	if report.Record != nil {
		fmt.Printf("last launch: %s\n", report.Record.LaunchedAt.UTC().Format(time.RFC3339))
	}
}

func printOutcome(label string, outcome *ipc.CycleOutcome) {
	switch {
	case outcome == nil:
		fmt.Printf("%s: never\n", label)
	case outcome.OK && outcome.Note != "":
		fmt.Printf("%s: ok at %s (%s)\n", label, outcome.At.UTC().Format(time.RFC3339), outcome.Note)
	case outcome.OK:
		fmt.Printf("%s: ok at %s\n", label, outcome.At.UTC().Format(time.RFC3339))
	default:
		fmt.Printf("%s: FAILED at %s: %s\n", label, outcome.At.UTC().Format(time.RFC3339), outcome.Error)
	}
}
