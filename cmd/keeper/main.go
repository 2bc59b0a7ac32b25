// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/openclaw-infra/keeper/lib/gateway"
	"github.com/openclaw-infra/keeper/lib/statesync"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output (like status) return an
		// ExitError with the desired exit code. Don't print a redundant
		// "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func run() error {
	return root().Execute(os.Args[1:])
}

// Exit codes for classified failures. The sandbox boot script and
// cron wrappers branch on these: configuration problems page the
// operator, transfer problems retry.
const (
	exitFailure       = 1
	exitConfiguration = 2
	exitMount         = 3
	exitIntegrity     = 4
	exitTransfer      = 5
	exitLaunch        = 6
	exitReadiness     = 7
)

// exitCode maps an error chain to its exit code. Unclassified errors
// exit 1.
func exitCode(err error) int {
	switch statesync.Kind(err) {
	case statesync.FailureConfigurationMissing:
		return exitConfiguration
	case statesync.FailureMount:
		return exitMount
	case statesync.FailureSyncIntegrity:
		return exitIntegrity
	case statesync.FailureTransfer:
		return exitTransfer
	}

	var launchErr *gateway.LaunchError
	if errors.As(err, &launchErr) {
		return exitLaunch
	}
	var readinessErr *gateway.ReadinessError
	if errors.As(err, &readinessErr) {
		return exitReadiness
	}
	return exitFailure
}
