// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/openclaw-infra/keeper/lib/cli"
	"github.com/openclaw-infra/keeper/lib/config"
	"github.com/openclaw-infra/keeper/lib/fingerprint"
)

func fingerprintCommand() *cli.Command {
	var listKeys bool

	return &cli.Command{
		Name:    "fingerprint",
		Summary: "Print the credential fingerprint of this environment",
		Description: `Compute the fingerprint the supervisor would use right now: the
sorted names of recognized credential keys present in the
environment, joined with commas. Only presence is examined; values
are never read. Compare against "keeper status" to see why a gateway
would be replaced.`,
		Usage: "keeper fingerprint [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("fingerprint", pflag.ContinueOnError)
			flags.BoolVar(&listKeys, "keys", false, "list present key names one per line instead")
			return flags
		},
		Examples: []cli.Example{
			{
				Description: "The fingerprint as stored in the launch marker",
				Command:     "keeper fingerprint",
			},
			{
				Description: "Which recognized keys this shell would hand the gateway",
				Command:     "keeper fingerprint --keys",
			},
		},
		Run: func(args []string) error {
			snapshot := config.EnvironSnapshot(os.Environ())
			if listKeys {
				for _, key := range fingerprint.Present(snapshot) {
					fmt.Println(key)
				}
				return nil
			}
			fmt.Println(fingerprint.Compute(snapshot))
			return nil
		},
	}
}
