// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "keeper",
		Subcommands: []*Command{
			{
				Name: "ensure",
				Run: func(args []string) error {
					called = "ensure"
					return nil
				},
			},
			{
				Name: "backup",
				Run: func(args []string) error {
					called = "backup"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"backup"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "backup" {
		t.Errorf("dispatched to %q, want %q", called, "backup")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var receivedArgs []string

	root := &Command{
		Name: "keeper",
		Subcommands: []*Command{
			{
				Name: "backup",
				Subcommands: []*Command{
					{
						Name: "store",
						Run: func(args []string) error {
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute([]string{"backup", "store", "extra"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "extra" {
		t.Errorf("args = %v, want [extra]", receivedArgs)
	}
}

func TestCommand_Execute_UnknownSubcommand(t *testing.T) {
	root := &Command{
		Name: "keeper",
		Subcommands: []*Command{
			{Name: "ensure", Run: func(args []string) error { return nil }},
		},
	}

	err := root.Execute([]string{"ensrue"})
	if err == nil {
		t.Fatal("Execute() accepted an unknown subcommand")
	}
	if !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("error = %q, want mention of unknown command", err)
	}
}

func TestCommand_Execute_ParsesFlags(t *testing.T) {
	var configPath string

	cmd := &Command{
		Name: "ensure",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("ensure", pflag.ContinueOnError)
			fs.StringVar(&configPath, "config", "", "config file path")
			return fs
		},
		Run: func(args []string) error { return nil },
	}

	if err := cmd.Execute([]string{"--config", "/etc/keeper.yaml"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if configPath != "/etc/keeper.yaml" {
		t.Errorf("config flag = %q, want %q", configPath, "/etc/keeper.yaml")
	}
}

func TestCommand_Execute_ArgsAfterTerminatorUntouched(t *testing.T) {
	var (
		execAfter    bool
		receivedArgs []string
	)

	cmd := &Command{
		Name: "restore",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("restore", pflag.ContinueOnError)
			fs.BoolVar(&execAfter, "exec", false, "exec the trailing command")
			return fs
		},
		Run: func(args []string) error {
			receivedArgs = args
			return nil
		},
	}

	// Everything after "--" must reach Run verbatim, flags included:
	// the trailing argv belongs to the command being handed off to.
	err := cmd.Execute([]string{"--exec", "--", "openclaw", "gateway", "--port", "18789"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !execAfter {
		t.Error("--exec flag not parsed")
	}
	want := []string{"openclaw", "gateway", "--port", "18789"}
	if len(receivedArgs) != len(want) {
		t.Fatalf("args = %v, want %v", receivedArgs, want)
	}
	for i := range want {
		if receivedArgs[i] != want[i] {
			t.Fatalf("args = %v, want %v", receivedArgs, want)
		}
	}
}

func TestCommand_Execute_UnknownFlagError(t *testing.T) {
	cmd := &Command{
		Name: "status",
		Flags: func() *pflag.FlagSet {
			return pflag.NewFlagSet("status", pflag.ContinueOnError)
		},
		Run: func(args []string) error { return nil },
	}

	err := cmd.Execute([]string{"--bogus"})
	if err == nil {
		t.Fatal("Execute() accepted an unknown flag")
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error = %q, want pointer to --help", err)
	}
}

func TestCommand_Execute_SubcommandRequired(t *testing.T) {
	root := &Command{
		Name: "keeper",
		Subcommands: []*Command{
			{Name: "ensure", Run: func(args []string) error { return nil }},
		},
	}

	if err := root.Execute(nil); err == nil {
		t.Fatal("Execute() without a subcommand returned nil error")
	}
}

func TestCommand_PrintHelp_ListsSubcommands(t *testing.T) {
	root := &Command{
		Name:    "keeper",
		Summary: "supervise the gateway and keep its state durable",
		Subcommands: []*Command{
			{Name: "ensure", Summary: "run one supervision cycle"},
			{Name: "backup", Summary: "sync state to the backup destinations"},
		},
	}

	var buf bytes.Buffer
	root.PrintHelp(&buf)
	help := buf.String()

	for _, want := range []string{"ensure", "run one supervision cycle", "backup", "Commands:"} {
		if !strings.Contains(help, want) {
			t.Errorf("help output missing %q:\n%s", want, help)
		}
	}
}

func TestCommand_PrintHelp_IncludesExamples(t *testing.T) {
	cmd := &Command{
		Name: "store",
		Examples: []Example{
			{Description: "mirror local state to the durable store", Command: "keeper backup store"},
		},
	}

	var buf bytes.Buffer
	cmd.PrintHelp(&buf)
	if !strings.Contains(buf.String(), "keeper backup store") {
		t.Errorf("help output missing example:\n%s", buf.String())
	}
}

func TestCommand_HelpFlagIsNotAnError(t *testing.T) {
	cmd := &Command{Name: "keeper", Run: func(args []string) error { return nil }}
	if err := cmd.Execute([]string{"--help"}); err != nil {
		t.Errorf("Execute(--help) error: %v", err)
	}
}
