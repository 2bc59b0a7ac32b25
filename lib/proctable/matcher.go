// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package proctable

import "strings"

// Matcher classifies command lines. A command matches when it
// contains any Include substring and no Exclude substring; exclusions
// always win, since CLI invocations textually overlap the launch
// command they operate on.
type Matcher struct {
	Include []string
	Exclude []string
}

// Matches applies the classification rule to one command line.
func (m Matcher) Matches(commandLine string) bool {
	for _, pattern := range m.Exclude {
		if pattern != "" && strings.Contains(commandLine, pattern) {
			return false
		}
	}
	for _, pattern := range m.Include {
		if pattern != "" && strings.Contains(commandLine, pattern) {
			return true
		}
	}
	return false
}

// GatewayMatcher derives the classification patterns from a launch
// command. The inclusion pattern is the binary plus subcommand;
// exclusions cover the CLI invocations that embed it plus scan noise
// like a grep for the same string.
func GatewayMatcher(command []string) Matcher {
	include := strings.Join(command, " ")
	if len(command) >= 2 {
		include = strings.Join(command[:2], " ")
	}
	return Matcher{
		Include: []string{include},
		Exclude: []string{
			include + " status",
			include + " stop",
			include + " restart",
			include + " logs",
			"grep",
		},
	}
}

// FindMatching returns the lowest-PID eligible process whose command
// line matches. Stopped and failed entries never match.
func (t *Table) FindMatching(m Matcher) (Process, bool) {
	for _, process := range t.List() {
		if !Eligible(process.Status) {
			continue
		}
		if m.Matches(process.CommandLine()) {
			return process, true
		}
	}
	return Process{}, false
}
