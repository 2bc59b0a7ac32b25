// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build version information for the keeper
// binaries.
//
// Release builds inject the variables via -ldflags:
//
//	go build -ldflags "-X github.com/openclaw-infra/keeper/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Binaries built without ldflags fall back to the VCS stamp the Go
// toolchain embeds, so --version is informative even for a plain
// `go install`.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags at build time. Empty values resolve through the
// toolchain's embedded build info instead.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = ""

	// GitDirty is "true" when the worktree had uncommitted changes.
	GitDirty = ""

	// BuildTime is the UTC timestamp of the build.
	BuildTime = ""

	// Version is the semantic version, set manually for releases.
	Version = "0.1.0-dev"
)

// Info returns a one-line version string for --version output.
func Info() string {
	commit, dirty, when := buildStamp()
	suffix := ""
	if dirty {
		suffix = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, commit, suffix, when)
}

// Full returns Info plus the Go toolchain and target platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// buildStamp resolves commit, dirty flag, and build time from the
// ldflags variables, filling gaps from the VCS settings in the
// binary's build info.
func buildStamp() (commit string, dirty bool, when string) {
	commit, dirty, when = GitCommit, GitDirty == "true", BuildTime

	if commit == "" || when == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs.revision":
					if commit == "" {
						commit = setting.Value
						if len(commit) > 12 {
							commit = commit[:12]
						}
					}
				case "vcs.modified":
					if GitDirty == "" {
						dirty = setting.Value == "true"
					}
				case "vcs.time":
					if when == "" {
						when = setting.Value
					}
				}
			}
		}
	}

	if commit == "" {
		commit = "unknown"
	}
	if when == "" {
		when = "unknown"
	}
	return commit, dirty, when
}
