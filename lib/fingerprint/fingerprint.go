// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

// Package fingerprint derives a stable identifier from the set of
// credential keys available to the gateway. The fingerprint is the
// sorted list of recognized key names joined with commas; values are
// never read, so the fingerprint can be stored and compared without
// handling secret material. A gateway launched under one fingerprint
// is considered stale as soon as the current environment produces a
// different one.
package fingerprint

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/openclaw-infra/keeper/lib/marker"
)

// Delimiter joins key names in the computed fingerprint.
const Delimiter = ","

// MarkerName is the file recording the fingerprint the running
// gateway was launched with, kept in the keeper state directory.
const MarkerName = "env-fingerprint"

// recognizedKeys is the allowlist of environment keys whose presence
// affects gateway behavior: channel tokens, model API keys, and the
// store and repository credentials keeper itself consumes. Keys not
// listed here never influence the fingerprint.
var recognizedKeys = []string{
	"ANTHROPIC_API_KEY",
	"DISCORD_BOT_TOKEN",
	"GITHUB_TOKEN",
	"GOOGLE_APPLICATION_CREDENTIALS",
	"OPENAI_API_KEY",
	"OPENCLAW_BACKUP_REPO",
	"OPENCLAW_GATEWAY_TOKEN",
	"OPENCLAW_SNAPSHOT_BUCKET",
	"OPENCLAW_STATE_BUCKET",
	"OPENCLAW_STATE_KEY_FILE",
	"SLACK_APP_TOKEN",
	"SLACK_BOT_TOKEN",
	"TELEGRAM_BOT_TOKEN",
}

// Recognized returns the allowlist in sorted order.
func Recognized() []string {
	keys := make([]string, len(recognizedKeys))
	copy(keys, recognizedKeys)
	sort.Strings(keys)
	return keys
}

// Present returns the recognized keys present in the snapshot, sorted
// lexicographically. Presence means the key exists in the snapshot; a
// key set to the empty string still counts, since only presence is
// examined.
func Present(snapshot map[string]string) []string {
	var present []string
	for _, key := range recognizedKeys {
		if _, ok := snapshot[key]; ok {
			present = append(present, key)
		}
	}
	sort.Strings(present)
	return present
}

// Compute returns the fingerprint for an environment snapshot. Pure:
// same present-key-set in, same string out, regardless of map
// construction order. An empty snapshot computes to the empty string.
func Compute(snapshot map[string]string) string {
	return strings.Join(Present(snapshot), Delimiter)
}

// MarkerPath returns where the fingerprint marker lives for a given
// keeper state directory.
func MarkerPath(stateDir string) string {
	return filepath.Join(stateDir, MarkerName)
}

// WriteMarker durably records the fingerprint the next gateway launch
// runs under. Called immediately before launch so a crash right after
// still leaves the intended fingerprint for the next cycle.
func WriteMarker(stateDir, fp string) error {
	return marker.Write(MarkerPath(stateDir), fp)
}

// ReadMarker returns the fingerprint recorded at the last launch. A
// missing marker wraps os.ErrNotExist; callers treat that as "no
// previous launch" and restart.
func ReadMarker(stateDir string) (string, error) {
	return marker.Read(MarkerPath(stateDir))
}
