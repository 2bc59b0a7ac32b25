// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

// Package marker reads and writes keeper's single-line marker files:
// the fingerprint marker beside local state and the sync timestamp
// markers at the durable store root and the local config root.
//
// Markers are commit points — the sync timestamp certifies a complete
// backup — so writes are atomic (temp file, fsync, rename, parent
// directory sync) and a reader never observes a partial line.
package marker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrMalformed reports a marker whose content does not parse as a
// timestamp. Distinct from os.ErrNotExist so gating logic can tell
// "never synced" apart from "marker damaged".
var ErrMalformed = errors.New("malformed timestamp marker")

// Write atomically replaces the marker at path with a single line.
// The file is created with mode 0600; missing parent directories are
// not created.
func Write(path string, line string) error {
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary marker file: %w", err)
	}

	if _, err := file.WriteString(line + "\n"); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary marker file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary marker file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary marker file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming marker into place: %w", err)
	}

	// Sync the parent directory so the rename itself is durable. On
	// filesystems that do not support directory sync (FUSE mounts
	// among them) the error is ignored — the rename already happened.
	if dir, err := os.Open(filepath.Dir(path)); err == nil {
		dir.Sync()
		dir.Close()
	}

	return nil
}

// Read returns the marker's first line with surrounding whitespace
// trimmed. A missing file returns an error satisfying
// errors.Is(err, os.ErrNotExist).
func Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading marker: %w", err)
	}
	line, _, _ := strings.Cut(string(data), "\n")
	return strings.TrimSpace(line), nil
}

// WriteTimestamp writes t to path as a single RFC 3339 UTC line.
func WriteTimestamp(path string, t time.Time) error {
	return Write(path, t.UTC().Format(time.RFC3339))
}

// ReadTimestamp reads and parses a timestamp marker. A missing file
// satisfies errors.Is(err, os.ErrNotExist); unparsable content returns
// an error wrapping ErrMalformed.
func ReadTimestamp(path string) (time.Time, error) {
	line, err := Read(path)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, line)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w at %s: %q", ErrMalformed, path, line)
	}
	return t, nil
}

// CheckRecent reads a timestamp marker and verifies it falls within
// maxAge of now. This is how a sync confirms its own commit point:
// the freshly written marker must read back as a well-formed, recent
// timestamp, regardless of what the transfer tooling reported.
func CheckRecent(path string, maxAge time.Duration, now time.Time) (time.Time, error) {
	t, err := ReadTimestamp(path)
	if err != nil {
		return time.Time{}, err
	}
	age := now.Sub(t)
	if age > maxAge {
		return time.Time{}, fmt.Errorf("marker at %s is stale: written %s ago, recency window %s", path, age.Round(time.Second), maxAge)
	}
	return t, nil
}

// Clear removes the marker. Idempotent: a missing file is not an
// error.
func Clear(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing marker: %w", err)
	}
	return nil
}
