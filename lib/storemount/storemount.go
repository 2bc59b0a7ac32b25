// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

// Package storemount attaches the durable store bucket at its fixed
// mount point. Mount success is never inferred from the mount
// command's exit status or error text: gcsfuse reports "already
// mounted" in ways indistinguishable from genuine failures, so the
// adapter decides by inspecting the live mount table after every
// attempt. Absent credentials make the store unavailable, not broken;
// callers treat that as a normal degraded mode.
package storemount

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/openclaw-infra/keeper/lib/config"
)

// Mounter attaches a bucket at a local path. The production
// implementation shells out to gcsfuse; tests substitute a fake.
type Mounter interface {
	Mount(ctx context.Context, creds config.StoreCredentials, mountPoint string) error
}

// GCSFuse mounts buckets with the gcsfuse binary.
type GCSFuse struct {
	// Binary overrides the gcsfuse executable name.
	Binary string
}

// Mount runs gcsfuse. Output is folded into the error because gcsfuse
// writes its diagnostics to stdout as often as stderr.
func (g *GCSFuse) Mount(ctx context.Context, creds config.StoreCredentials, mountPoint string) error {
	binary := g.Binary
	if binary == "" {
		binary = "gcsfuse"
	}
	args := []string{"--implicit-dirs"}
	if creds.KeyFile != "" {
		args = append(args, "--key-file", creds.KeyFile)
	}
	args = append(args, creds.Bucket, mountPoint)

	cmd := exec.CommandContext(ctx, binary, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		detail := strings.TrimSpace(string(output))
		if detail != "" {
			return fmt.Errorf("running %s: %w: %s", binary, err, detail)
		}
		return fmt.Errorf("running %s: %w", binary, err)
	}
	return nil
}

// Adapter ensures the durable store is attached at MountPoint.
type Adapter struct {
	// MountPoint is where the store attaches. Must be absolute.
	MountPoint string

	// Mounter performs the attach. Defaults to GCSFuse.
	Mounter Mounter

	// MountInfo is the mount table to consult. Defaults to
	// /proc/self/mountinfo; tests point it at a fixture.
	MountInfo string
}

// New returns an adapter with production defaults.
func New(mountPoint string) *Adapter {
	return &Adapter{
		MountPoint: mountPoint,
		Mounter:    &GCSFuse{},
		MountInfo:  "/proc/self/mountinfo",
	}
}

// EnsureMounted makes the store available if credentials allow. An
// already-attached mount counts even without credentials, so a
// pre-mounted store keeps working when the bucket variable is not in
// this process's environment. Otherwise absent credentials return
// (false, nil) without side effects. Returns true only when the mount
// point is confirmed in the live mount table, regardless of what the
// mount command claimed.
func (a *Adapter) EnsureMounted(ctx context.Context, creds config.StoreCredentials) (bool, error) {
	if a.Mounted() {
		return true, nil
	}
	if !creds.Present() {
		return false, nil
	}
	if err := os.MkdirAll(a.MountPoint, 0o755); err != nil {
		return false, fmt.Errorf("creating mount point: %w", err)
	}

	mountErr := a.Mounter.Mount(ctx, creds, a.MountPoint)

	// The mount table is the authority. An error with the mount
	// present means "already mounted"; success with it absent means
	// the attach silently failed.
	if a.Mounted() {
		return true, nil
	}
	if mountErr != nil {
		return false, fmt.Errorf("mounting store at %s: %w", a.MountPoint, mountErr)
	}
	return false, fmt.Errorf("mount reported success but %s is not in the mount table", a.MountPoint)
}

// Mounted reports whether the mount point currently appears in the
// live mount table. Falls back to a device-ID comparison when the
// table cannot be read.
func (a *Adapter) Mounted() bool {
	if present, err := mountTableHas(a.MountInfo, a.MountPoint); err == nil {
		return present
	}
	return deviceDiffers(a.MountPoint)
}

// mountTableHas scans a mountinfo-format table for a mount point.
// Malformed lines are skipped rather than failing the scan.
func mountTableHas(path, mountPoint string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer file.Close()

	target := filepath.Clean(mountPoint)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 {
			continue
		}
		// Field 5 is the mount point, with whitespace octal-escaped.
		if unescapeMountPath(fields[4]) == target {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, err
	}
	return false, nil
}

// unescapeMountPath reverses the octal escapes the kernel applies to
// mount paths (space, tab, newline, backslash).
func unescapeMountPath(path string) string {
	if !strings.Contains(path, `\`) {
		return path
	}
	replacer := strings.NewReplacer(
		`\040`, " ",
		`\011`, "\t",
		`\012`, "\n",
		`\134`, `\`,
	)
	return replacer.Replace(path)
}

// deviceDiffers reports whether the path sits on a different device
// than its parent directory, which indicates something is mounted
// there.
func deviceDiffers(path string) bool {
	var pathStat, parentStat unix.Stat_t
	if err := unix.Stat(path, &pathStat); err != nil {
		return false
	}
	if err := unix.Stat(filepath.Dir(path), &parentStat); err != nil {
		return false
	}
	return pathStat.Dev != parentStat.Dev
}
