// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git CLI. Keeper uses git
// for the versioned backup mirror: cloning the remote, committing
// redacted state, and pushing. All commands target a specific
// repository directory via the -C flag, which every Repository method
// injects automatically. Credentials travel through per-invocation
// environment variables, never through the remote URL or the on-disk
// config, so a leaked clone directory carries no token.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Repository represents a git repository at a specific directory.
// There is no default directory — callers must always specify which
// repository they mean.
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting the given directory.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and included in error
// messages on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	return r.RunWithEnv(ctx, nil, args...)
}

// RunWithEnv is Run with extra "KEY=value" pairs appended to the
// inherited environment. The backup sync uses this to hand git an
// authorization header via GIT_CONFIG_* variables, keeping the token
// out of the command line and the repository config.
func (r *Repository) RunWithEnv(ctx context.Context, extraEnv []string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr
	if len(extraEnv) > 0 {
		command.Env = append(os.Environ(), extraEnv...)
	}

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// RunLocked executes a git command with flock(1) serialization. The
// lock file at lockPath is held for the duration of the command,
// preventing concurrent git operations on the same clone (the daemon
// and a hand-run sync can otherwise race).
//
// Returns combined stdout and stderr output because git writes
// progress information to stderr (e.g., "Counting objects...",
// "* branch main -> FETCH_HEAD").
func (r *Repository) RunLocked(ctx context.Context, lockPath string, args ...string) (string, error) {
	gitArgs := append([]string{"-C", r.dir}, args...)
	flockArgs := append([]string{lockPath, "git"}, gitArgs...)

	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "flock", flockArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String() + stderr.String()), nil
}

// Command returns an *exec.Cmd for a git command without running it.
// The caller gets full control over Stdin, Stdout, Stderr, and Env
// before starting the process. The -C flag targeting this repository
// is automatically prepended.
func (r *Repository) Command(ctx context.Context, args ...string) *exec.Cmd {
	fullArgs := append([]string{"-C", r.dir}, args...)
	return exec.CommandContext(ctx, "git", fullArgs...)
}

// IsRepository reports whether the directory currently holds a git
// repository (working tree or bare).
func (r *Repository) IsRepository(ctx context.Context) bool {
	_, err := r.Run(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// HasChanges reports whether the working tree differs from HEAD,
// including untracked files. A repository without any commit yet
// reports true as soon as anything is staged or present.
func (r *Repository) HasChanges(ctx context.Context) (bool, error) {
	output, err := r.Run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(output) != "", nil
}
