// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

// Package gitmirror maintains the versioned backup repository: a git
// remote holding the gateway's workspace and a redacted copy of its
// configuration. The repository is the secondary backup destination —
// human-browsable history with secrets stripped — while the durable
// store carries the full state.
//
// Every sync rebuilds the staged tree from scratch and lets git
// decide whether anything changed, so a no-op sync produces no commit
// and is still a success. Credentials reach git through
// per-invocation environment variables; the remote URL and the clone
// config never contain a token.
package gitmirror

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/openclaw-infra/keeper/lib/clock"
	"github.com/openclaw-infra/keeper/lib/config"
	"github.com/openclaw-infra/keeper/lib/git"
	"github.com/openclaw-infra/keeper/lib/statesync"
)

const (
	commitAuthor = "OpenClaw Keeper"
	commitEmail  = "keeper@openclaw.local"
)

// Outcome is a terminal repository sync state. There are exactly two
// successful ones; a no-op is never a failure.
type Outcome string

const (
	// OutcomePushed means a fresh commit reached the remote.
	OutcomePushed Outcome = "pushed"

	// OutcomeNoChanges means the remote already matched local state.
	OutcomeNoChanges Outcome = "no-changes"
)

// Result describes a successful repository sync.
type Result struct {
	Outcome Outcome

	// Commit is the short hash of the new commit, empty for a no-op.
	Commit string
}

// Engine syncs local state into the backup repository.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger
	clk    clock.Clock

	// mu serializes syncs within one process; the staging directory
	// is rebuilt in place and cannot take two writers.
	mu sync.Mutex
}

// New returns an Engine over the configured clone directory.
func New(cfg *config.Config, logger *slog.Logger, clk clock.Clock) *Engine {
	return &Engine{cfg: cfg, logger: logger, clk: clk}
}

// SyncToRepository stages local state into the mirror clone, commits
// when the tree changed, and pushes. The push runs even without a
// fresh commit so a previously failed push gets retried; pushing an
// already current branch is a no-op for git.
func (e *Engine) SyncToRepository(ctx context.Context, creds config.RepoCredentials) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if creds.URL == "" {
		return Result{}, &statesync.Error{
			Kind: statesync.FailureConfigurationMissing,
			Err:  fmt.Errorf("backup repository not configured (set %s or repo.url)", config.EnvBackupRepo),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Repo.Timeout.Std())
	defer cancel()

	repo, err := e.prepareClone(ctx, creds)
	if err != nil {
		return Result{}, transferFailure(err)
	}
	if err := e.stage(ctx, repo.Dir()); err != nil {
		return Result{}, transferFailure(err)
	}

	if _, err := repo.Run(ctx, "add", "--all"); err != nil {
		return Result{}, transferFailure(err)
	}
	changed, err := repo.HasChanges(ctx)
	if err != nil {
		return Result{}, transferFailure(err)
	}

	result := Result{Outcome: OutcomeNoChanges}
	if changed {
		message := "Automated backup " + e.clk.Now().UTC().Format(time.RFC3339)
		if _, err := repo.RunWithEnv(ctx, identityEnv(), "commit", "--message", message); err != nil {
			return Result{}, transferFailure(err)
		}
		hash, err := repo.Run(ctx, "rev-parse", "--short", "HEAD")
		if err != nil {
			return Result{}, transferFailure(err)
		}
		result = Result{Outcome: OutcomePushed, Commit: strings.TrimSpace(hash)}
	} else if !hasCommits(ctx, repo) {
		// Brand-new mirror of empty state: nothing exists to push.
		e.logger.Info("repository mirror empty, nothing to push")
		return result, nil
	}

	if _, err := repo.RunWithEnv(ctx, credentialEnv(creds), "push", "--set-upstream", "origin", e.cfg.Repo.Branch); err != nil {
		return Result{}, transferFailure(err)
	}

	if result.Outcome == OutcomePushed {
		e.logger.Info("repository backup pushed", "commit", result.Commit, "branch", e.cfg.Repo.Branch)
	} else {
		e.logger.Info("repository already current", "branch", e.cfg.Repo.Branch)
	}
	return result, nil
}

// prepareClone makes the mirror clone exist and track the remote. An
// existing clone is re-pointed and aligned with the remote branch; a
// missing one is cloned, falling back to init when the clone fails so
// a brand-new or unreachable remote still gets a local mirror to
// stage into.
func (e *Engine) prepareClone(ctx context.Context, creds config.RepoCredentials) (*git.Repository, error) {
	cloneDir := e.cfg.Repo.CloneDir
	branch := e.cfg.Repo.Branch
	repo := git.NewRepository(cloneDir)

	if repo.IsRepository(ctx) {
		if _, err := repo.Run(ctx, "remote", "set-url", "origin", creds.URL); err != nil {
			if _, err := repo.Run(ctx, "remote", "add", "origin", creds.URL); err != nil {
				return nil, fmt.Errorf("configuring backup remote: %w", err)
			}
		}
		if _, err := repo.RunWithEnv(ctx, credentialEnv(creds), "fetch", "origin", branch); err != nil {
			// An empty remote has no branch to fetch; anything worse
			// resurfaces at push time.
			e.logger.Warn("fetching backup remote", "error", err)
		} else if _, err := repo.Run(ctx, "checkout", "-B", branch, "origin/"+branch); err != nil {
			return nil, fmt.Errorf("aligning %s with remote: %w", branch, err)
		}
		return repo, nil
	}

	parentDir := filepath.Dir(cloneDir)
	if err := os.MkdirAll(parentDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating %s: %w", parentDir, err)
	}
	parent := git.NewRepository(parentDir)

	if _, err := parent.RunWithEnv(ctx, credentialEnv(creds), "clone", creds.URL, filepath.Base(cloneDir)); err != nil {
		e.logger.Warn("cloning backup remote failed, initializing fresh mirror", "error", err)
		if _, err := parent.Run(ctx, "init", "-b", branch, filepath.Base(cloneDir)); err != nil {
			return nil, fmt.Errorf("initializing mirror: %w", err)
		}
		if _, err := repo.Run(ctx, "remote", "add", "origin", creds.URL); err != nil {
			return nil, fmt.Errorf("configuring backup remote: %w", err)
		}
		return repo, nil
	}

	// A clone of an empty repository has an unborn branch; -B lands
	// on the right name either way.
	if _, err := repo.Run(ctx, "checkout", "-B", branch); err != nil {
		return nil, fmt.Errorf("creating branch %s: %w", branch, err)
	}
	return repo, nil
}

func hasCommits(ctx context.Context, repo *git.Repository) bool {
	_, err := repo.Run(ctx, "rev-parse", "--verify", "HEAD")
	return err == nil
}

// identityEnv pins the commit identity without touching any git
// config file.
func identityEnv() []string {
	return []string{
		"GIT_AUTHOR_NAME=" + commitAuthor,
		"GIT_AUTHOR_EMAIL=" + commitEmail,
		"GIT_COMMITTER_NAME=" + commitAuthor,
		"GIT_COMMITTER_EMAIL=" + commitEmail,
	}
}

// credentialEnv hands git an authorization header for one invocation.
// GIT_CONFIG_* keeps the token out of argv, the remote URL, and
// .git/config; GIT_TERMINAL_PROMPT stops git from waiting on a
// prompt when the token is rejected.
func credentialEnv(creds config.RepoCredentials) []string {
	env := []string{"GIT_TERMINAL_PROMPT=0"}
	if creds.Token == "" {
		return env
	}
	basic := base64.StdEncoding.EncodeToString([]byte("x-access-token:" + creds.Token))
	return append(env,
		"GIT_CONFIG_COUNT=1",
		"GIT_CONFIG_KEY_0=http.extraheader",
		"GIT_CONFIG_VALUE_0=Authorization: Basic "+basic,
	)
}

// transferFailure classifies an error as a transfer failure unless it
// already carries a classification.
func transferFailure(err error) error {
	if statesync.Kind(err) != "" {
		return err
	}
	return &statesync.Error{Kind: statesync.FailureTransfer, Err: err}
}
