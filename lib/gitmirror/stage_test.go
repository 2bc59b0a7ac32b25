// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package gitmirror

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStageExcludesSensitiveAndTransient(t *testing.T) {
	f := newMirrorFixture(t)
	workspace := f.cfg.Gateway.WorkspaceRoot
	mustWrite(t, filepath.Join(workspace, "id_rsa"), "PRIVATE\n")
	mustWrite(t, filepath.Join(workspace, "deploy.pem"), "PRIVATE\n")
	mustWrite(t, filepath.Join(workspace, ".env"), "API_KEY=x\n")
	mustWrite(t, filepath.Join(workspace, "debug.log"), "noise\n")
	mustWrite(t, filepath.Join(workspace, "session.lock"), "1\n")
	mustWrite(t, filepath.Join(workspace, "keep.md"), "content\n")

	dir := t.TempDir()
	if err := f.engine.stage(context.Background(), dir); err != nil {
		t.Fatalf("stage: %v", err)
	}

	for _, name := range []string{"id_rsa", "deploy.pem", ".env", "debug.log", "session.lock"} {
		if _, err := os.Stat(filepath.Join(dir, "workspace", name)); !os.IsNotExist(err) {
			t.Errorf("staged tree contains %s", name)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "workspace", "keep.md")); err != nil {
		t.Errorf("ordinary workspace file not staged: %v", err)
	}
}

func TestStageGitignoreCoversSkipPatterns(t *testing.T) {
	f := newMirrorFixture(t)
	dir := t.TempDir()
	if err := f.engine.stage(context.Background(), dir); err != nil {
		t.Fatalf("stage: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	content := string(data)
	for _, pattern := range skipPatterns {
		if !strings.Contains(content, pattern+"\n") {
			t.Errorf(".gitignore missing pattern %q", pattern)
		}
	}
	if !strings.Contains(content, "credentials/\n") {
		t.Error(".gitignore missing credentials/ entry")
	}
	if strings.Contains(content, "*.age") {
		t.Error(".gitignore must not ignore the escrow file")
	}
}

func TestStagePreservesExistingReadme(t *testing.T) {
	f := newMirrorFixture(t)
	dir := t.TempDir()
	custom := "# Hand-written notes\n"
	mustWrite(t, filepath.Join(dir, readmeFile), custom)

	if err := f.engine.stage(context.Background(), dir); err != nil {
		t.Fatalf("stage: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, readmeFile))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != custom {
		t.Errorf("README overwritten: %q", data)
	}
}

func TestStageSkipsUnparsableConfig(t *testing.T) {
	f := newMirrorFixture(t)
	mustWrite(t, filepath.Join(f.cfg.Gateway.ConfigRoot, "broken.json"), "{not json at all")

	dir := t.TempDir()
	if err := f.engine.stage(context.Background(), dir); err != nil {
		t.Fatalf("stage: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "config", "broken.json")); !os.IsNotExist(err) {
		t.Error("unparsable config staged into the repository")
	}
	if _, err := os.Stat(filepath.Join(dir, "config", "openclaw.json")); err != nil {
		t.Errorf("valid config missing from staged tree: %v", err)
	}
}

func TestStageRedactsNonPrimaryConfigFiles(t *testing.T) {
	f := newMirrorFixture(t)
	mustWrite(t, filepath.Join(f.cfg.Gateway.ConfigRoot, "agents", "main.json"),
		`{"model":"claw-1","apiKey":"sk-agent-secret"}`)

	dir := t.TempDir()
	if err := f.engine.stage(context.Background(), dir); err != nil {
		t.Fatalf("stage: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "config", "agents", "main.json"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(data), "sk-agent-secret") {
		t.Error("nested config staged with its secret intact")
	}
}

func TestStageEscrowRequiresConfig(t *testing.T) {
	f := newMirrorFixture(t)
	f.cfg.Repo.EscrowRecipients = []string{"age1qyqszqgpqyqszqgpqyqszqgpqyqszqgpqyqszqgpqyqszqgpqyqs3290gq"}
	if err := os.Remove(filepath.Join(f.cfg.Gateway.ConfigRoot, "openclaw.json")); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if err := f.engine.stage(context.Background(), t.TempDir()); err == nil {
		t.Fatal("stage succeeded with escrow configured but no config file")
	}
}
