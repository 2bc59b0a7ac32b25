// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package gitmirror

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openclaw-infra/keeper/lib/binhash"
	"github.com/openclaw-infra/keeper/lib/clawfile"
	"github.com/openclaw-infra/keeper/lib/sealed"
	"github.com/openclaw-infra/keeper/lib/statesync"
)

const (
	timestampFile = "BACKUP_TIMESTAMP.txt"
	readmeFile    = "README.md"
	escrowFile    = "credentials.age"
)

// sensitivePatterns are key-shaped names excluded from the repository
// outright rather than redacted.
var sensitivePatterns = []string{
	"*.pem", "*.key", "*.p12", "*.pfx", "*.der",
	".env", "*.env",
	"id_rsa", "id_rsa.*", "id_ed25519", "id_ed25519.*",
}

// skipPatterns are names never staged into the repository: the
// mirror's transient noise plus everything key-shaped.
var skipPatterns = append(append([]string{}, statesync.TransientPatterns...), sensitivePatterns...)

// stage rebuilds the worktree's content directories from local state.
// Each subset directory is cleared and recopied so deletions
// propagate through the subsequent add --all.
func (e *Engine) stage(ctx context.Context, dir string) error {
	// The escrow file lives under config/, which is about to be
	// cleared; keep the old ciphertext around for reuse.
	var previousEscrow []byte
	if len(e.cfg.Repo.EscrowRecipients) > 0 {
		previousEscrow, _ = os.ReadFile(filepath.Join(dir, "config", escrowFile))
	}

	subsets := []struct {
		name    string
		source  string
		exclude []string
		redact  bool
	}{
		{name: "workspace", source: e.cfg.Gateway.WorkspaceRoot},
		{name: "config", source: e.cfg.Gateway.ConfigRoot, exclude: e.configExcludes(), redact: true},
	}

	for _, subset := range subsets {
		destination := filepath.Join(dir, subset.name)
		if err := os.RemoveAll(destination); err != nil {
			return fmt.Errorf("clearing %s: %w", destination, err)
		}
		if err := e.copySubset(ctx, subset.source, destination, subset.exclude, subset.redact); err != nil {
			return fmt.Errorf("staging %s: %w", subset.name, err)
		}
	}

	if len(e.cfg.Repo.EscrowRecipients) > 0 {
		if err := e.writeEscrow(dir, previousEscrow); err != nil {
			return fmt.Errorf("writing credential escrow: %w", err)
		}
	}

	timestamp := e.clk.Now().UTC().Format(time.RFC3339)
	if err := os.WriteFile(filepath.Join(dir, timestampFile), []byte(timestamp+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing backup timestamp: %w", err)
	}
	if err := writeGitignore(dir); err != nil {
		return err
	}
	return writeReadmeIfAbsent(dir)
}

// configExcludes lists config-root paths that stay out of the
// repository: raw credentials, installed skills (restorable from
// their sources), and the sync marker.
func (e *Engine) configExcludes() []string {
	excludes := []string{"credentials", statesync.SyncMarkerName}
	if rel, ok := e.cfg.Gateway.SkillsWithinConfig(); ok {
		excludes = append(excludes, rel)
	}
	return excludes
}

func (e *Engine) copySubset(ctx context.Context, source, destination string, exclude []string, redact bool) error {
	return filepath.WalkDir(source, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == source && os.IsNotExist(err) {
				return fs.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return os.MkdirAll(destination, 0o755)
		}
		if stagedExcluded(rel, exclude) {
			if entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		target := filepath.Join(destination, rel)
		if entry.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		if redact && strings.EqualFold(filepath.Ext(rel), ".json") {
			return e.redactInto(path, target)
		}
		return copyStaged(path, target)
	})
}

// stagedExcluded reports whether a source-relative path stays out of
// the staged tree, by exclude prefix or by skip pattern.
func stagedExcluded(rel string, exclude []string) bool {
	for _, prefix := range exclude {
		if rel == prefix || strings.HasPrefix(rel, prefix+string(filepath.Separator)) {
			return true
		}
	}
	base := filepath.Base(rel)
	for _, pattern := range skipPatterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// redactInto writes a redacted copy of a JSON config file. A file
// that does not parse cannot be proven secret-free, so it is left out
// rather than published raw.
func (e *Engine) redactInto(sourcePath, targetPath string) error {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", sourcePath, err)
	}
	redacted, err := clawfile.RedactFile(data)
	if err != nil {
		e.logger.Warn("skipping unparsable config file", "path", sourcePath, "error", err)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(targetPath), err)
	}
	if err := os.WriteFile(targetPath, redacted, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", targetPath, err)
	}
	return nil
}

func copyStaged(sourcePath, targetPath string) error {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return fmt.Errorf("stating %s: %w", sourcePath, err)
	}
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(targetPath), err)
	}
	source, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", sourcePath, err)
	}
	defer source.Close()
	target, err := os.OpenFile(targetPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", targetPath, err)
	}
	if _, err := io.Copy(target, source); err != nil {
		target.Close()
		return fmt.Errorf("copying %s: %w", sourcePath, err)
	}
	return target.Close()
}

// writeEscrow seals the unredacted gateway config to the configured
// age recipients. A repository clone plus one operator-held identity
// can then rebuild a working gateway without the durable store.
//
// age output is randomized, so re-encrypting an unchanged config
// would manufacture a commit on every sync. A digest of the last
// sealed plaintext and recipient set is kept in the state directory;
// when it matches, the previous ciphertext is reused byte for byte.
func (e *Engine) writeEscrow(dir string, previous []byte) error {
	configPath, err := clawfile.Locate(e.cfg.Gateway.ConfigRoot)
	if err != nil {
		return fmt.Errorf("locating gateway config: %w", err)
	}
	plaintext, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", configPath, err)
	}

	escrowDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(escrowDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", escrowDir, err)
	}
	escrowPath := filepath.Join(escrowDir, escrowFile)

	sum := escrowSum(plaintext, e.cfg.Repo.EscrowRecipients)
	sumPath := filepath.Join(e.cfg.StateDir, "escrow.sum")
	if len(previous) > 0 {
		if stored, err := os.ReadFile(sumPath); err == nil && string(stored) == sum {
			return os.WriteFile(escrowPath, previous, 0o644)
		}
	}

	encrypted, err := sealed.Encrypt(plaintext, e.cfg.Repo.EscrowRecipients)
	if err != nil {
		return err
	}
	if err := os.WriteFile(escrowPath, encrypted, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", escrowPath, err)
	}

	// Losing the sum costs one redundant commit next sync, nothing
	// worse.
	if err := os.MkdirAll(e.cfg.StateDir, 0o700); err == nil {
		if err := os.WriteFile(sumPath, []byte(sum), 0o600); err != nil {
			e.logger.Warn("recording escrow digest", "error", err)
		}
	}
	return nil
}

// escrowSum fingerprints what a seal would contain: the plaintext and
// the recipient set. The digest stays in the private state directory
// and never enters the repository.
func escrowSum(plaintext []byte, recipients []string) string {
	payload := append([]byte(nil), plaintext...)
	payload = append(payload, 0)
	payload = append(payload, []byte(strings.Join(recipients, "\n"))...)
	return binhash.FormatDigest(binhash.HashBytes(payload))
}

// writeGitignore mirrors skipPatterns into the repository so files
// that land in the clone by hand stay out of history too. The escrow
// file is deliberately not ignored.
func writeGitignore(dir string) error {
	var b strings.Builder
	b.WriteString("# Managed by keeper; do not edit.\n")
	for _, pattern := range skipPatterns {
		b.WriteString(pattern)
		b.WriteByte('\n')
	}
	b.WriteString("credentials/\n")
	return os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(b.String()), 0o644)
}

func writeReadmeIfAbsent(dir string) error {
	path := filepath.Join(dir, readmeFile)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking %s: %w", path, err)
	}
	content := `# OpenClaw Gateway Backup

Automated mirror of an OpenClaw gateway's workspace and configuration,
maintained by keeper. Credential-shaped values in configuration files
are replaced with ` + clawfile.RedactionToken + `. When escrow
recipients are configured, the complete configuration is sealed in
config/` + escrowFile + ` and readable with an operator-held age
identity:

    age --decrypt -i key.txt config/` + escrowFile + `

` + timestampFile + ` records the instant of the last successful sync.
`
	return os.WriteFile(path, []byte(content), 0o644)
}
