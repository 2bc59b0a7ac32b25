// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package statesync

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/openclaw-infra/keeper/lib/binhash"
)

// TransientPatterns name files never worth carrying across
// environments: locks, logs, editor droppings, partial downloads.
// They are invisible to the mirror in both directions, so a restore
// never deletes a live lock file either. The repository and snapshot
// backends skip the same names.
var TransientPatterns = []string{
	"*.lock",
	"*.log",
	"*.tmp",
	"*.swp",
	"*.part",
	".DS_Store",
}

// mirrorMode selects what happens to destination files that have no
// source counterpart.
type mirrorMode int

const (
	// mirrorFull propagates deletions: the destination ends as an
	// exact copy of the source.
	mirrorFull mirrorMode = iota

	// mirrorAdditive preserves destination-only files: the sides
	// merge, with the source winning on conflicting paths.
	mirrorAdditive
)

// mirrorStats counts what one mirror pass did.
type mirrorStats struct {
	copied    int
	deleted   int
	unchanged int
}

// mirrorTree copies source onto dest. A missing source tree is an
// empty one, not an error: in full mode the destination is emptied to
// match. Symlinks, sockets, and other non-regular files are skipped —
// the store cannot represent them.
func mirrorTree(ctx context.Context, source, dest string, mode mirrorMode, exclude []string) (mirrorStats, error) {
	var stats mirrorStats

	copyErr := filepath.WalkDir(source, func(path string, entry fs.DirEntry, err error) error {
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
			return os.MkdirAll(dest, 0o755)
		}
		if excludedPath(rel, exclude) {
			if entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		destPath := filepath.Join(dest, rel)
		if entry.IsDir() {
			return os.MkdirAll(destPath, 0o755)
		}
		if !entry.Type().IsRegular() {
			return nil
		}

		changed, err := fileChanged(path, destPath)
		if err != nil {
			return err
		}
		if !changed {
			stats.unchanged++
			return nil
		}
		if err := copyFile(path, destPath); err != nil {
			return err
		}
		stats.copied++
		return nil
	})
	if copyErr != nil {
		return stats, copyErr
	}
	if mode == mirrorAdditive {
		return stats, nil
	}

	deleteErr := filepath.WalkDir(dest, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			// The root may not exist; children can vanish when their
			// parent was just removed.
			if os.IsNotExist(err) {
				if path == dest {
					return fs.SkipAll
				}
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(dest, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if excludedPath(rel, exclude) {
			if entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if _, err := os.Lstat(filepath.Join(source, rel)); err == nil {
			return nil
		} else if !os.IsNotExist(err) {
			return err
		}
		if entry.IsDir() {
			if err := os.RemoveAll(path); err != nil {
				return err
			}
			stats.deleted++
			return fs.SkipDir
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		stats.deleted++
		return nil
	})
	return stats, deleteErr
}

// excludedPath reports whether a mirror-relative path is invisible:
// under an excluded prefix or matching a transient name pattern.
func excludedPath(rel string, exclude []string) bool {
	for _, prefix := range exclude {
		if rel == prefix || strings.HasPrefix(rel, prefix+string(filepath.Separator)) {
			return true
		}
	}
	base := filepath.Base(rel)
	for _, pattern := range TransientPatterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

// fileChanged decides whether destPath needs a fresh copy. Size
// first, then modification time, then content: equal sizes with
// differing times happen constantly on FUSE mounts that round
// timestamps, so the verdict there comes from a BLAKE3 comparison
// rather than a blind copy.
func fileChanged(sourcePath, destPath string) (bool, error) {
	sourceInfo, err := os.Stat(sourcePath)
	if err != nil {
		return false, fmt.Errorf("stating %s: %w", sourcePath, err)
	}
	destInfo, err := os.Stat(destPath)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("stating %s: %w", destPath, err)
	}
	if sourceInfo.Size() != destInfo.Size() {
		return true, nil
	}
	if sourceInfo.ModTime().Equal(destInfo.ModTime()) {
		return false, nil
	}

	sourceDigest, err := binhash.HashFile(sourcePath)
	if err != nil {
		return false, err
	}
	destDigest, err := binhash.HashFile(destPath)
	if err != nil {
		return false, err
	}
	if sourceDigest != destDigest {
		return true, nil
	}
	// Same content, drifted time: repair the time so the next pass
	// skips the file without hashing. Best-effort, some FUSE mounts
	// reject utimes.
	_ = os.Chtimes(destPath, sourceInfo.ModTime(), sourceInfo.ModTime())
	return false, nil
}

// copyFile replaces destPath with sourcePath's content, permissions,
// and modification time. No temp-and-rename here: a crash mid-copy is
// repaired by the next pass, and the sync marker that certifies
// completeness is only written after every copy finished.
func copyFile(sourcePath, destPath string) error {
	sourceFile, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", sourcePath, err)
	}
	defer sourceFile.Close()

	info, err := sourceFile.Stat()
	if err != nil {
		return fmt.Errorf("stating %s: %w", sourcePath, err)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(destPath), err)
	}

	destFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", destPath, err)
	}
	if _, err := io.Copy(destFile, sourceFile); err != nil {
		destFile.Close()
		return fmt.Errorf("copying %s: %w", sourcePath, err)
	}
	if err := destFile.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", destPath, err)
	}

	// O_CREATE permissions only apply to new files; align existing
	// ones too so restored skills stay executable.
	if err := os.Chmod(destPath, info.Mode().Perm()); err != nil {
		return fmt.Errorf("setting mode on %s: %w", destPath, err)
	}
	_ = os.Chtimes(destPath, info.ModTime(), info.ModTime())
	return nil
}
