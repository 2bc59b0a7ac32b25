// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// ReadFromPath reads a secret from a file path, or from stdin if path
// is "-". Regular files must not be group- or world-accessible: keeper
// stores every credential it writes at 0600, and a key file that other
// users can read is refused rather than quietly used. The returned
// buffer is mmap-backed (locked into RAM, excluded from core dumps) and
// must be closed by the caller. Leading and trailing whitespace is
// trimmed before storing. Returns an error if the source is empty after
// trimming.
func ReadFromPath(path string) (*Buffer, error) {
	data, err := readSource(path)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		Zero(data)
		return nil, fmt.Errorf("secret is empty")
	}

	// NewFromBytes copies into mmap-backed memory and zeros trimmed.
	buffer, err := NewFromBytes(trimmed)
	// Zero remaining bytes (whitespace prefix/suffix) not covered by trimmed.
	Zero(data)
	if err != nil {
		return nil, err
	}
	return buffer, nil
}

func readSource(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("stdin is empty")
		}
		return data, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	// Pipes and device nodes (process substitution, /dev/fd) are exempt;
	// the mode bits only mean something for files that persist.
	if info.Mode().IsRegular() {
		if mode := info.Mode().Perm(); mode&0o077 != 0 {
			return nil, fmt.Errorf("secret file %s has mode %04o; refusing anything wider than 0600", path, mode)
		}
	}
	return os.ReadFile(path)
}
