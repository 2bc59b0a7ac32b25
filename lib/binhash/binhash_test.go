// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zeebo/blake3"
)

func writeFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestHashFile(t *testing.T) {
	// Larger than the copy buffer, so the streaming path is exercised.
	large := make([]byte, 256*1024)
	for i := range large {
		large[i] = byte(i % 251)
	}

	tests := []struct {
		name    string
		content []byte
	}{
		{"plain", []byte("hello, keeper")},
		{"empty", nil},
		{"large", large},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := HashFile(writeFile(t, test.content))
			if err != nil {
				t.Fatalf("HashFile: %v", err)
			}
			if want := Digest(blake3.Sum256(test.content)); got != want {
				t.Errorf("HashFile = %x, want %x", got, want)
			}
		})
	}
}

func TestHashFileNonexistent(t *testing.T) {
	if _, err := HashFile(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("HashFile on a missing file should fail")
	}
}

func TestHashBytesMatchesHashFile(t *testing.T) {
	content := []byte("same content, two entry points")

	fromFile, err := HashFile(writeFile(t, content))
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if fromBytes := HashBytes(content); fromBytes != fromFile {
		t.Errorf("HashBytes = %x, HashFile = %x", fromBytes, fromFile)
	}
}

func TestDistinctContentDistinctDigests(t *testing.T) {
	first, err := HashFile(writeFile(t, []byte("content A")))
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	second, err := HashFile(writeFile(t, []byte("content B")))
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if first == second {
		t.Error("different content produced the same digest")
	}
}

func TestFormatDigest(t *testing.T) {
	formatted := FormatDigest(HashBytes([]byte("test")))
	if length := len(formatted); length != 64 {
		t.Errorf("FormatDigest length = %d, want 64", length)
	}
}

func TestParseDigestRoundTrip(t *testing.T) {
	original := HashBytes([]byte("round-trip"))

	parsed, err := ParseDigest(FormatDigest(original))
	if err != nil {
		t.Fatalf("ParseDigest: %v", err)
	}
	if parsed != original {
		t.Errorf("ParseDigest round-trip: %x != %x", parsed, original)
	}
}

func TestParseDigestInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not hex", "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"},
		{"too short", "abcd"},
		{"too long", "abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789aa"},
		{"empty", ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := ParseDigest(test.input); err == nil {
				t.Errorf("ParseDigest(%q) should fail", test.input)
			}
		})
	}
}
