// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// DigestSize is the length of a digest in bytes.
const DigestSize = 32

// Digest is a BLAKE3-256 content digest.
type Digest [DigestSize]byte

// HashFile computes the digest of the file at path. The file is
// streamed through the hash function (via io.Copy) to keep memory
// usage constant regardless of file size.
func HashFile(path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	return sumOf(hasher), nil
}

// HashBytes computes the digest of an in-memory payload.
func HashBytes(data []byte) Digest {
	hasher := blake3.New()
	hasher.Write(data)
	return sumOf(hasher)
}

func sumOf(hasher *blake3.Hasher) Digest {
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// NewHasher returns a streaming hasher for callers that already read
// the data once (archive packing, uploads) and want the digest from
// the same pass instead of re-reading via HashFile.
func NewHasher() hash.Hash {
	return blake3.New()
}

// Sum extracts the digest accumulated by a NewHasher hasher.
func Sum(hasher hash.Hash) Digest {
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// FormatDigest returns the hex-encoded string representation of a
// digest. This is the canonical format used in snapshot manifests and
// log output.
func FormatDigest(digest Digest) string {
	return hex.EncodeToString(digest[:])
}

// ParseDigest parses a hex-encoded digest string. Returns an error if
// the string is not a valid hex encoding of DigestSize bytes.
func ParseDigest(hexString string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return digest, fmt.Errorf("parsing hash digest: %w", err)
	}
	if len(decoded) != DigestSize {
		return digest, fmt.Errorf("hash digest is %d bytes, want %d", len(decoded), DigestSize)
	}
	copy(digest[:], decoded)
	return digest, nil
}
