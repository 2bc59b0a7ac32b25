// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash provides BLAKE3 content hashing for files and
// payloads.
//
// Keeper compares content digests wherever "did this actually change"
// matters: the mirror engine falls back to hashing when size and
// mtime disagree, snapshot manifests record a digest per archive, and
// the credential escrow re-seals only when the sealed plaintext
// differs from the last run.
//
// The API surface is small:
//
//   - [HashFile] -- streams a file through BLAKE3, returning a
//     [Digest] with constant memory usage regardless of file size
//   - [HashBytes] -- digests an in-memory payload
//   - [FormatDigest] -- converts a [Digest] to its canonical
//     hex-encoded string representation, used in manifests and log
//     output
//   - [ParseDigest] -- parses a hex-encoded digest string back to a
//     [Digest], validating length and encoding
//
// This package has no dependencies on other keeper packages.
package binhash
