// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/openclaw-infra/keeper/lib/secret"
)

// KeySize is the master key length in bytes.
const KeySize = 32

// hkdfInfo anchors key derivation to this format. Each object gets
// its own key: HKDF-SHA256(master, info=hkdfInfo||objectName), so a
// leaked per-object key exposes only that object and the object name
// cannot be swapped without breaking decryption.
const hkdfInfo = "openclaw.keeper.snapshot.v1"

// LoadKey reads the master key from path (or stdin for "-"). The file
// holds 64 hex characters encoding a KeySize-byte key.
func LoadKey(path string) (*secret.Buffer, error) {
	encoded, err := secret.ReadFromPath(path)
	if err != nil {
		return nil, err
	}
	defer encoded.Close()

	if encoded.Len() != hex.EncodedLen(KeySize) {
		return nil, fmt.Errorf("snapshot key must be %d hex characters, got %d", hex.EncodedLen(KeySize), encoded.Len())
	}
	raw := make([]byte, KeySize)
	if _, err := hex.Decode(raw, encoded.Bytes()); err != nil {
		secret.Zero(raw)
		return nil, fmt.Errorf("decoding snapshot key: %w", err)
	}
	return secret.NewFromBytes(raw)
}

// deriveObjectKey derives the per-object key for name from the master
// key.
func deriveObjectKey(master *secret.Buffer, name string) (*secret.Buffer, error) {
	reader := hkdf.New(sha256.New, master.Bytes(), nil, []byte(hkdfInfo+name))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		secret.Zero(key)
		return nil, fmt.Errorf("deriving object key: %w", err)
	}
	return secret.NewFromBytes(key)
}

// sealPayload encrypts plaintext with XChaCha20-Poly1305 under the
// per-object key for name. The envelope header and the object name are
// authenticated as associated data, so neither can change without the
// payload failing to open. Layout: 24-byte nonce, then ciphertext and
// tag.
func sealPayload(master *secret.Buffer, name string, header, plaintext []byte) ([]byte, error) {
	key, err := deriveObjectKey(master, name)
	if err != nil {
		return nil, err
	}
	defer key.Close()

	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("initializing cipher: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	box := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	box = append(box, nonce...)
	return aead.Seal(box, nonce, plaintext, associatedData(header, name)), nil
}

// openPayload reverses sealPayload. Authentication failure means the
// wrong key, a renamed object, or corruption; the three are not
// distinguishable.
func openPayload(master *secret.Buffer, name string, header, box []byte) ([]byte, error) {
	key, err := deriveObjectKey(master, name)
	if err != nil {
		return nil, err
	}
	defer key.Close()

	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("initializing cipher: %w", err)
	}

	if len(box) < chacha20poly1305.NonceSizeX+aead.Overhead() {
		return nil, fmt.Errorf("encrypted payload truncated: %d bytes", len(box))
	}
	nonce, ciphertext := box[:chacha20poly1305.NonceSizeX], box[chacha20poly1305.NonceSizeX:]

	plaintext, err := aead.Open(nil, nonce, ciphertext, associatedData(header, name))
	if err != nil {
		return nil, fmt.Errorf("opening snapshot payload: %w", err)
	}
	return plaintext, nil
}

func associatedData(header []byte, name string) []byte {
	aad := make([]byte, 0, len(header)+len(name))
	aad = append(aad, header...)
	return append(aad, name...)
}
