// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption for keeper's credential
// escrow. It wraps filippo.io/age for the one operation keeper needs:
// encrypting the unredacted gateway configuration to the operator's
// escrow recipients before it enters the backup repository.
//
// Decryption is deliberately absent. Unsealing happens on the
// operator's machine with standard age tooling; keeper writes the
// escrow file and never needs the plaintext back, so it never handles
// a private key.
package sealed

import (
	"bytes"
	"fmt"

	"filippo.io/age"
)

// Encrypt encrypts plaintext to one or more recipients specified by
// their age public key strings (age1... format) and returns the
// ciphertext in age's native binary format, ready to write to an
// escrow file. At least one recipient is required.
func Encrypt(plaintext []byte, recipientKeys []string) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}

	return ciphertext.Bytes(), nil
}

// ValidateRecipient checks that a string is a valid age x25519 public
// key. Config validation uses this so a typo in an escrow recipient
// fails at load time rather than mid-backup.
func ValidateRecipient(publicKey string) error {
	if _, err := age.ParseX25519Recipient(publicKey); err != nil {
		return fmt.Errorf("invalid age public key: %w", err)
	}
	return nil
}
