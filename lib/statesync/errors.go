// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package statesync

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a sync or restore could not complete.
// The kind decides what an operator does next: fix configuration,
// investigate the mount, repair local state, or retry the transfer.
type FailureKind string

const (
	// FailureConfigurationMissing means required credentials or
	// settings are absent. Not retryable without operator action.
	FailureConfigurationMissing FailureKind = "configuration-missing"

	// FailureMount means the durable store could not be attached.
	FailureMount FailureKind = "mount-failure"

	// FailureSyncIntegrity means local state failed the pre-transfer
	// integrity gate and the remote copy was left untouched.
	FailureSyncIntegrity FailureKind = "sync-integrity-failure"

	// FailureTransfer means a mirror or marker operation failed
	// partway. The remote marker still describes the last complete
	// sync.
	FailureTransfer FailureKind = "transfer-failure"
)

// Error carries a failure classification with its cause.
type Error struct {
	Kind FailureKind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Kind extracts the classification from an error chain, or "" when
// the error carries none.
func Kind(err error) FailureKind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return ""
}

// fail builds a classified error in one line.
func fail(kind FailureKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}
