// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package statesync

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKind(t *testing.T) {
	classified := fail(FailureMount, "gcsfuse exited")
	if got := Kind(classified); got != FailureMount {
		t.Errorf("Kind = %q, want %q", got, FailureMount)
	}

	wrapped := fmt.Errorf("sync cycle: %w", classified)
	if got := Kind(wrapped); got != FailureMount {
		t.Errorf("Kind through wrapping = %q, want %q", got, FailureMount)
	}

	if got := Kind(errors.New("plain")); got != "" {
		t.Errorf("Kind of unclassified = %q, want empty", got)
	}
	if got := Kind(nil); got != "" {
		t.Errorf("Kind of nil = %q, want empty", got)
	}
}

func TestErrorChain(t *testing.T) {
	inner := errors.New("disk full")
	err := fail(FailureTransfer, "mirroring workspace: %w", inner)

	if !errors.Is(err, inner) {
		t.Error("classified error does not unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "transfer-failure") {
		t.Errorf("Error() = %q, want kind included", err.Error())
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Error() = %q, want cause included", err.Error())
	}
}
