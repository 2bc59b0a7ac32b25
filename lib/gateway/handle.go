// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"io"
	"os"

	"github.com/openclaw-infra/keeper/lib/proctable"
)

// logTailBytes bounds how much of the gateway log a readiness error
// embeds.
const logTailBytes = 4096

// Handle references one gateway process instance. The process itself
// is owned by the operating system's process table; the handle is a
// snapshot used for probing, killing, and reporting, never the
// authority on liveness. Handles travel inside StatusReport over the
// daemon control socket, hence the wire tags.
type Handle struct {
	PID       int              `cbor:"pid"`
	StartTime uint64           `cbor:"start_time"`
	Command   []string         `cbor:"command"`
	Port      int              `cbor:"port"`
	Status    proctable.Status `cbor:"status"`
}

// Alive re-checks the process table for this handle's PID.
func (h *Handle) Alive() bool {
	return proctable.Alive(h.PID)
}

// logTail returns up to maxBytes from the end of the gateway log.
// Log capture is diagnostic best-effort: any failure yields an empty
// string rather than an error, since a missing log must never mask
// the readiness failure it was meant to explain.
func logTail(path string, maxBytes int64) string {
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return ""
	}
	if size := info.Size(); size > maxBytes {
		if _, err := file.Seek(size-maxBytes, io.SeekStart); err != nil {
			return ""
		}
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return ""
	}
	return string(data)
}
