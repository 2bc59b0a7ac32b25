// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/openclaw-infra/keeper/lib/codec"
)

// recordName is the launch record file in the keeper state directory.
const recordName = "gateway-launch.cbor"

// Record captures what the supervisor launched: enough to identify
// the process instance across PID reuse and to answer status queries
// without re-deriving anything. Discovery consults it first and
// re-validates against the live process table; a stale or missing
// record falls back to a table scan and never blocks a cycle.
type Record struct {
	PID         int       `cbor:"pid"`
	StartTime   uint64    `cbor:"start_time"`
	Fingerprint string    `cbor:"fingerprint"`
	Port        int       `cbor:"port"`
	Command     []string  `cbor:"command"`
	LaunchedAt  time.Time `cbor:"launched_at"`
}

// RecordPath returns where the launch record lives for a state
// directory.
func RecordPath(stateDir string) string {
	return filepath.Join(stateDir, recordName)
}

// WriteRecord atomically persists a launch record. Uses temp file +
// rename so readers never see a partial write.
func WriteRecord(stateDir string, record Record) error {
	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling launch record: %w", err)
	}

	recordPath := RecordPath(stateDir)
	temporaryPath := recordPath + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary launch record: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary launch record: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary launch record: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary launch record: %w", err)
	}
	if err := os.Rename(temporaryPath, recordPath); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming launch record into place: %w", err)
	}
	return nil
}

// ReadRecord loads the launch record. A missing record wraps
// os.ErrNotExist.
func ReadRecord(stateDir string) (Record, error) {
	data, err := os.ReadFile(RecordPath(stateDir))
	if err != nil {
		return Record{}, fmt.Errorf("reading launch record: %w", err)
	}
	var record Record
	if err := codec.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("parsing launch record: %w", err)
	}
	return record, nil
}

// ClearRecord removes the launch record. Idempotent.
func ClearRecord(stateDir string) {
	os.Remove(RecordPath(stateDir))
}
