// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"net"
	"strconv"
	"time"

	"github.com/openclaw-infra/keeper/lib/fingerprint"
)

// statusProbeTimeout bounds the reachability check in Status. Status
// reports, it never waits: one probe, not a readiness window.
const statusProbeTimeout = time.Second

// StatusReport is a point-in-time view of the supervised gateway,
// assembled for operators. Every field is best-effort; a report is
// produced even when the state directory is empty or the gateway is
// down.
type StatusReport struct {
	// Gateway is the live process, nil when none matches.
	Gateway *Handle `cbor:"gateway,omitempty"`

	// Reachable reports whether the gateway port answered a probe.
	Reachable bool `cbor:"reachable"`

	// MarkerFingerprint is the stored launch fingerprint, empty when
	// the marker is missing or unreadable.
	MarkerFingerprint string `cbor:"marker_fingerprint,omitempty"`

	// CurrentFingerprint is computed from the caller's environment
	// snapshot. When it differs from MarkerFingerprint the next
	// ensure cycle will replace the gateway.
	CurrentFingerprint string `cbor:"current_fingerprint,omitempty"`

	// Record is the last launch record, nil when missing.
	Record *Record `cbor:"record,omitempty"`

	// StoreMounted reports whether the durable store is attached.
	StoreMounted bool `cbor:"store_mounted"`
}

// FingerprintMatch reports whether a running gateway was launched
// with the current credential set.
func (r *StatusReport) FingerprintMatch() bool {
	return r.MarkerFingerprint != "" && r.MarkerFingerprint == r.CurrentFingerprint
}

// Status inspects the gateway without changing anything. Unlike
// EnsureRunning it takes no locks and has no side effects, so it is
// safe to call while a supervision cycle runs elsewhere.
func (s *Supervisor) Status(snapshot map[string]string) StatusReport {
	report := StatusReport{
		CurrentFingerprint: fingerprint.Compute(snapshot),
		StoreMounted:       s.store.Mounted(),
	}
	if markerFingerprint, err := fingerprint.ReadMarker(s.cfg.StateDir); err == nil {
		report.MarkerFingerprint = markerFingerprint
	}
	if record, err := ReadRecord(s.cfg.StateDir); err == nil {
		report.Record = &record
	}
	if handle, ok := s.findExisting(); ok {
		report.Gateway = handle
		address := net.JoinHostPort("127.0.0.1", strconv.Itoa(s.cfg.Gateway.Port))
		report.Reachable = s.probe(address, statusProbeTimeout) == nil
	}
	return report
}
