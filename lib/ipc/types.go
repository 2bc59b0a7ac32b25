// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"time"

	"github.com/openclaw-infra/keeper/lib/gateway"
)

// Control socket actions.
const (
	// ActionStatus asks the daemon for its current view of the world.
	ActionStatus = "status"

	// ActionEnsureNow triggers a supervision cycle ahead of schedule.
	ActionEnsureNow = "ensure-now"

	// ActionSyncNow triggers a store sync ahead of schedule.
	ActionSyncNow = "sync-now"
)

// Request is a CBOR-encoded request to the daemon, sent over the
// control socket in the keeper state directory. The protocol is one
// request per connection: send, read the response, done.
type Request struct {
	// Action is the request type: "status", "ensure-now", or
	// "sync-now".
	Action string `cbor:"action"`
}

// Response is the daemon's reply to a Request.
type Response struct {
	// OK indicates whether the request succeeded.
	OK bool `cbor:"ok"`

	// Error contains the error message if OK is false.
	Error string `cbor:"error,omitempty"`

	// Status is the daemon's self-report, present on "status"
	// responses.
	Status *DaemonStatus `cbor:"status,omitempty"`
}

// DaemonStatus is the daemon's view of itself and the gateway it
// supervises, returned by the "status" action. The outcome fields
// reflect completed cycles; a cycle in flight shows its previous
// outcome until it finishes.
type DaemonStatus struct {
	// PID is the daemon process.
	PID int `cbor:"pid"`

	// StartedAt is when this daemon instance came up.
	StartedAt time.Time `cbor:"started_at"`

	// Gateway is the supervisor's point-in-time inspection, the same
	// report "keeper status" assembles on its own when no daemon is
	// running.
	Gateway *gateway.StatusReport `cbor:"gateway,omitempty"`

	// LastEnsure is the most recent supervision cycle.
	LastEnsure *CycleOutcome `cbor:"last_ensure,omitempty"`

	// LastStoreSync is the most recent durable-store sync.
	LastStoreSync *CycleOutcome `cbor:"last_store_sync,omitempty"`

	// LastRepoSync is the most recent repository sync.
	LastRepoSync *CycleOutcome `cbor:"last_repo_sync,omitempty"`

	// LastSnapshot is the most recent snapshot upload.
	LastSnapshot *CycleOutcome `cbor:"last_snapshot,omitempty"`
}

// CycleOutcome records the terminal state of one scheduled cycle.
// Outcomes survive daemon restarts through the daemon state file, so
// "keeper status" can report the last sync even right after a reboot.
type CycleOutcome struct {
	// At is when the cycle finished.
	At time.Time `cbor:"at"`

	// OK indicates whether the cycle succeeded.
	OK bool `cbor:"ok"`

	// Error is the failure message when OK is false.
	Error string `cbor:"error,omitempty"`

	// Note carries cycle-specific detail, such as the pushed commit
	// hash or the uploaded snapshot name.
	Note string `cbor:"note,omitempty"`
}
