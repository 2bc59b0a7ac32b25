// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

// Keeper-daemon is the long-running companion to the keeper CLI. It
// runs supervision cycles on a short interval, syncs local state to
// the durable store on a longer one, pushes the backup repository less
// often still, and optionally uploads scheduled snapshots. A file
// watcher over the config root and the workspace turns bursts of local
// writes into an early store sync once they settle.
//
// A CBOR control socket in the keeper state directory answers
// "status" and accepts "ensure-now" and "sync-now" triggers; "keeper
// status" prefers it over direct inspection. Cycle outcomes persist in
// a state file, so the last sync remains reportable across daemon
// restarts.
package main
