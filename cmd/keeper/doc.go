// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

// Keeper is the CLI for supervising an OpenClaw gateway and keeping
// its state durable. It provides subcommands for supervision (ensure,
// status), state continuity (restore, backup store, backup repo,
// backup snapshot), and credential inspection (fingerprint).
//
// Exit codes:
//
//	0  success
//	1  unclassified failure
//	2  required configuration missing
//	3  durable store mount failure
//	4  local state failed the sync integrity gate
//	5  transfer failure (remote marker still describes the last
//	   complete sync)
//	6  gateway launch failure
//	7  gateway launched but never became reachable
package main
