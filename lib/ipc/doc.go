// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

// Package ipc defines the CBOR-encoded message types for the
// keeper-daemon control socket. Both cmd/keeper-daemon and cmd/keeper
// import this package so the wire types are defined once rather than
// mirrored.
package ipc
