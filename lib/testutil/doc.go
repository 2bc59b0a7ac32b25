// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for keeper packages.
//
// [SocketPath] places a Unix domain socket in a short-named /tmp
// directory. Socket paths are limited to 108 bytes (sun_path in
// sockaddr_un), and test tempdirs can nest deeply enough to exceed
// that, so control-socket tests use this instead of t.TempDir.
//
// [RequireReceive] and [RequireClosed] encapsulate the
// select-with-timeout safety valve so channel-driven tests cannot
// hang the suite.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
