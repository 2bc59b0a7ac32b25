// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/openclaw-infra/keeper/lib/ipc"
	"github.com/openclaw-infra/keeper/lib/testutil"
)

// startTestSocket brings up the control socket and returns a client
// pointed at it.
func startTestSocket(t *testing.T, d *Daemon) ipc.Client {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := d.startControlSocket(ctx); err != nil {
		t.Fatalf("startControlSocket: %v", err)
	}
	t.Cleanup(d.stopControlSocket)

	return ipc.Client{SocketPath: d.cfg.Daemon.SocketPath, Timeout: 5 * time.Second}
}

func TestControlSocketStatus(t *testing.T) {
	d := testDaemon(t)
	d.record(cycleStoreSync, nil, "")
	client := startTestSocket(t, d)

	response, err := client.Call(context.Background(), ipc.Request{Action: ipc.ActionStatus})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !response.OK {
		t.Fatalf("response not OK: %s", response.Error)
	}
	if response.Status == nil {
		t.Fatal("response carries no status")
	}
	if response.Status.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", response.Status.PID, os.Getpid())
	}
	if response.Status.Gateway == nil {
		t.Error("status carries no gateway report")
	}
	if response.Status.LastStoreSync == nil || !response.Status.LastStoreSync.OK {
		t.Errorf("LastStoreSync = %+v, want recorded success", response.Status.LastStoreSync)
	}
	if response.Status.LastRepoSync != nil {
		t.Errorf("LastRepoSync = %+v, want nil", response.Status.LastRepoSync)
	}
}

func TestControlSocketTriggers(t *testing.T) {
	d := testDaemon(t)
	client := startTestSocket(t, d)

	for _, tc := range []struct {
		action string
		wake   chan struct{}
	}{
		{ipc.ActionEnsureNow, d.ensureNow},
		{ipc.ActionSyncNow, d.syncNow},
	} {
		response, err := client.Call(context.Background(), ipc.Request{Action: tc.action})
		if err != nil {
			t.Fatalf("Call(%s): %v", tc.action, err)
		}
		if !response.OK {
			t.Fatalf("Call(%s) not OK: %s", tc.action, response.Error)
		}
		testutil.RequireReceive(t, tc.wake, 2*time.Second, "%s did not wake its loop", tc.action)
	}
}

func TestControlSocketUnknownAction(t *testing.T) {
	d := testDaemon(t)
	client := startTestSocket(t, d)

	response, err := client.Call(context.Background(), ipc.Request{Action: "reboot"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if response.OK {
		t.Fatal("unknown action reported OK")
	}
	if !strings.Contains(response.Error, "reboot") {
		t.Errorf("Error = %q, want it to name the action", response.Error)
	}
}

func TestControlSocketReplacesStaleFile(t *testing.T) {
	d := testDaemon(t)

	// A leftover socket file from a crashed daemon must not block
	// startup.
	if err := os.WriteFile(d.cfg.Daemon.SocketPath, nil, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	client := startTestSocket(t, d)
	if _, err := client.Call(context.Background(), ipc.Request{Action: ipc.ActionStatus}); err != nil {
		t.Fatalf("Call after stale socket replacement: %v", err)
	}
}
