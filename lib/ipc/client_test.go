// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/openclaw-infra/keeper/lib/codec"
)

// serveOne accepts a single connection and handles it with the given
// function, mimicking the daemon's one-request-per-connection loop.
func serveOne(t *testing.T, socketPath string, handle func(conn net.Conn)) {
	t.Helper()
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listening on %s: %v", socketPath, err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}()
}

func TestCallRoundTrip(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "keeperd.sock")
	serveOne(t, socketPath, func(conn net.Conn) {
		var request Request
		if err := codec.NewDecoder(conn).Decode(&request); err != nil {
			t.Errorf("decoding request: %v", err)
			return
		}
		if request.Action != ActionStatus {
			t.Errorf("action = %q, want %q", request.Action, ActionStatus)
		}
		response := Response{
			OK: true,
			Status: &DaemonStatus{
				PID:       4242,
				StartedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
				LastStoreSync: &CycleOutcome{
					At: time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC),
					OK: true,
				},
			},
		}
		if err := codec.NewEncoder(conn).Encode(response); err != nil {
			t.Errorf("encoding response: %v", err)
		}
	})

	client := &Client{SocketPath: socketPath}
	response, err := client.Call(context.Background(), Request{Action: ActionStatus})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !response.OK {
		t.Fatalf("response not OK: %q", response.Error)
	}
	if response.Status == nil {
		t.Fatal("response has no status")
	}
	if response.Status.PID != 4242 {
		t.Errorf("PID = %d, want 4242", response.Status.PID)
	}
	if response.Status.LastStoreSync == nil || !response.Status.LastStoreSync.OK {
		t.Errorf("LastStoreSync = %+v, want successful outcome", response.Status.LastStoreSync)
	}
	if response.Status.LastRepoSync != nil {
		t.Errorf("LastRepoSync = %+v, want nil", response.Status.LastRepoSync)
	}
}

func TestCallReturnsServerError(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "keeperd.sock")
	serveOne(t, socketPath, func(conn net.Conn) {
		var request Request
		if err := codec.NewDecoder(conn).Decode(&request); err != nil {
			t.Errorf("decoding request: %v", err)
			return
		}
		codec.NewEncoder(conn).Encode(Response{OK: false, Error: "cycle already running"})
	})

	client := &Client{SocketPath: socketPath}
	response, err := client.Call(context.Background(), Request{Action: ActionEnsureNow})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if response.OK {
		t.Fatal("expected OK = false")
	}
	if response.Error != "cycle already running" {
		t.Errorf("Error = %q", response.Error)
	}
}

func TestCallNoListener(t *testing.T) {
	client := &Client{SocketPath: filepath.Join(t.TempDir(), "absent.sock")}
	if _, err := client.Call(context.Background(), Request{Action: ActionStatus}); err == nil {
		t.Fatal("expected dial error for missing socket")
	}
}

func TestCallTimesOutOnSilentServer(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "keeperd.sock")
	serveOne(t, socketPath, func(conn net.Conn) {
		// Read the request and go silent; the client deadline must
		// fire rather than hanging the caller.
		var request Request
		codec.NewDecoder(conn).Decode(&request)
		time.Sleep(5 * time.Second)
	})

	client := &Client{SocketPath: socketPath, Timeout: 100 * time.Millisecond}
	start := time.Now()
	_, err := client.Call(context.Background(), Request{Action: ActionStatus})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("call took %v, deadline did not fire", elapsed)
	}
}
