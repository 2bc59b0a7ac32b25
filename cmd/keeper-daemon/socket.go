// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/openclaw-infra/keeper/lib/codec"
	"github.com/openclaw-infra/keeper/lib/config"
	"github.com/openclaw-infra/keeper/lib/ipc"
)

// connectionDeadline bounds one control socket exchange. The protocol
// is a single small request and response; anything slower is a stuck
// peer.
const connectionDeadline = 10 * time.Second

// startControlSocket creates the control Unix socket and starts
// accepting connections in a goroutine.
func (d *Daemon) startControlSocket(ctx context.Context) error {
	socketPath := d.cfg.Daemon.SocketPath
	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return fmt.Errorf("creating control socket directory: %w", err)
	}

	// Remove a stale socket from a previous run.
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing existing control socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("creating control socket at %s: %w", socketPath, err)
	}
	d.listener = listener

	if err := os.Chmod(socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("setting control socket permissions: %w", err)
	}

	d.logger.Info("control socket listening", "socket", socketPath)

	go d.acceptConnections(ctx)
	return nil
}

// stopControlSocket closes the control socket and removes the file.
func (d *Daemon) stopControlSocket() {
	if d.listener != nil {
		d.listener.Close()
		os.Remove(d.cfg.Daemon.SocketPath)
	}
}

// acceptConnections runs the accept loop. Each connection carries one
// request and is handled in its own goroutine.
func (d *Daemon) acceptConnections(ctx context.Context) {
	for {
		connection, err := d.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				if !errors.Is(err, net.ErrClosed) {
					d.logger.Error("accepting control connection", "error", err)
				}
			}
			return
		}
		go d.handleConnection(connection)
	}
}

// handleConnection reads one request, dispatches on the action, and
// writes one response.
func (d *Daemon) handleConnection(connection net.Conn) {
	defer connection.Close()
	connection.SetDeadline(time.Now().Add(connectionDeadline))

	var request ipc.Request
	if err := codec.NewDecoder(connection).Decode(&request); err != nil {
		d.logger.Debug("undecodable control request", "error", err)
		return
	}

	var response ipc.Response
	switch request.Action {
	case ipc.ActionStatus:
		response = ipc.Response{OK: true, Status: d.statusReport()}
	case ipc.ActionEnsureNow:
		d.requestEnsure()
		response = ipc.Response{OK: true}
	case ipc.ActionSyncNow:
		d.requestStoreSync()
		response = ipc.Response{OK: true}
	default:
		response = ipc.Response{
			OK:    false,
			Error: fmt.Sprintf("unknown action %q", request.Action),
		}
	}

	if err := codec.NewEncoder(connection).Encode(response); err != nil {
		d.logger.Debug("writing control response", "error", err)
	}
}

// statusReport assembles the daemon's self-report: a fresh supervisor
// inspection plus the recorded cycle outcomes.
func (d *Daemon) statusReport() *ipc.DaemonStatus {
	report := d.supervisor.Status(config.EnvironSnapshot(os.Environ()))

	d.mu.Lock()
	defer d.mu.Unlock()
	return &ipc.DaemonStatus{
		PID:           os.Getpid(),
		StartedAt:     d.startedAt,
		Gateway:       &report,
		LastEnsure:    d.state.LastEnsure,
		LastStoreSync: d.state.LastStoreSync,
		LastRepoSync:  d.state.LastRepoSync,
		LastSnapshot:  d.state.LastSnapshot,
	}
}
