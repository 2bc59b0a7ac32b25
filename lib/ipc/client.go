// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/openclaw-infra/keeper/lib/codec"
)

// defaultTimeout bounds a whole call when neither the client nor the
// context supplies a deadline.
const defaultTimeout = 2 * time.Second

// Client calls the daemon control socket.
type Client struct {
	// SocketPath is the Unix socket the daemon listens on.
	SocketPath string

	// Timeout bounds the dial plus the full exchange. Zero means
	// defaultTimeout.
	Timeout time.Duration
}

// Call sends one request and reads one response over a fresh
// connection. A connection refusal or missing socket means no daemon
// is listening; callers wanting a daemonless fallback check for that
// with errors.Is(err, os.ErrNotExist) or net errors as usual.
func (c *Client) Call(ctx context.Context, request Request) (Response, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", c.SocketPath)
	if err != nil {
		return Response{}, fmt.Errorf("dialing control socket %s: %w", c.SocketPath, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return Response{}, fmt.Errorf("sending %s request: %w", request.Action, err)
	}
	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		return Response{}, fmt.Errorf("reading %s response: %w", request.Action, err)
	}
	return response, nil
}
