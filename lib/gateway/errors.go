// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"fmt"
	"strings"
	"time"
)

// LaunchError reports that the gateway process failed to start. Launch
// failures are fatal to the supervision cycle; there is no fallback
// that can produce a running gateway from a command that will not
// start.
type LaunchError struct {
	Command []string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching gateway %q: %v", strings.Join(e.Command, " "), e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ReadinessError reports that a launched gateway never opened its
// port within the readiness window. The tail of the gateway log is
// embedded so the failure is diagnosable from the error alone; the
// wedged process is left for a later cycle to kill and replace.
type ReadinessError struct {
	Port    int
	Timeout time.Duration
	Logs    string
}

func (e *ReadinessError) Error() string {
	message := fmt.Sprintf("gateway not reachable on port %d after %s", e.Port, e.Timeout)
	if e.Logs != "" {
		message += "\n--- gateway log tail ---\n" + e.Logs
	}
	return message
}
