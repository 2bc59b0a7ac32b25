// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway supervises the OpenClaw gateway process. One
// supervision cycle mounts the durable store (best-effort), computes
// the credential fingerprint, looks the gateway up in the process
// table, and then decides: reuse the running instance when its launch
// fingerprint matches and its port answers, replace it when the
// fingerprint drifted or the process wedged, or launch fresh when
// nothing is running.
//
// Cycles are serialized twice over: a mutex for callers inside one
// process and a file lock for a CLI invocation racing the daemon.
// Two concurrent ensures therefore cannot double-launch; the second
// waits and then reuses what the first started.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/openclaw-infra/keeper/lib/clock"
	"github.com/openclaw-infra/keeper/lib/config"
	"github.com/openclaw-infra/keeper/lib/fingerprint"
	"github.com/openclaw-infra/keeper/lib/proctable"
	"github.com/openclaw-infra/keeper/lib/storemount"
)

const (
	// probeInterval separates TCP readiness attempts.
	probeInterval = 500 * time.Millisecond

	// terminateWait bounds how long a SIGTERM gets before SIGKILL.
	terminateWait = 5 * time.Second

	// launchTagVar marks the gateway's environment so a supervised
	// instance is distinguishable from a hand-started one.
	launchTagVar = "OPENCLAW_SUPERVISED"
)

// Supervisor drives gateway supervision cycles.
type Supervisor struct {
	cfg    *config.Config
	logger *slog.Logger
	clk    clock.Clock
	store  *storemount.Adapter
	table  *proctable.Table
	lock   *cycleLock
	mu     sync.Mutex

	// Seams for tests; production values are set by New.
	probe   func(address string, timeout time.Duration) error
	spawn   func(command []string, env []string, logPath string) (int, error)
	signal  func(pid int, sig syscall.Signal) error
	alive   func(pid int) bool
	selfExe func() (string, error)
}

// New returns a Supervisor over the live system.
func New(cfg *config.Config, logger *slog.Logger, clk clock.Clock) *Supervisor {
	s := &Supervisor{
		cfg:    cfg,
		logger: logger,
		clk:    clk,
		store:  storemount.New(cfg.Store.MountPoint),
		table:  proctable.New(),
		lock:   newCycleLock(filepath.Join(cfg.StateDir, "supervise.lock")),
		probe:  probeTCP,
		signal: syscall.Kill,
		alive:  proctable.Alive,

		selfExe: os.Executable,
	}
	s.spawn = s.spawnProcess
	return s
}

// EnsureRunning performs one supervision cycle against the given
// environment snapshot and returns a handle to a reachable gateway.
// The two terminal outcomes are a ready handle or an error; there is
// no partial return. Mount failures degrade (the gateway runs without
// the durable store); launch failures and readiness timeouts are
// fatal to the cycle.
func (s *Supervisor) EnsureRunning(ctx context.Context, snapshot map[string]string) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.cfg.StateDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	if err := s.lock.acquire(ctx, s.clk); err != nil {
		return nil, err
	}
	defer s.lock.release()

	mounted := s.mountStore(ctx, snapshot)
	currentFingerprint := fingerprint.Compute(snapshot)

	if handle, ok := s.findExisting(); ok {
		markerFingerprint, err := fingerprint.ReadMarker(s.cfg.StateDir)
		switch {
		case err != nil:
			// First run or wiped state: the running gateway's
			// credential set is unknowable, so it cannot be trusted.
			s.logger.Info("no readable fingerprint marker, replacing gateway",
				"pid", handle.PID, "error", err)
			s.kill(handle)
		case markerFingerprint != currentFingerprint:
			s.logger.Info("credential fingerprint changed, replacing gateway",
				"pid", handle.PID)
			s.kill(handle)
		default:
			if err := s.waitForPort(ctx, s.cfg.Gateway.ReuseProbeTimeout.Std()); err == nil {
				s.logger.Info("reusing running gateway",
					"pid", handle.PID, "port", handle.Port)
				handle.Status = proctable.StatusRunning
				return handle, nil
			}
			// A canceled cycle must not take down a gateway that may
			// simply not have been probed yet.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("probing gateway: %w", ctx.Err())
			}
			s.logger.Warn("gateway not reachable within reuse window, replacing",
				"pid", handle.PID, "port", s.cfg.Gateway.Port)
			s.kill(handle)
		}
	}

	return s.launch(ctx, snapshot, currentFingerprint, mounted)
}

// mountStore attaches the durable store when credentials allow.
// Failures are logged and degrade the cycle rather than failing it:
// a gateway without backups beats no gateway.
func (s *Supervisor) mountStore(ctx context.Context, snapshot map[string]string) bool {
	mountCtx, cancel := context.WithTimeout(ctx, s.cfg.Store.MountTimeout.Std())
	defer cancel()

	mounted, err := s.store.EnsureMounted(mountCtx, config.StoreCredentialsFrom(snapshot))
	if err != nil {
		s.logger.Warn("durable store mount failed, continuing without it", "error", err)
	}
	return mounted
}

// findExisting locates the gateway, preferring the launch record over
// a table scan. The record names the exact process instance the
// supervisor started; liveness is re-proved with a null signal and the
// command line is re-validated against the patterns, so a recycled PID
// never passes as the gateway. A record that is absent or fails
// validation falls back to the scan, which also adopts gateways
// started by other tooling.
func (s *Supervisor) findExisting() (*Handle, bool) {
	matcher := proctable.GatewayMatcher(s.cfg.Gateway.Command)

	if record, err := ReadRecord(s.cfg.StateDir); err == nil && s.alive(record.PID) {
		if process, ok := s.table.Find(record.PID); ok &&
			proctable.Eligible(process.Status) &&
			matcher.Matches(process.CommandLine()) &&
			(record.StartTime == 0 || record.StartTime == process.StartTime) {
			return &Handle{
				PID:       process.PID,
				StartTime: process.StartTime,
				Command:   process.Command,
				Port:      record.Port,
				Status:    process.Status,
			}, true
		}
	}

	process, ok := s.table.FindMatching(matcher)
	if !ok {
		return nil, false
	}
	return &Handle{
		PID:       process.PID,
		StartTime: process.StartTime,
		Command:   process.Command,
		Port:      s.cfg.Gateway.Port,
		Status:    process.Status,
	}, true
}

// launch starts a fresh gateway. The fingerprint marker is written
// before the process starts so a crash immediately after still leaves
// the intended fingerprint for the next cycle; the marker write
// itself is best-effort and never blocks the launch.
func (s *Supervisor) launch(ctx context.Context, snapshot map[string]string, currentFingerprint string, mounted bool) (*Handle, error) {
	if err := fingerprint.WriteMarker(s.cfg.StateDir, currentFingerprint); err != nil {
		s.logger.Warn("writing fingerprint marker", "error", err)
	}

	command := s.launchCommand(mounted)
	pid, err := s.spawn(command, launchEnv(snapshot), s.cfg.Gateway.LogFile)
	if err != nil {
		return nil, &LaunchError{Command: command, Err: err}
	}
	s.logger.Info("gateway launched", "pid", pid, "port", s.cfg.Gateway.Port)

	handle := &Handle{
		PID:     pid,
		Command: command,
		Port:    s.cfg.Gateway.Port,
		Status:  proctable.StatusStarting,
	}
	if process, ok := s.table.Find(pid); ok {
		handle.StartTime = process.StartTime
	}
	record := Record{
		PID:         pid,
		StartTime:   handle.StartTime,
		Fingerprint: currentFingerprint,
		Port:        handle.Port,
		Command:     command,
		LaunchedAt:  s.clk.Now(),
	}
	if err := WriteRecord(s.cfg.StateDir, record); err != nil {
		s.logger.Warn("writing launch record", "error", err)
	}

	readyTimeout := s.cfg.Gateway.LaunchReadyTimeout.Std()
	if err := s.waitForPort(ctx, readyTimeout); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("waiting for gateway readiness: %w", ctx.Err())
		}
		// The wedged process is left alone: the next cycle will find
		// it, match the marker, fail the probe, and replace it.
		return nil, &ReadinessError{
			Port:    handle.Port,
			Timeout: readyTimeout,
			Logs:    logTail(s.cfg.Gateway.LogFile, logTailBytes),
		}
	}

	handle.Status = proctable.StatusRunning
	s.logger.Info("gateway ready", "pid", pid, "port", handle.Port)
	return handle, nil
}

// launchCommand builds the gateway argv. When the durable store is
// mounted and restore-on-boot is enabled, the gateway is started
// through "keeper restore --exec --" so reconciliation runs inside
// the gateway's own boot sequence and then execs the real command in
// the same process.
func (s *Supervisor) launchCommand(mounted bool) []string {
	command := s.cfg.Gateway.Command
	if !mounted || !s.cfg.Gateway.RestoreOnBoot {
		return command
	}
	self, err := s.selfExe()
	if err != nil {
		s.logger.Warn("cannot determine own executable, launching without restore", "error", err)
		return command
	}
	wrapped := []string{self, "restore", "--exec", "--"}
	return append(wrapped, command...)
}

// launchEnv flattens the environment snapshot for the child process
// and appends the supervision tag. Sorted for stable ordering.
func launchEnv(snapshot map[string]string) []string {
	env := make([]string, 0, len(snapshot)+1)
	for key, value := range snapshot {
		env = append(env, key+"="+value)
	}
	sort.Strings(env)
	return append(env, launchTagVar+"=1")
}

// spawnProcess starts the gateway detached into its own process
// group with stdout and stderr appended to the gateway log. The
// child is not bound to the caller's lifetime: a keeper CLI exit
// must not take the gateway down with it.
func (s *Supervisor) spawnProcess(command []string, env []string, logPath string) (int, error) {
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("opening gateway log %s: %w", logPath, err)
	}
	defer logFile.Close()

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Env = env
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid

	// Reap in the background so a long-lived keeper never accumulates
	// zombies. When keeper exits first, init inherits the child.
	go func() {
		err := cmd.Wait()
		exitCode := 0
		if exitError, ok := err.(*exec.ExitError); ok {
			if status, ok := exitError.Sys().(syscall.WaitStatus); ok {
				if status.Exited() {
					exitCode = status.ExitStatus()
				} else if status.Signaled() {
					exitCode = 128 + int(status.Signal())
				}
			}
		} else if err != nil {
			exitCode = -1
		}
		s.logger.Info("gateway process exited", "pid", pid, "exit_code", exitCode)
	}()

	return pid, nil
}

// waitForPort probes the gateway port until it answers or the window
// closes.
func (s *Supervisor) waitForPort(ctx context.Context, timeout time.Duration) error {
	address := net.JoinHostPort("127.0.0.1", strconv.Itoa(s.cfg.Gateway.Port))
	deadline := s.clk.Now().Add(timeout)
	for {
		if err := s.probe(address, probeInterval); err == nil {
			return nil
		}
		if !s.clk.Now().Before(deadline) {
			return fmt.Errorf("port %d not reachable within %s", s.cfg.Gateway.Port, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clk.After(probeInterval):
		}
	}
}

// probeTCP is the production readiness probe: a TCP connect is enough
// to prove the gateway accepted its listen port.
func probeTCP(address string, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

// kill terminates a gateway instance, SIGTERM first and SIGKILL after
// terminateWait. Termination is best-effort: a process that survives
// SIGKILL is logged and left for the next launch to contend with.
func (s *Supervisor) kill(handle *Handle) {
	// The group first; a hand-started gateway may not lead one, so
	// fall back to the bare PID.
	if err := s.signal(-handle.PID, syscall.SIGTERM); err != nil {
		s.signal(handle.PID, syscall.SIGTERM)
	}
	if s.waitGone(handle.PID, terminateWait) {
		handle.Status = proctable.StatusStopped
		s.logger.Info("gateway terminated", "pid", handle.PID)
		return
	}

	s.logger.Warn("gateway ignored SIGTERM, sending SIGKILL", "pid", handle.PID)
	if err := s.signal(-handle.PID, syscall.SIGKILL); err != nil {
		s.signal(handle.PID, syscall.SIGKILL)
	}
	if s.waitGone(handle.PID, terminateWait) {
		handle.Status = proctable.StatusStopped
		s.logger.Info("gateway killed", "pid", handle.PID)
		return
	}
	s.logger.Error("gateway still alive after SIGKILL, next launch will contend for the port",
		"pid", handle.PID)
}

// waitGone polls until the PID disappears or the window closes.
func (s *Supervisor) waitGone(pid int, window time.Duration) bool {
	deadline := s.clk.Now().Add(window)
	for s.alive(pid) {
		if !s.clk.Now().Before(deadline) {
			return false
		}
		s.clk.Sleep(100 * time.Millisecond)
	}
	return true
}
