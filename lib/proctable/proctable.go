// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

// Package proctable enumerates the process table through /proc and
// classifies which entry, if any, is the supervised gateway. The
// classification is textual: a command line must match an inclusion
// pattern and no exclusion pattern, with exclusions winning, because
// CLI invocations like "openclaw gateway status" contain the launch
// command as a substring.
//
// Enumeration never fails loudly. A /proc that cannot be read, or an
// entry that vanishes mid-scan, yields an empty result; supervision
// then proceeds as if no gateway exists, which errs toward launching
// a fresh one rather than blocking.
package proctable

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
)

// Status is the lifecycle state of a table entry.
type Status string

const (
	// StatusStarting marks a process launched but not yet confirmed
	// reachable. The table itself never produces it; the supervisor
	// sets it on handles it just created.
	StatusStarting Status = "starting"

	// StatusRunning covers the kernel's runnable and sleeping states.
	StatusRunning Status = "running"

	// StatusStopped covers traced or stopped processes.
	StatusStopped Status = "stopped"

	// StatusFailed covers zombies: exited but not yet reaped.
	StatusFailed Status = "failed"
)

// Eligible reports whether a status counts as "the gateway exists".
// Stopped and failed entries are treated as absent.
func Eligible(s Status) bool {
	return s == StatusStarting || s == StatusRunning
}

// Process is one row of the process table.
type Process struct {
	PID     int
	Command []string
	Status  Status

	// StartTime is the kernel's starttime field, in clock ticks since
	// boot. Together with the PID it identifies a process instance
	// across PID reuse.
	StartTime uint64
}

// CommandLine returns the space-joined command for pattern matching
// and display.
func (p Process) CommandLine() string {
	return strings.Join(p.Command, " ")
}

// Table reads processes from a /proc-shaped filesystem tree.
type Table struct {
	root string
}

// New returns a Table over the live /proc.
func New() *Table {
	return &Table{root: "/proc"}
}

// NewAt returns a Table over an alternate tree. Tests point this at a
// fixture directory.
func NewAt(root string) *Table {
	return &Table{root: root}
}

// List returns every readable process, sorted by PID. Enumeration
// problems produce a shorter (possibly empty) list, never an error.
func (t *Table) List() []Process {
	entries, err := os.ReadDir(t.root)
	if err != nil {
		return nil
	}

	var processes []Process
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid <= 0 {
			continue
		}
		if process, ok := t.read(pid); ok {
			processes = append(processes, process)
		}
	}
	sort.Slice(processes, func(i, j int) bool {
		return processes[i].PID < processes[j].PID
	})
	return processes
}

// Find returns the entry for one PID.
func (t *Table) Find(pid int) (Process, bool) {
	return t.read(pid)
}

// read loads one process. Kernel threads (empty cmdline) and entries
// that vanish mid-read report false.
func (t *Table) read(pid int) (Process, bool) {
	dir := filepath.Join(t.root, strconv.Itoa(pid))

	cmdlineData, err := os.ReadFile(filepath.Join(dir, "cmdline"))
	if err != nil {
		return Process{}, false
	}
	command := splitCmdline(cmdlineData)
	if len(command) == 0 {
		return Process{}, false
	}

	statData, err := os.ReadFile(filepath.Join(dir, "stat"))
	if err != nil {
		return Process{}, false
	}
	state, startTime, err := parseStat(string(statData))
	if err != nil {
		return Process{}, false
	}

	return Process{
		PID:       pid,
		Command:   command,
		Status:    statusFor(state),
		StartTime: startTime,
	}, true
}

// splitCmdline splits the NUL-separated argv from /proc/<pid>/cmdline.
func splitCmdline(data []byte) []string {
	parts := strings.Split(string(data), "\x00")
	var command []string
	for _, part := range parts {
		if part != "" {
			command = append(command, part)
		}
	}
	return command
}

// parseStat extracts the state character and starttime from a
// /proc/<pid>/stat line. The comm field may contain spaces and
// parentheses, so fields are counted from the last closing paren.
func parseStat(text string) (state byte, startTime uint64, err error) {
	rparen := strings.LastIndexByte(text, ')')
	if rparen < 0 || rparen+1 >= len(text) {
		return 0, 0, errors.New("malformed stat line")
	}
	fields := strings.Fields(text[rparen+1:])
	if len(fields) == 0 || len(fields[0]) != 1 {
		return 0, 0, errors.New("malformed stat line")
	}
	state = fields[0][0]
	// starttime is overall field 22; after comm and state it is the
	// 20th remaining field.
	if len(fields) >= 20 {
		startTime, _ = strconv.ParseUint(fields[19], 10, 64)
	}
	return state, startTime, nil
}

// statusFor maps a kernel state character onto the lifecycle states
// the supervisor reasons about.
func statusFor(state byte) Status {
	switch state {
	case 'Z':
		return StatusFailed
	case 'T', 't', 'X', 'x':
		return StatusStopped
	default:
		return StatusRunning
	}
}

// Alive reports whether a PID currently exists, using a null signal.
// EPERM still means alive; only ESRCH means gone.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return !errors.Is(err, syscall.ESRCH)
}
