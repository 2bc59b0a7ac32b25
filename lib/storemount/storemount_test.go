// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package storemount

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/openclaw-infra/keeper/lib/config"
)

// fakeMounter records mount attempts and runs an optional callback so
// tests can mutate the mount table fixture mid-attempt.
type fakeMounter struct {
	calls   int
	creds   config.StoreCredentials
	err     error
	onMount func()
}

func (f *fakeMounter) Mount(ctx context.Context, creds config.StoreCredentials, mountPoint string) error {
	f.calls++
	f.creds = creds
	if f.onMount != nil {
		f.onMount()
	}
	return f.err
}

// writeMountInfo writes a mountinfo fixture listing the given mount
// points plus typical system mounts.
func writeMountInfo(t *testing.T, path string, mountPoints ...string) {
	t.Helper()
	content := "22 1 8:1 / / rw,relatime - ext4 /dev/sda1 rw\n" +
		"23 22 0:5 / /proc rw,nosuid - proc proc rw\n"
	for i, mountPoint := range mountPoints {
		content += fmt.Sprintf("%d 22 0:%d / %s rw,relatime - fuse gcsfuse rw\n", 40+i, 50+i, mountPoint)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func newTestAdapter(t *testing.T, mounter Mounter) (*Adapter, string) {
	t.Helper()
	dir := t.TempDir()
	mountInfo := filepath.Join(dir, "mountinfo")
	writeMountInfo(t, mountInfo)
	return &Adapter{
		MountPoint: filepath.Join(dir, "store"),
		Mounter:    mounter,
		MountInfo:  mountInfo,
	}, mountInfo
}

func TestEnsureMountedNoCredentials(t *testing.T) {
	fake := &fakeMounter{}
	adapter, _ := newTestAdapter(t, fake)

	mounted, err := adapter.EnsureMounted(context.Background(), config.StoreCredentials{})
	if err != nil {
		t.Fatalf("EnsureMounted: %v", err)
	}
	if mounted {
		t.Error("mounted = true without credentials")
	}
	if fake.calls != 0 {
		t.Errorf("mount attempted %d times, want 0 (no side effects)", fake.calls)
	}
}

func TestEnsureMountedAlreadyMounted(t *testing.T) {
	fake := &fakeMounter{}
	adapter, mountInfo := newTestAdapter(t, fake)
	writeMountInfo(t, mountInfo, adapter.MountPoint)

	mounted, err := adapter.EnsureMounted(context.Background(), config.StoreCredentials{Bucket: "claw-state"})
	if err != nil {
		t.Fatalf("EnsureMounted: %v", err)
	}
	if !mounted {
		t.Error("mounted = false for an existing mount")
	}
	if fake.calls != 0 {
		t.Errorf("mount attempted %d times, want 0 when already mounted", fake.calls)
	}
}

func TestEnsureMountedPreMountedWithoutCredentials(t *testing.T) {
	fake := &fakeMounter{}
	adapter, mountInfo := newTestAdapter(t, fake)
	writeMountInfo(t, mountInfo, adapter.MountPoint)

	// A store someone attached by hand stays usable even when this
	// process has no bucket variable.
	mounted, err := adapter.EnsureMounted(context.Background(), config.StoreCredentials{})
	if err != nil {
		t.Fatalf("EnsureMounted: %v", err)
	}
	if !mounted {
		t.Error("mounted = false for a pre-attached mount")
	}
	if fake.calls != 0 {
		t.Errorf("mount attempted %d times, want 0", fake.calls)
	}
}

func TestEnsureMountedAttachesAndVerifies(t *testing.T) {
	adapter, mountInfo := newTestAdapter(t, nil)
	fake := &fakeMounter{onMount: func() {
		writeMountInfo(t, mountInfo, adapter.MountPoint)
	}}
	adapter.Mounter = fake

	creds := config.StoreCredentials{Bucket: "claw-state", KeyFile: "/keys/sa.json"}
	mounted, err := adapter.EnsureMounted(context.Background(), creds)
	if err != nil {
		t.Fatalf("EnsureMounted: %v", err)
	}
	if !mounted {
		t.Error("mounted = false after successful attach")
	}
	if fake.calls != 1 {
		t.Errorf("mount attempted %d times, want 1", fake.calls)
	}
	if fake.creds != creds {
		t.Errorf("mount credentials = %+v, want %+v", fake.creds, creds)
	}
	if _, err := os.Stat(adapter.MountPoint); err != nil {
		t.Errorf("mount point directory not created: %v", err)
	}
}

func TestEnsureMountedErrorButMountAppeared(t *testing.T) {
	adapter, mountInfo := newTestAdapter(t, nil)
	// gcsfuse errors with "already mounted" wording that cannot be
	// trusted; the mount table says it worked.
	fake := &fakeMounter{
		err: errors.New("mountpoint is not empty"),
		onMount: func() {
			writeMountInfo(t, mountInfo, adapter.MountPoint)
		},
	}
	adapter.Mounter = fake

	mounted, err := adapter.EnsureMounted(context.Background(), config.StoreCredentials{Bucket: "claw-state"})
	if err != nil {
		t.Fatalf("EnsureMounted: %v (mount table should win over error text)", err)
	}
	if !mounted {
		t.Error("mounted = false though the mount table lists the mount point")
	}
}

func TestEnsureMountedFailure(t *testing.T) {
	fake := &fakeMounter{err: errors.New("bucket does not exist")}
	adapter, _ := newTestAdapter(t, fake)

	mounted, err := adapter.EnsureMounted(context.Background(), config.StoreCredentials{Bucket: "claw-state"})
	if err == nil {
		t.Fatal("EnsureMounted succeeded though the attach failed")
	}
	if mounted {
		t.Error("mounted = true after failed attach")
	}
}

func TestEnsureMountedSuccessButAbsentFromTable(t *testing.T) {
	fake := &fakeMounter{}
	adapter, _ := newTestAdapter(t, fake)

	mounted, err := adapter.EnsureMounted(context.Background(), config.StoreCredentials{Bucket: "claw-state"})
	if err == nil {
		t.Fatal("EnsureMounted succeeded though the mount never appeared in the table")
	}
	if mounted {
		t.Error("mounted = true though the mount table does not list the mount point")
	}
}

func TestMountTableHas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mountinfo")
	writeMountInfo(t, path, "/mnt/openclaw-store")

	present, err := mountTableHas(path, "/mnt/openclaw-store")
	if err != nil {
		t.Fatalf("mountTableHas: %v", err)
	}
	if !present {
		t.Error("mountTableHas = false for listed mount point")
	}

	present, err = mountTableHas(path, "/mnt/other")
	if err != nil {
		t.Fatalf("mountTableHas: %v", err)
	}
	if present {
		t.Error("mountTableHas = true for unlisted mount point")
	}
}

func TestMountTableHasEscapedPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mountinfo")
	content := `40 22 0:50 / /mnt/claw\040store rw,relatime - fuse gcsfuse rw` + "\n" +
		"short line\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	present, err := mountTableHas(path, "/mnt/claw store")
	if err != nil {
		t.Fatalf("mountTableHas: %v", err)
	}
	if !present {
		t.Error("mountTableHas did not unescape the mount path")
	}
}

func TestMountTableHasUnreadable(t *testing.T) {
	if _, err := mountTableHas(filepath.Join(t.TempDir(), "absent"), "/mnt"); err == nil {
		t.Error("mountTableHas succeeded for missing table")
	}
}

func TestDeviceDiffersPlainDirectory(t *testing.T) {
	if deviceDiffers(t.TempDir()) {
		t.Error("deviceDiffers = true for a plain directory")
	}
}

func TestDeviceDiffersProc(t *testing.T) {
	if _, err := os.Stat("/proc/self"); err != nil {
		t.Skip("skipping: /proc not available")
	}
	if !deviceDiffers("/proc") {
		t.Error("deviceDiffers = false for /proc")
	}
}
