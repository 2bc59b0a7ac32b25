// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package bucket

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openclaw-infra/keeper/lib/config"
	"github.com/openclaw-infra/keeper/lib/statesync"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), "", "", 0, discardLogger())
	if err == nil {
		t.Fatal("expected error for missing bucket")
	}
	if kind := statesync.Kind(err); kind != statesync.FailureConfigurationMissing {
		t.Fatalf("Kind = %q, want %q", kind, statesync.FailureConfigurationMissing)
	}
	if !strings.Contains(err.Error(), config.EnvSnapshotBucket) {
		t.Fatalf("error = %q, want mention of %s", err, config.EnvSnapshotBucket)
	}
}

func TestNewMissingCredentialsFile(t *testing.T) {
	_, err := New(context.Background(), "keeper-snapshots", "/nonexistent/key.json", 0, discardLogger())
	if err == nil {
		t.Fatal("expected error for missing credentials file")
	}
	if kind := statesync.Kind(err); kind != statesync.FailureConfigurationMissing {
		t.Fatalf("Kind = %q, want %q", kind, statesync.FailureConfigurationMissing)
	}
	if !strings.Contains(err.Error(), "/nonexistent/key.json") {
		t.Fatalf("error = %q, want the credentials path", err)
	}
}

func TestNewInvalidCredentialsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, []byte("not valid json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := New(context.Background(), "keeper-snapshots", path, 0, discardLogger()); err == nil {
		t.Fatal("expected error for unparsable credentials file")
	}
}

func TestUploadRejectsEmptyName(t *testing.T) {
	client := &Client{logger: discardLogger()}

	if err := client.Upload(context.Background(), "", []byte("data")); err == nil {
		t.Fatal("expected error for empty object name")
	}
}

// TestUploadIntegration runs only against a real bucket. Point
// OPENCLAW_TEST_SNAPSHOT_BUCKET at a disposable bucket reachable with
// ambient credentials to enable it.
func TestUploadIntegration(t *testing.T) {
	bucketName := os.Getenv("OPENCLAW_TEST_SNAPSHOT_BUCKET")
	if bucketName == "" {
		t.Skip("OPENCLAW_TEST_SNAPSHOT_BUCKET not set")
	}

	ctx := context.Background()
	client, err := New(ctx, bucketName, "", time.Minute, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	data := []byte("keeper upload integration probe")
	name := "test/upload-probe"
	if err := client.Upload(ctx, name, data); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	reader, err := client.client.Bucket(bucketName).Object(name).NewReader(ctx)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer reader.Close()

	stored, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(stored, data) {
		t.Fatal("stored object does not match uploaded data")
	}
}
