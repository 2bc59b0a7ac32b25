// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

// Package bucket uploads snapshot objects to a GCS bucket. It is the
// transport half of the snapshot backend: lib/snapshot builds the
// objects, this package stores them and confirms, from the server's
// response, that the stored object has the expected size.
package bucket

import (
	"context"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/openclaw-infra/keeper/lib/config"
	"github.com/openclaw-infra/keeper/lib/snapshot"
	"github.com/openclaw-infra/keeper/lib/statesync"
)

// castagnoli is the CRC32C table GCS uses for object checksums.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Client uploads objects to one bucket.
type Client struct {
	client  *storage.Client
	bucket  string
	timeout time.Duration
	logger  *slog.Logger
}

// New opens a client for bucket. credentialsFile may be empty, in
// which case the storage client uses ambient application-default
// credentials. timeout bounds each object upload; zero leaves uploads
// bounded only by the caller's context. An empty bucket is a
// configuration error, not a transfer error: snapshots are simply not
// set up on this host.
func New(ctx context.Context, bucket, credentialsFile string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	if bucket == "" {
		return nil, &statesync.Error{
			Kind: statesync.FailureConfigurationMissing,
			Err:  fmt.Errorf("snapshot bucket not configured (set %s or snapshot.bucket)", config.EnvSnapshotBucket),
		}
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, &statesync.Error{
				Kind: statesync.FailureConfigurationMissing,
				Err:  fmt.Errorf("snapshot credentials file %s: %w", credentialsFile, err),
			}
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	return &Client{client: client, bucket: bucket, timeout: timeout, logger: logger}, nil
}

// Close releases the underlying storage client.
func (c *Client) Close() error {
	return c.client.Close()
}

// Upload stores data under name. The object's CRC32C is sent with the
// write so the server rejects a corrupted upload, and the finalize
// response is checked against the expected size afterwards.
func (c *Client) Upload(ctx context.Context, name string, data []byte) error {
	if name == "" {
		return fmt.Errorf("object name is empty")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	object := c.client.Bucket(c.bucket).Object(name)
	writer := object.NewWriter(ctx)
	writer.ContentType = "application/octet-stream"
	writer.CRC32C = crc32.Checksum(data, castagnoli)
	writer.SendCRC32C = true

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return c.transferFailure(fmt.Errorf("writing object %s: %w", name, err))
	}
	if err := writer.Close(); err != nil {
		return c.transferFailure(fmt.Errorf("finalizing object %s: %w", name, err))
	}

	attrs := writer.Attrs()
	if attrs == nil || attrs.Size != int64(len(data)) {
		return c.transferFailure(fmt.Errorf("object %s stored with unexpected size", name))
	}

	c.logger.Info("snapshot object uploaded",
		"bucket", c.bucket, "name", name, "bytes", len(data))
	return nil
}

// UploadArchive stores a finished snapshot: the archive object first,
// then its manifest. A manifest must never point at an object that is
// not there yet.
func (c *Client) UploadArchive(ctx context.Context, archive *snapshot.Archive) error {
	if err := c.Upload(ctx, archive.Name, archive.Data); err != nil {
		return err
	}
	return c.Upload(ctx, archive.ManifestName, archive.ManifestData)
}

// transferFailure classifies an upload error, passing through errors
// that already carry a classification.
func (c *Client) transferFailure(err error) error {
	if statesync.Kind(err) != "" {
		return err
	}
	return &statesync.Error{Kind: statesync.FailureTransfer, Err: err}
}
