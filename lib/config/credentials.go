// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package config

import "strings"

// Environment variable names keeper reads from the environment
// snapshot. The snapshot is captured once per supervision or sync
// cycle; nothing below reads the process environment directly.
const (
	// EnvStateBucket names the durable store bucket. Its presence is
	// what makes store credentials "present".
	EnvStateBucket = "OPENCLAW_STATE_BUCKET"

	// EnvStateKeyFile points at a service-account key for the store
	// mount. Optional: without it the mount helper uses ambient
	// application-default credentials.
	EnvStateKeyFile = "OPENCLAW_STATE_KEY_FILE"

	// EnvGoogleCredentials is the conventional fallback for
	// EnvStateKeyFile.
	EnvGoogleCredentials = "GOOGLE_APPLICATION_CREDENTIALS"

	// EnvBackupRepo overrides repo.url from the environment.
	EnvBackupRepo = "OPENCLAW_BACKUP_REPO"

	// EnvGitToken authenticates HTTPS pushes to the backup
	// repository.
	EnvGitToken = "GITHUB_TOKEN"

	// EnvSnapshotBucket overrides snapshot.bucket from the
	// environment.
	EnvSnapshotBucket = "OPENCLAW_SNAPSHOT_BUCKET"
)

// EnvironSnapshot converts os.Environ-shaped "KEY=value" pairs into
// the environment snapshot map used across a supervision cycle. Later
// duplicates win, matching process environment semantics.
func EnvironSnapshot(environ []string) map[string]string {
	snapshot := make(map[string]string, len(environ))
	for _, entry := range environ {
		key, value, found := strings.Cut(entry, "=")
		if !found || key == "" {
			continue
		}
		snapshot[key] = value
	}
	return snapshot
}

// StoreCredentials identifies the durable store and how to
// authenticate the mount.
type StoreCredentials struct {
	// Bucket is the object storage bucket backing the durable store.
	Bucket string

	// KeyFile is an optional service-account key path.
	KeyFile string
}

// Present reports whether the credentials are usable. The bucket name
// is the required part; the key file is optional.
func (c StoreCredentials) Present() bool { return c.Bucket != "" }

// StoreCredentialsFrom extracts store credentials from an environment
// snapshot.
func StoreCredentialsFrom(snapshot map[string]string) StoreCredentials {
	keyFile := snapshot[EnvStateKeyFile]
	if keyFile == "" {
		keyFile = snapshot[EnvGoogleCredentials]
	}
	return StoreCredentials{
		Bucket:  snapshot[EnvStateBucket],
		KeyFile: keyFile,
	}
}

// RepoCredentials identify the backup repository remote.
type RepoCredentials struct {
	// URL is the remote repository (HTTPS or SSH).
	URL string

	// Token authenticates HTTPS remotes. SSH remotes rely on ambient
	// key material and leave it empty.
	Token string
}

// Present reports whether a repository destination is configured.
func (c RepoCredentials) Present() bool { return c.URL != "" }

// RepoCredentialsFrom extracts repository credentials, letting the
// environment snapshot override the configured URL.
func (c *Config) RepoCredentialsFrom(snapshot map[string]string) RepoCredentials {
	url := snapshot[EnvBackupRepo]
	if url == "" {
		url = c.Repo.URL
	}
	return RepoCredentials{URL: url, Token: snapshot[EnvGitToken]}
}

// SnapshotBucketFrom resolves the snapshot bucket, letting the
// environment snapshot override the configured one.
func (c *Config) SnapshotBucketFrom(snapshot map[string]string) string {
	if bucket := snapshot[EnvSnapshotBucket]; bucket != "" {
		return bucket
	}
	return c.Snapshot.Bucket
}
