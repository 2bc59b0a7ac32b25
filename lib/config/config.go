// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads keeper's configuration.
//
// Configuration comes from a single YAML file named by the --config
// flag or the KEEPER_CONFIG environment variable. Every field has a
// working default, so inside a sandbox keeper runs with no config file
// at all; the boot script cannot stop to ask an operator for one.
// Environment variables never override file values; the only expansion
// performed is ~ and ${VAR} in paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openclaw-infra/keeper/lib/cron"
	"github.com/openclaw-infra/keeper/lib/sealed"
)

// Config is the keeper configuration.
type Config struct {
	// StateDir holds keeper's own state: the fingerprint marker, the
	// gateway launch record and log, the supervision lock, the
	// repository clone, and the daemon socket. It sits beside the
	// gateway's state and is never part of any backup target.
	StateDir string `yaml:"state_dir"`

	// Gateway configures the supervised process.
	Gateway GatewayConfig `yaml:"gateway"`

	// Store configures the durable store mount.
	Store StoreConfig `yaml:"store"`

	// Repo configures the secondary versioned-repository backup.
	Repo RepoConfig `yaml:"repo"`

	// Snapshot configures point-in-time archive uploads.
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Daemon configures keeper-daemon's schedules.
	Daemon DaemonConfig `yaml:"daemon"`
}

// GatewayConfig configures the supervised gateway process.
type GatewayConfig struct {
	// Command is the gateway launch command. The supervisor prepends
	// the restore exec-chain when RestoreOnBoot is set.
	Command []string `yaml:"command"`

	// Port is the gateway's listen port, probed for readiness.
	Port int `yaml:"port"`

	// ConfigRoot is the gateway's configuration directory, the first
	// member of the backup target set.
	ConfigRoot string `yaml:"config_root"`

	// WorkspaceRoot is the gateway's workspace (IDENTITY.md, USER.md,
	// memory/), the second member of the backup target set.
	WorkspaceRoot string `yaml:"workspace_root"`

	// SkillsDir is the installed-skills directory, the third member
	// of the backup target set. Default: <config_root>/skills.
	SkillsDir string `yaml:"skills_dir"`

	// LogFile receives the gateway's combined stdout and stderr.
	// Default: <state_dir>/gateway.log.
	LogFile string `yaml:"log_file"`

	// RestoreOnBoot wraps the launch so the child runs the restore
	// reconciliation and then execs the gateway in place. Default
	// true.
	RestoreOnBoot bool `yaml:"restore_on_boot"`

	// ReuseProbeTimeout bounds the readiness probe when deciding
	// whether an already-running gateway is still serving.
	ReuseProbeTimeout Duration `yaml:"reuse_probe_timeout"`

	// LaunchReadyTimeout bounds the readiness probe after a fresh
	// launch. Longer than ReuseProbeTimeout: a fresh gateway loads
	// config and connects channels before listening.
	LaunchReadyTimeout Duration `yaml:"launch_ready_timeout"`
}

// SkillsWithinConfig returns the skills directory's path relative to
// the config root when it is nested inside it. Backup engines exclude
// that subtree from config transfers so skills travel exactly once,
// under their own target.
func (g GatewayConfig) SkillsWithinConfig() (string, bool) {
	rel, err := filepath.Rel(g.ConfigRoot, g.SkillsDir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

// StoreConfig configures the durable store mount.
type StoreConfig struct {
	// MountPoint is the fixed path where the store bucket is
	// attached.
	MountPoint string `yaml:"mount_point"`

	// MountTimeout bounds one mount attempt.
	MountTimeout Duration `yaml:"mount_timeout"`

	// TransferTimeout bounds one full mirror of the backup target
	// set.
	TransferTimeout Duration `yaml:"transfer_timeout"`
}

// RepoConfig configures the versioned-repository backup.
type RepoConfig struct {
	// URL is the remote repository. Empty disables the repository
	// destination unless OPENCLAW_BACKUP_REPO supplies one at
	// runtime.
	URL string `yaml:"url"`

	// Branch is the branch synced to. Default "main".
	Branch string `yaml:"branch"`

	// CloneDir is the local clone. Default: <state_dir>/mirror.
	CloneDir string `yaml:"clone_dir"`

	// EscrowRecipients are age X25519 public keys. When set, the
	// backup includes the unredacted gateway config encrypted to
	// these recipients; without them the repository carries redacted
	// config only.
	EscrowRecipients []string `yaml:"escrow_recipients"`

	// Timeout bounds each git network operation (clone, fetch,
	// push).
	Timeout Duration `yaml:"timeout"`
}

// SnapshotConfig configures point-in-time archive uploads.
type SnapshotConfig struct {
	// Bucket is the snapshot destination bucket. Empty disables
	// snapshots unless OPENCLAW_SNAPSHOT_BUCKET supplies one.
	Bucket string `yaml:"bucket"`

	// Prefix is the object-name prefix inside the bucket.
	Prefix string `yaml:"prefix"`

	// Compression is the archive codec: "zstd", "lz4", or "none".
	Compression string `yaml:"compression"`

	// KeyFile enables archive encryption. The file holds the 32-byte
	// master key as 64 hex characters (openssl rand -hex 32). Empty
	// uploads plaintext archives.
	KeyFile string `yaml:"key_file"`

	// CredentialsFile is a service-account key for the bucket
	// client. Empty uses ambient application-default credentials.
	CredentialsFile string `yaml:"credentials_file"`

	// UploadTimeout bounds the upload of each snapshot object.
	UploadTimeout Duration `yaml:"upload_timeout"`
}

// DaemonConfig configures keeper-daemon's schedules.
type DaemonConfig struct {
	// EnsureInterval is the supervision cycle period.
	EnsureInterval Duration `yaml:"ensure_interval"`

	// StoreSyncInterval is the durable-store sync period.
	StoreSyncInterval Duration `yaml:"store_sync_interval"`

	// RepoSyncInterval is the repository sync period.
	RepoSyncInterval Duration `yaml:"repo_sync_interval"`

	// SnapshotInterval is the snapshot period. Zero disables
	// scheduled snapshots.
	SnapshotInterval Duration `yaml:"snapshot_interval"`

	// SnapshotCron schedules snapshots by a 5-field cron expression
	// (UTC) instead of an interval, e.g. "0 3 * * *" for nightly at
	// 03:00. Mutually exclusive with snapshot_interval.
	SnapshotCron string `yaml:"snapshot_cron"`

	// Debounce is how long the daemon waits after the last observed
	// local write before triggering an early store sync.
	Debounce Duration `yaml:"debounce"`

	// SocketPath is the control socket. Default:
	// <state_dir>/keeperd.sock.
	SocketPath string `yaml:"socket_path"`
}

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration keeper runs with when no config
// file is present. Paths are derived from the invoking user's home
// directory.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		StateDir: filepath.Join(homeDir, ".openclaw-keeper"),
		Gateway: GatewayConfig{
			Command:            []string{"openclaw", "gateway", "--port", "18789"},
			Port:               18789,
			ConfigRoot:         filepath.Join(homeDir, ".openclaw"),
			WorkspaceRoot:      filepath.Join(homeDir, "openclaw"),
			RestoreOnBoot:      true,
			ReuseProbeTimeout:  Duration(10 * time.Second),
			LaunchReadyTimeout: Duration(60 * time.Second),
		},
		Store: StoreConfig{
			MountPoint:      "/mnt/openclaw-store",
			MountTimeout:    Duration(30 * time.Second),
			TransferTimeout: Duration(5 * time.Minute),
		},
		Repo: RepoConfig{
			Branch:  "main",
			Timeout: Duration(2 * time.Minute),
		},
		Snapshot: SnapshotConfig{
			Prefix:        "snapshots/",
			Compression:   "zstd",
			UploadTimeout: Duration(10 * time.Minute),
		},
		Daemon: DaemonConfig{
			EnsureInterval:    Duration(time.Minute),
			StoreSyncInterval: Duration(30 * time.Minute),
			RepoSyncInterval:  Duration(6 * time.Hour),
			Debounce:          Duration(30 * time.Second),
		},
	}
}

// Load resolves the configuration: an explicit path wins, then
// KEEPER_CONFIG, then pure defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("KEEPER_CONFIG")
	}

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile merges one YAML file over the current config. Fields
// absent from the file keep their defaults.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// normalize expands paths and derives the defaults that depend on
// other fields.
func (c *Config) normalize() {
	c.StateDir = expandPath(c.StateDir)
	c.Gateway.ConfigRoot = expandPath(c.Gateway.ConfigRoot)
	c.Gateway.WorkspaceRoot = expandPath(c.Gateway.WorkspaceRoot)
	c.Gateway.SkillsDir = expandPath(c.Gateway.SkillsDir)
	c.Gateway.LogFile = expandPath(c.Gateway.LogFile)
	c.Store.MountPoint = expandPath(c.Store.MountPoint)
	c.Repo.CloneDir = expandPath(c.Repo.CloneDir)
	c.Snapshot.KeyFile = expandPath(c.Snapshot.KeyFile)
	c.Snapshot.CredentialsFile = expandPath(c.Snapshot.CredentialsFile)
	c.Daemon.SocketPath = expandPath(c.Daemon.SocketPath)

	if c.Gateway.SkillsDir == "" {
		c.Gateway.SkillsDir = filepath.Join(c.Gateway.ConfigRoot, "skills")
	}
	if c.Gateway.LogFile == "" {
		c.Gateway.LogFile = filepath.Join(c.StateDir, "gateway.log")
	}
	if c.Repo.CloneDir == "" {
		c.Repo.CloneDir = filepath.Join(c.StateDir, "mirror")
	}
	if c.Daemon.SocketPath == "" {
		c.Daemon.SocketPath = filepath.Join(c.StateDir, "keeperd.sock")
	}
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if len(c.Gateway.Command) == 0 {
		return fmt.Errorf("gateway.command must not be empty")
	}
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port %d out of range", c.Gateway.Port)
	}
	if !filepath.IsAbs(c.Store.MountPoint) {
		return fmt.Errorf("store.mount_point %q must be absolute", c.Store.MountPoint)
	}
	switch c.Snapshot.Compression {
	case "zstd", "lz4", "none":
	default:
		return fmt.Errorf("snapshot.compression %q: want zstd, lz4, or none", c.Snapshot.Compression)
	}
	for _, interval := range []Duration{
		c.Daemon.EnsureInterval,
		c.Daemon.StoreSyncInterval,
		c.Daemon.RepoSyncInterval,
		c.Daemon.SnapshotInterval,
		c.Daemon.Debounce,
	} {
		if interval < 0 {
			return fmt.Errorf("daemon intervals must not be negative")
		}
	}
	if c.Daemon.SnapshotCron != "" {
		if c.Daemon.SnapshotInterval > 0 {
			return fmt.Errorf("daemon.snapshot_cron and daemon.snapshot_interval are mutually exclusive")
		}
		if _, err := cron.Parse(c.Daemon.SnapshotCron); err != nil {
			return fmt.Errorf("daemon.snapshot_cron: %w", err)
		}
	}
	for _, recipient := range c.Repo.EscrowRecipients {
		if err := sealed.ValidateRecipient(recipient); err != nil {
			return fmt.Errorf("repo.escrow_recipients: %w", err)
		}
	}
	return nil
}

// expandPath expands a leading ~ and any ${VAR} references. Empty
// stays empty so derived defaults still apply.
func expandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(homeDir, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return os.ExpandEnv(path)
}
