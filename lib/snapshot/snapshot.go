// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot builds point-in-time archives of the gateway state
// for upload to the snapshot bucket. The mirror backends maintain one
// mutable copy of current state; snapshots complement them with
// immutable recovery points, so corruption that a later sync would
// faithfully mirror stays recoverable.
//
// An archive is a tar of the config, workspace, and skills trees,
// compressed (zstd by default) and optionally encrypted with
// XChaCha20-Poly1305 under a key derived per object from a 32-byte
// master key. Every stored object starts with a fixed envelope header
// recording format version, codec, and encryption flag; the header and
// the object name are authenticated, so a snapshot renamed in the
// bucket fails to open.
//
// Alongside each archive the builder emits a manifest object listing
// every archived file with size, mode, and BLAKE3 digest, plus the
// digest of the finished archive object for download verification. The
// manifest goes through the same envelope pipeline as the archive.
package snapshot

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/openclaw-infra/keeper/lib/binhash"
	"github.com/openclaw-infra/keeper/lib/clawfile"
	"github.com/openclaw-infra/keeper/lib/clock"
	"github.com/openclaw-infra/keeper/lib/codec"
	"github.com/openclaw-infra/keeper/lib/config"
	"github.com/openclaw-infra/keeper/lib/secret"
	"github.com/openclaw-infra/keeper/lib/statesync"
)

// Envelope layout: 4-byte magic, version byte, compression tag byte,
// flags byte, then the payload. These are format constants.
const (
	envelopeVersion = 0x01
	headerSize      = 7
	flagEncrypted   = 0x01

	objectSuffix   = ".snap"
	manifestSuffix = ".manifest"
	nameTimeLayout = "20060102T150405Z"
)

var envelopeMagic = [4]byte{'O', 'C', 'S', 'N'}

// Entry describes one archived file.
type Entry struct {
	Path   string `cbor:"path"`
	Size   int64  `cbor:"size"`
	Mode   uint32 `cbor:"mode"`
	Digest string `cbor:"digest"`
}

// Manifest describes a snapshot archive: what it contains and how the
// stored object can be verified before opening it.
type Manifest struct {
	Name         string    `cbor:"name"`
	CreatedAt    time.Time `cbor:"created_at"`
	Compression  string    `cbor:"compression"`
	Encrypted    bool      `cbor:"encrypted"`
	ObjectSize   int64     `cbor:"object_size"`
	ObjectDigest string    `cbor:"object_digest"`
	Entries      []Entry   `cbor:"entries"`
}

// Archive is a finished snapshot ready for upload: the enveloped
// archive object, its manifest object, and the object names to store
// them under.
type Archive struct {
	Name         string
	ManifestName string
	Data         []byte
	Manifest     Manifest
	ManifestData []byte
}

// Builder creates snapshot archives from the live gateway state.
type Builder struct {
	cfg         *config.Config
	logger      *slog.Logger
	clk         clock.Clock
	compression CompressionTag
	prefix      string
	master      *secret.Buffer
}

// New returns a Builder for cfg. When cfg.Snapshot.KeyFile is set the
// master key is loaded now and held until Close.
func New(cfg *config.Config, logger *slog.Logger, clk clock.Clock) (*Builder, error) {
	tag, err := ParseCompressionTag(cfg.Snapshot.Compression)
	if err != nil {
		return nil, err
	}

	prefix := cfg.Snapshot.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	builder := &Builder{
		cfg:         cfg,
		logger:      logger,
		clk:         clk,
		compression: tag,
		prefix:      prefix,
	}
	if cfg.Snapshot.KeyFile != "" {
		master, err := LoadKey(cfg.Snapshot.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading snapshot key: %w", err)
		}
		builder.master = master
	}
	return builder, nil
}

// Close releases the master key, if one was loaded.
func (b *Builder) Close() error {
	if b.master == nil {
		return nil
	}
	err := b.master.Close()
	b.master = nil
	return err
}

// Create archives the current gateway state. Like the store sync, it
// refuses to run when the config root lacks a recognized gateway
// config: a snapshot of empty state is a trap for whoever restores it.
func (b *Builder) Create(ctx context.Context) (*Archive, error) {
	if _, err := clawfile.Locate(b.cfg.Gateway.ConfigRoot); err != nil {
		return nil, &statesync.Error{
			Kind: statesync.FailureSyncIntegrity,
			Err:  fmt.Errorf("refusing to snapshot: %w", err),
		}
	}

	createdAt := b.clk.Now().UTC()
	name := b.prefix + createdAt.Format(nameTimeLayout) + objectSuffix

	tarData, entries, err := b.buildTar(ctx)
	if err != nil {
		return nil, err
	}

	object, applied, err := b.seal(name, tarData)
	if err != nil {
		return nil, err
	}

	manifest := Manifest{
		Name:         name,
		CreatedAt:    createdAt,
		Compression:  applied.String(),
		Encrypted:    b.master != nil,
		ObjectSize:   int64(len(object)),
		ObjectDigest: binhash.FormatDigest(binhash.HashBytes(object)),
		Entries:      entries,
	}
	manifestData, err := codec.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot manifest: %w", err)
	}

	manifestName := name + manifestSuffix
	manifestObject, _, err := b.seal(manifestName, manifestData)
	if err != nil {
		return nil, err
	}

	b.logger.Info("snapshot archive built",
		"name", name,
		"entries", len(entries),
		"archive_bytes", len(object),
		"compression", applied.String(),
		"encrypted", b.master != nil)

	return &Archive{
		Name:         name,
		ManifestName: manifestName,
		Data:         object,
		Manifest:     manifest,
		ManifestData: manifestObject,
	}, nil
}

// seal wraps plaintext in the envelope: compress (falling back to
// uncompressed when the codec does not shrink it), encrypt when a
// master key is loaded, and prepend the header. The returned tag is
// the codec actually applied.
func (b *Builder) seal(name string, plaintext []byte) ([]byte, CompressionTag, error) {
	payload, applied, err := compressArchive(plaintext, b.compression)
	if err != nil {
		return nil, 0, err
	}

	var flags byte
	if b.master != nil {
		flags |= flagEncrypted
	}

	header := make([]byte, 0, headerSize)
	header = append(header, envelopeMagic[:]...)
	header = append(header, envelopeVersion, byte(applied), flags)

	if b.master != nil {
		payload, err = sealPayload(b.master, name, header, payload)
		if err != nil {
			return nil, 0, err
		}
	}

	object := make([]byte, 0, len(header)+len(payload))
	object = append(object, header...)
	return append(object, payload...), applied, nil
}

// tarTarget is one tree to archive under a fixed top-level prefix.
// The prefixes match the store layout, so an extracted snapshot looks
// exactly like the durable store.
type tarTarget struct {
	prefix   string
	source   string
	excludes []string
}

func (b *Builder) targets() []tarTarget {
	gw := b.cfg.Gateway

	configExcludes := []string{statesync.SyncMarkerName}
	if rel, ok := gw.SkillsWithinConfig(); ok {
		configExcludes = append(configExcludes, rel)
	}

	return []tarTarget{
		{prefix: "config", source: gw.ConfigRoot, excludes: configExcludes},
		{prefix: "workspace", source: gw.WorkspaceRoot},
		{prefix: "skills", source: gw.SkillsDir},
	}
}

func (b *Builder) buildTar(ctx context.Context) ([]byte, []Entry, error) {
	var buffer bytes.Buffer
	writer := tar.NewWriter(&buffer)

	var entries []Entry
	for _, target := range b.targets() {
		added, err := b.addTree(ctx, writer, target)
		if err != nil {
			return nil, nil, fmt.Errorf("archiving %s: %w", target.prefix, err)
		}
		entries = append(entries, added...)
	}

	if err := writer.Close(); err != nil {
		return nil, nil, fmt.Errorf("finalizing archive: %w", err)
	}
	return buffer.Bytes(), entries, nil
}

func (b *Builder) addTree(ctx context.Context, writer *tar.Writer, target tarTarget) ([]Entry, error) {
	if _, err := os.Stat(target.source); errors.Is(err, fs.ErrNotExist) {
		b.logger.Debug("snapshot target missing, skipping",
			"target", target.prefix, "path", target.source)
		return nil, nil
	}

	var entries []Entry
	err := filepath.WalkDir(target.source, func(current string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(target.source, current)
		if err != nil {
			return err
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		if rel == "." {
			return writer.WriteHeader(&tar.Header{
				Name:     target.prefix + "/",
				Typeflag: tar.TypeDir,
				Mode:     int64(info.Mode().Perm()),
				ModTime:  info.ModTime(),
			})
		}
		if excludedEntry(rel, target.excludes) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := path.Join(target.prefix, filepath.ToSlash(rel))
		if entry.IsDir() {
			return writer.WriteHeader(&tar.Header{
				Name:     name + "/",
				Typeflag: tar.TypeDir,
				Mode:     int64(info.Mode().Perm()),
				ModTime:  info.ModTime(),
			})
		}
		if !info.Mode().IsRegular() {
			// Sockets, pipes, and symlinks do not belong in a backup.
			return nil
		}

		added, err := b.addFile(writer, current, name, info)
		if err != nil {
			return err
		}
		entries = append(entries, added)
		return nil
	})
	return entries, err
}

// addFile writes one regular file into the archive, hashing it in the
// same pass.
func (b *Builder) addFile(writer *tar.Writer, current, name string, info fs.FileInfo) (Entry, error) {
	header := &tar.Header{
		Name:    name,
		Mode:    int64(info.Mode().Perm()),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if err := writer.WriteHeader(header); err != nil {
		return Entry{}, err
	}

	file, err := os.Open(current)
	if err != nil {
		return Entry{}, err
	}
	defer file.Close()

	hasher := binhash.NewHasher()
	written, err := io.Copy(io.MultiWriter(writer, hasher), file)
	if err != nil {
		return Entry{}, fmt.Errorf("copying %s: %w", name, err)
	}
	if written != info.Size() {
		return Entry{}, fmt.Errorf("file %s changed while archiving", name)
	}

	return Entry{
		Path:   name,
		Size:   written,
		Mode:   uint32(info.Mode().Perm()),
		Digest: binhash.FormatDigest(binhash.Sum(hasher)),
	}, nil
}

// excludedEntry reports whether a path relative to a target root is
// excluded from the archive. Exclusion prefixes cover whole subtrees;
// transient names are matched on the base name, same as the mirror
// backends.
func excludedEntry(rel string, excludes []string) bool {
	for _, exclude := range excludes {
		if rel == exclude || strings.HasPrefix(rel, exclude+string(filepath.Separator)) {
			return true
		}
	}
	base := filepath.Base(rel)
	for _, pattern := range statesync.TransientPatterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

// ReadManifest opens a stored manifest object. master may be nil for
// unencrypted snapshots. name must be the object name the manifest was
// stored under.
func ReadManifest(object []byte, name string, master *secret.Buffer) (*Manifest, error) {
	data, err := open(object, name, master)
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := codec.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decoding snapshot manifest: %w", err)
	}
	return &manifest, nil
}

// Extract unpacks a stored archive object under destDir, recreating
// the config, workspace, and skills trees. master may be nil for
// unencrypted snapshots; for encrypted ones, an authentication failure
// means the wrong key, a renamed object, or corruption. Entries other
// than regular files and directories are ignored.
func Extract(object []byte, name string, master *secret.Buffer, destDir string) error {
	data, err := open(object, name, master)
	if err != nil {
		return err
	}

	reader := tar.NewReader(bytes.NewReader(data))
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading snapshot archive: %w", err)
		}

		target, err := securePath(destDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, header.FileInfo().Mode().Perm()); err != nil {
				return fmt.Errorf("creating directory: %w", err)
			}
		case tar.TypeReg:
			if err := extractFile(reader, target, header.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		}
	}
}

// open validates the envelope and returns the decrypted, decompressed
// payload.
func open(object []byte, name string, master *secret.Buffer) ([]byte, error) {
	if len(object) < headerSize {
		return nil, fmt.Errorf("snapshot object truncated: %d bytes", len(object))
	}
	if !bytes.Equal(object[:len(envelopeMagic)], envelopeMagic[:]) {
		return nil, errors.New("not a snapshot object: bad magic")
	}
	if object[4] != envelopeVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", object[4])
	}
	compression := CompressionTag(object[5])
	flags := object[6]
	if flags&^byte(flagEncrypted) != 0 {
		return nil, fmt.Errorf("unsupported snapshot flags 0x%02x", flags)
	}

	payload := object[headerSize:]
	if flags&flagEncrypted != 0 {
		if master == nil {
			return nil, fmt.Errorf("snapshot object %s is encrypted and no key was provided", name)
		}
		opened, err := openPayload(master, name, object[:headerSize], payload)
		if err != nil {
			return nil, err
		}
		payload = opened
	}
	return decompressArchive(payload, compression)
}

func extractFile(reader io.Reader, target string, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", target, err)
	}
	return file.Close()
}

// securePath resolves a tar entry name under destDir, rejecting
// absolute names and any name that would escape destDir.
func securePath(destDir, name string) (string, error) {
	clean := path.Clean(name)
	if clean == "" || clean == "." || path.IsAbs(clean) ||
		clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("snapshot entry has unsafe path %q", name)
	}
	return filepath.Join(destDir, filepath.FromSlash(clean)), nil
}
