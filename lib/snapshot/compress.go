// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the codec applied to an archive payload.
// The tag is stored in the snapshot envelope header (1 byte). These
// values are format constants — changing them breaks existing
// snapshot objects.
type CompressionTag uint8

const (
	// CompressionNone indicates an uncompressed payload.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 indicates an LZ4 frame. Faster than zstd with a
	// weaker ratio; worth it on CPU-starved hosts.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd indicates a zstd frame at the default level.
	// The right choice for gateway state, which is mostly JSON and
	// markdown.
	CompressionZstd CompressionTag = 2
)

// String returns the codec name as it appears in configuration and
// manifests.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseCompressionTag parses a codec name.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression tag: %q", name)
	}
}

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization overhead. Both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("snapshot: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("snapshot: zstd decoder initialization failed: " + err.Error())
	}
}

// compressArchive applies the requested codec, falling back to
// CompressionNone when the payload does not shrink. The returned tag
// is what actually got applied.
func compressArchive(data []byte, requested CompressionTag) ([]byte, CompressionTag, error) {
	switch requested {
	case CompressionNone:
		return data, CompressionNone, nil

	case CompressionLZ4:
		compressed, err := compressLZ4(data)
		if err != nil {
			if isIncompressible(err) {
				return data, CompressionNone, nil
			}
			return nil, 0, err
		}
		return compressed, CompressionLZ4, nil

	case CompressionZstd:
		compressed, err := compressZstd(data)
		if err != nil {
			if isIncompressible(err) {
				return data, CompressionNone, nil
			}
			return nil, 0, err
		}
		return compressed, CompressionZstd, nil

	default:
		return nil, 0, fmt.Errorf("unsupported compression tag: %d", requested)
	}
}

// decompressArchive reverses compressArchive. Frame formats carry
// their own framing, so no expected size is needed.
func decompressArchive(payload []byte, tag CompressionTag) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return payload, nil
	case CompressionLZ4:
		return decompressLZ4(payload)
	case CompressionZstd:
		return decompressZstd(payload)
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// LZ4 uses frame mode rather than block mode: an archive is a single
// self-contained object with no side channel for the uncompressed
// size.

func compressLZ4(data []byte) ([]byte, error) {
	var buffer bytes.Buffer
	writer := lz4.NewWriter(&buffer)
	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if buffer.Len() >= len(data) {
		return nil, errIncompressible
	}
	return buffer.Bytes(), nil
}

func decompressLZ4(compressed []byte) ([]byte, error) {
	data, err := io.ReadAll(lz4.NewReader(bytes.NewReader(compressed)))
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	return data, nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte) ([]byte, error) {
	data, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return data, nil
}

// errIncompressible reports that compression would not shrink the
// payload; the caller stores it uncompressed instead.
var errIncompressible = fmt.Errorf("data is incompressible")

func isIncompressible(err error) bool {
	return err == errIncompressible
}
