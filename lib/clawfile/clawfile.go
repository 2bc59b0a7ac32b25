// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

// Package clawfile reads the gateway's configuration file. The file
// is JSONC (comments and trailing commas tolerated), lives at the
// config root as openclaw.json or under its legacy name, and doubles
// as the integrity marker the sync engine checks before mirroring:
// a config root without one is assumed corrupt or half-provisioned,
// and mirroring it would destroy the only good backup.
//
// The redaction pass rewrites credential-shaped fields before
// configuration is copied into the versioned backup repository.
package clawfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/tidwall/jsonc"
)

// Recognized configuration file names, in preference order.
const (
	ConfigFileName       = "openclaw.json"
	LegacyConfigFileName = "clawdbot.json"
)

// RedactionToken replaces credential-shaped values in redacted
// output.
const RedactionToken = "[REDACTED]"

// ErrNoConfig reports a config root with no recognized configuration
// file. The sync engine treats this as an integrity failure.
var ErrNoConfig = errors.New("no recognized configuration file")

// credentialKey matches field names that carry secret material.
// Matching is structural (by key name), never by value, so redaction
// cannot miss a secret because of its shape.
var credentialKey = regexp.MustCompile(`(?i)token|secret|password|passwd|api[-_]?key|credential|private[-_]?key|access[-_]?key`)

// Locate returns the path of the configuration file under configRoot,
// preferring the current name over the legacy one. Returns ErrNoConfig
// (wrapped) when neither exists.
func Locate(configRoot string) (string, error) {
	for _, name := range []string{ConfigFileName, LegacyConfigFileName} {
		path := filepath.Join(configRoot, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNoConfig, configRoot)
}

// Parse decodes JSONC configuration bytes into a generic document.
func Parse(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	return doc, nil
}

// Redact returns a deep copy of a parsed document with every
// credential-shaped field replaced by RedactionToken. The whole value
// is replaced, scalar or nested, so a credential object cannot leak
// through its members.
func Redact(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			if credentialKey.MatchString(key) {
				out[key] = RedactionToken
				continue
			}
			out[key] = Redact(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = Redact(val)
		}
		return out
	default:
		return value
	}
}

// RedactFile parses JSONC configuration bytes and returns the
// redacted document as plain indented JSON. Comments do not survive;
// the output is for the backup repository, not for editing.
func RedactFile(data []byte) ([]byte, error) {
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(Redact(doc), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding redacted configuration: %w", err)
	}
	return append(out, '\n'), nil
}
