// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSecretFile(t *testing.T, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("writing secret file: %v", err)
	}
	// WriteFile's mode is masked by umask; force the exact bits.
	if err := os.Chmod(path, mode); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	return path
}

func TestReadFromPath_TrimsWhitespace(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bare value", "hex-key-material"},
		{"trailing newline", "hex-key-material\n"},
		{"editor droppings", "  hex-key-material  \n"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			buffer, err := ReadFromPath(writeSecretFile(t, test.content, 0o600))
			if err != nil {
				t.Fatalf("ReadFromPath: %v", err)
			}
			defer buffer.Close()
			if buffer.String() != "hex-key-material" {
				t.Errorf("ReadFromPath = %q, want %q", buffer.String(), "hex-key-material")
			}
		})
	}
}

func TestReadFromPath_EmptyAfterTrim(t *testing.T) {
	for _, content := range []string{"", "   \n\t\n"} {
		if _, err := ReadFromPath(writeSecretFile(t, content, 0o600)); err == nil {
			t.Errorf("ReadFromPath(%q) should fail", content)
		}
	}
}

func TestReadFromPath_Missing(t *testing.T) {
	if _, err := ReadFromPath(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("ReadFromPath on a missing file should fail")
	}
}

func TestReadFromPath_RefusesLoosePermissions(t *testing.T) {
	for _, mode := range []os.FileMode{0o640, 0o644, 0o660, 0o604} {
		_, err := ReadFromPath(writeSecretFile(t, "key", mode))
		if err == nil {
			t.Errorf("ReadFromPath accepted mode %04o", mode)
			continue
		}
		if !strings.Contains(err.Error(), "refusing") {
			t.Errorf("mode %04o: error %q does not name the refusal", mode, err)
		}
	}
}

func TestReadFromPath_AcceptsOwnerOnlyModes(t *testing.T) {
	for _, mode := range []os.FileMode{0o600, 0o400, 0o700} {
		buffer, err := ReadFromPath(writeSecretFile(t, "key", mode))
		if err != nil {
			t.Errorf("ReadFromPath mode %04o: %v", mode, err)
			continue
		}
		buffer.Close()
	}
}
