// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type launchRecordLike struct {
	PID         int    `cbor:"pid"`
	Fingerprint string `cbor:"fingerprint"`
	Port        int    `cbor:"port"`
}

func TestMarshalDeterministic(t *testing.T) {
	record := launchRecordLike{PID: 4242, Fingerprint: "A,B,C", Port: 18789}

	first, err := Marshal(record)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(record)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("identical values produced different encodings")
	}
}

func TestRoundTrip(t *testing.T) {
	in := launchRecordLike{PID: 7, Fingerprint: "X", Port: 80}

	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out launchRecordLike
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	data, err := Marshal(map[string]any{
		"pid":         9,
		"fingerprint": "A",
		"port":        1,
		"added_later": "ignored",
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out launchRecordLike
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.PID != 9 || out.Fingerprint != "A" {
		t.Errorf("decoded = %+v, want pid=9 fingerprint=A", out)
	}
}

func TestAnyTargetDecodesStringKeyedMaps(t *testing.T) {
	data, err := Marshal(map[string]any{"outer": map[string]any{"inner": 1}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out any
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	top, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", out)
	}
	if _, ok := top["outer"].(map[string]any); !ok {
		t.Errorf("nested type = %T, want map[string]any", top["outer"])
	}
}

func TestStreamEncoderDecoder(t *testing.T) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(launchRecordLike{PID: 1}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := NewEncoder(&buf).Encode(launchRecordLike{PID: 2}); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoder := NewDecoder(&buf)
	for want := 1; want <= 2; want++ {
		var out launchRecordLike
		if err := decoder.Decode(&out); err != nil {
			t.Fatalf("Decode %d: %v", want, err)
		}
		if out.PID != want {
			t.Errorf("PID = %d, want %d", out.PID, want)
		}
	}
}
