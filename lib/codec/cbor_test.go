// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
	"time"
)

type fileEntry struct {
	ModTime time.Time `cbor:"mtime"`
	Size    int64     `cbor:"size"`
	Mode    uint32    `cbor:"mode"`
}

type index struct {
	Version int                  `cbor:"version"`
	Files   map[string]fileEntry `cbor:"files"`
}

func sampleIndex() index {
	stamp := time.Date(2026, 5, 4, 12, 30, 0, 123456789, time.UTC)
	return index{
		Version: 2,
		Files: map[string]fileEntry{
			"src/main.go":     {ModTime: stamp, Size: 812, Mode: 0644},
			"README.md":       {ModTime: stamp.Add(time.Hour), Size: 90, Mode: 0644},
			"bin/deploy.sh":   {ModTime: stamp.Add(-time.Hour), Size: 4011, Mode: 0755},
			"assets/logo.png": {ModTime: stamp, Size: 20480, Mode: 0600},
		},
	}
}

func TestMarshalUnmarshal(t *testing.T) {
	original := sampleIndex()

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded index
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded.Version != original.Version || len(decoded.Files) != len(original.Files) {
		t.Fatalf("decoded = %+v", decoded)
	}
	for path, want := range original.Files {
		got, ok := decoded.Files[path]
		if !ok {
			t.Errorf("missing %s", path)
			continue
		}
		if !got.ModTime.Equal(want.ModTime) || got.Size != want.Size || got.Mode != want.Mode {
			t.Errorf("%s = %+v, want %+v", path, got, want)
		}
	}
}

func TestMarshalDeterministic(t *testing.T) {
	first, err := Marshal(sampleIndex())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for attempt := range 20 {
		again, err := Marshal(sampleIndex())
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("attempt %d produced different bytes for the same index", attempt)
		}
	}
}

func TestStreaming(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for version := 1; version <= 3; version++ {
		if err := encoder.Encode(index{Version: version}); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for version := 1; version <= 3; version++ {
		var got index
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got.Version != version {
			t.Errorf("Decode version = %d, want %d", got.Version, version)
		}
	}
}
