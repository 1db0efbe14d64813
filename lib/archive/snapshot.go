// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/zeebo/blake3"

	"github.com/quartermaster-backup/quartermaster/lib/atomicfile"
	"github.com/quartermaster-backup/quartermaster/lib/codec"
)

// snapshotVersion is bumped when FileState changes incompatibly.
const snapshotVersion = 1

// FileState is what an incremental build remembers about one file.
type FileState struct {
	ModTime     int64       `cbor:"1,keyasint"`
	Size        int64       `cbor:"2,keyasint"`
	Mode        os.FileMode `cbor:"3,keyasint"`
	Fingerprint []byte      `cbor:"4,keyasint,omitempty"`
}

// Snapshot indexes the regular files of a source tree at build time,
// keyed by slash-separated path relative to the source root.
type Snapshot struct {
	Version int                  `cbor:"1,keyasint"`
	Created time.Time            `cbor:"2,keyasint"`
	Archive string               `cbor:"3,keyasint"`
	Files   map[string]FileState `cbor:"4,keyasint"`
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{Version: snapshotVersion, Files: make(map[string]FileState)}
}

// Unchanged reports whether a file may be left out of an incremental
// archive: its mtime is not newer than the recorded one and its size is
// equal. When fingerprint is non-nil it must also match.
func (s *Snapshot) Unchanged(relative string, modTime time.Time, size int64, fingerprint []byte) bool {
	if s == nil {
		return false
	}
	previous, ok := s.Files[relative]
	if !ok {
		return false
	}
	if modTime.UnixNano() > previous.ModTime || size != previous.Size {
		return false
	}
	if fingerprint != nil && !bytes.Equal(fingerprint, previous.Fingerprint) {
		return false
	}
	return true
}

// LoadSnapshot reads a snapshot written by Save. A missing file
// returns an error satisfying errors.Is(err, os.ErrNotExist).
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	snapshot := NewSnapshot()
	if err := codec.Unmarshal(data, snapshot); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", path, err)
	}
	if snapshot.Version != snapshotVersion {
		return nil, fmt.Errorf("snapshot %s has version %d, want %d", path, snapshot.Version, snapshotVersion)
	}
	if snapshot.Files == nil {
		snapshot.Files = make(map[string]FileState)
	}
	return snapshot, nil
}

// Save writes the snapshot atomically with mode 0600.
func (s *Snapshot) Save(path string) error {
	data, err := codec.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return atomicfile.WriteFile(path, data, 0600)
}

// Fingerprint returns the BLAKE3-256 hash of a file's content.
func Fingerprint(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return nil, err
	}
	return hasher.Sum(nil), nil
}
