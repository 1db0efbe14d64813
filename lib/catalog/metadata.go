// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"slices"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/quartermaster-backup/quartermaster/lib/atomicfile"
)

// MetadataVersion is written to every new sidecar.
const MetadataVersion = "1.0"

// CreatedBy identifies sidecars written by this program.
const CreatedBy = "quartermaster"

// Importance levels.
const (
	ImportanceCritical = "critical"
	ImportanceHigh     = "high"
	ImportanceNormal   = "normal"
	ImportanceLow      = "low"
)

// Importances lists the valid importance levels.
var Importances = []string{ImportanceCritical, ImportanceHigh, ImportanceNormal, ImportanceLow}

// Metadata is the content of an archive's JSON sidecar.
type Metadata struct {
	BackupName  string `json:"backup_name"`
	ItemName    string `json:"item_name"`
	ItemType    Kind   `json:"item_type"`
	Description string `json:"description,omitempty"`

	Timestamp Time    `json:"timestamp"`
	SizeBytes int64   `json:"size_bytes"`
	SizeMB    float64 `json:"size_mb"`

	// ChecksumSHA256 is the hex SHA-256 of the archive. Digest carries
	// the algorithm-qualified digest the archive was built with, which
	// may be BLAKE3.
	ChecksumSHA256 string `json:"checksum_sha256"`
	Digest         string `json:"digest,omitempty"`

	BackupType  BackupType `json:"backup_type,omitempty"`
	Compression string     `json:"compression,omitempty"`
	CreatedBy   string     `json:"created_by"`
	Version     string     `json:"version"`

	Tags        []string `json:"tags"`
	Importance  string   `json:"importance"`
	KeepForever bool     `json:"keep_forever"`
	Pinned      bool     `json:"pinned"`

	FilesAdded   int    `json:"files_added,omitempty"`
	FilesSkipped int    `json:"files_skipped,omitempty"`
	BaseBackup   string `json:"base_backup,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// SetSize fills SizeBytes and the rounded SizeMB.
func (m *Metadata) SetSize(size int64) {
	m.SizeBytes = size
	m.SizeMB = math.Round(float64(size)/(1024*1024)*100) / 100
}

// HasTag reports whether the sidecar carries tag.
func (m Metadata) HasTag(tag string) bool {
	return slices.Contains(m.Tags, tag)
}

// Tagged reports whether anything marks this backup as special: tags,
// pinning, or an importance other than normal.
func (m Metadata) Tagged() bool {
	return len(m.Tags) > 0 || m.KeepForever || m.Pinned ||
		(m.Importance != "" && m.Importance != ImportanceNormal)
}

// ReadMetadata reads a sidecar. Comments and trailing commas are
// tolerated.
func ReadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, err
	}
	var metadata Metadata
	if err := json.Unmarshal(jsonc.ToJSON(data), &metadata); err != nil {
		return Metadata{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return metadata, nil
}

// WriteMetadata atomically writes a sidecar with mode 0600. Missing
// version, creator, and importance fields are filled in.
func WriteMetadata(path string, metadata Metadata) error {
	if metadata.Version == "" {
		metadata.Version = MetadataVersion
	}
	if metadata.CreatedBy == "" {
		metadata.CreatedBy = CreatedBy
	}
	if metadata.Importance == "" {
		metadata.Importance = ImportanceNormal
	}
	if metadata.Tags == nil {
		metadata.Tags = []string{}
	}
	return atomicfile.WriteJSON(path, metadata, 0600)
}

// legacyTimeLayouts are zone-less forms found in older sidecars.
var legacyTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Time is a sidecar timestamp. It marshals as RFC 3339 and also
// accepts zone-less ISO 8601 values, interpreted as local time.
type Time struct {
	time.Time
}

// MarshalJSON implements json.Marshaler.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Time) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if text == "" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, text); err == nil {
		t.Time = parsed
		return nil
	}
	for _, layout := range legacyTimeLayouts {
		if parsed, err := time.ParseInLocation(layout, text, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp %q: unrecognised format", text)
}
