// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Kind is the type of item an archive belongs to.
type Kind string

const (
	KindProject  Kind = "project"
	KindDatabase Kind = "database"
	KindGit      Kind = "git"
)

// Kinds lists every item kind in directory order.
var Kinds = []Kind{KindProject, KindDatabase, KindGit}

// ParseKind accepts a kind name in singular or plural form.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(name) {
	case "project", "projects":
		return KindProject, nil
	case "database", "databases", "db":
		return KindDatabase, nil
	case "git":
		return KindGit, nil
	}
	return "", fmt.Errorf("unknown item kind %q (want project, database, or git)", name)
}

// Directory is the kind's subdirectory of the local base.
func (k Kind) Directory() string {
	switch k {
	case KindProject:
		return "projects"
	case KindDatabase:
		return "databases"
	default:
		return string(k)
	}
}

// BackupType distinguishes archive flavours.
type BackupType string

const (
	TypeFull        BackupType = "full"
	TypeIncremental BackupType = "incremental"
	TypeComplete    BackupType = "complete"
	TypeDump        BackupType = "dump"
	TypeBundle      BackupType = "bundle"
)

// Archive file extensions.
const (
	ExtTarGzip    = ".tar.gz"
	ExtTarZstd    = ".tar.zst"
	ExtTarLZ4     = ".tar.lz4"
	ExtSQLGzip    = ".sql.gz"
	ExtSQLiteGzip = ".sqlite.gz"
	ExtBundle     = ".bundle"
)

var archiveExtensions = []string{ExtTarGzip, ExtTarZstd, ExtTarLZ4, ExtSQLiteGzip, ExtSQLGzip, ExtBundle}

// TimestampLayout is the time format embedded in archive names.
const TimestampLayout = "20060102_150405"

// ArchiveExtension returns the archive extension of filename.
func ArchiveExtension(filename string) (string, bool) {
	for _, extension := range archiveExtensions {
		if strings.HasSuffix(filename, extension) && len(filename) > len(extension) {
			return extension, true
		}
	}
	return "", false
}

// IsArchive reports whether filename carries an archive extension.
func IsArchive(filename string) bool {
	_, ok := ArchiveExtension(filename)
	return ok
}

// SidecarName maps an archive file name to its metadata file name.
// Names without a known archive extension get ".json" appended.
func SidecarName(archive string) string {
	if extension, ok := ArchiveExtension(archive); ok {
		return strings.TrimSuffix(archive, extension) + ".json"
	}
	return archive + ".json"
}

// SidecarPath maps an archive path to its metadata path.
func SidecarPath(archivePath string) string {
	return filepath.Join(filepath.Dir(archivePath), SidecarName(filepath.Base(archivePath)))
}

// ArchiveName is the parsed form of an archive file name.
type ArchiveName struct {
	Item      string
	Time      time.Time
	Type      BackupType
	Extension string
}

// String renders the file name:
//
//	<item>_<ts>_full<ext>    full
//	<item>_<ts>_incr<ext>    incremental
//	<item>_complete<ext>     complete
//	<item>_<ts><ext>         dump, bundle
func (n ArchiveName) String() string {
	stamp := n.Time.Format(TimestampLayout)
	switch n.Type {
	case TypeFull:
		return n.Item + "_" + stamp + "_full" + n.Extension
	case TypeIncremental:
		return n.Item + "_" + stamp + "_incr" + n.Extension
	case TypeComplete:
		return n.Item + "_complete" + n.Extension
	default:
		return n.Item + "_" + stamp + n.Extension
	}
}

// ParseArchiveName parses a name produced by ArchiveName.String.
// Timestamps are interpreted in the local zone, which is the zone they
// are written in.
func ParseArchiveName(filename string) (ArchiveName, error) {
	extension, ok := ArchiveExtension(filename)
	if !ok {
		return ArchiveName{}, fmt.Errorf("%q is not an archive name", filename)
	}
	stem := strings.TrimSuffix(filename, extension)
	name := ArchiveName{Extension: extension}

	if item, ok := strings.CutSuffix(stem, "_complete"); ok && item != "" {
		name.Item = item
		name.Type = TypeComplete
		return name, nil
	}
	if trimmed, ok := strings.CutSuffix(stem, "_full"); ok {
		stem, name.Type = trimmed, TypeFull
	} else if trimmed, ok := strings.CutSuffix(stem, "_incr"); ok {
		stem, name.Type = trimmed, TypeIncremental
	}

	const stampLength = len(TimestampLayout)
	if len(stem) < stampLength+2 || stem[len(stem)-stampLength-1] != '_' {
		return ArchiveName{}, fmt.Errorf("%q has no timestamp", filename)
	}
	stamp, err := time.ParseInLocation(TimestampLayout, stem[len(stem)-stampLength:], time.Local)
	if err != nil {
		return ArchiveName{}, fmt.Errorf("%q has no timestamp", filename)
	}
	name.Item = stem[:len(stem)-stampLength-1]
	name.Time = stamp

	if name.Type == "" {
		switch extension {
		case ExtBundle:
			name.Type = TypeBundle
		case ExtSQLGzip, ExtSQLiteGzip:
			name.Type = TypeDump
		default:
			name.Type = TypeFull
		}
	}
	return name, nil
}

// LatestLinkName is the name of the symlink pointing at the newest
// archive of a type. Complete archives have their own link.
func LatestLinkName(backupType BackupType, extension string) string {
	if backupType == TypeComplete {
		return "latest_complete" + extension
	}
	return "latest" + extension
}

// Layout maps items to paths under the local base.
type Layout struct {
	Base string
}

// KindDir returns <base>/<kind directory>.
func (l Layout) KindDir(kind Kind) string {
	return filepath.Join(l.Base, kind.Directory())
}

// Dir returns the directory holding an item's archives.
func (l Layout) Dir(kind Kind, item string) string {
	return filepath.Join(l.Base, kind.Directory(), item)
}

// LogsDir returns <base>/logs.
func (l Layout) LogsDir() string {
	return filepath.Join(l.Base, "logs")
}

// SnapshotPath returns the incremental snapshot index of a project.
func (l Layout) SnapshotPath(project string) string {
	return filepath.Join(l.Dir(KindProject, project), "."+project+"_snapshot.cbor")
}

// LockPath returns the per-item lock file.
func (l Layout) LockPath(kind Kind, item string) string {
	return filepath.Join(l.Dir(kind, item), ".lock")
}

// StatePath returns the scheduler state file.
func (l Layout) StatePath() string {
	return filepath.Join(l.Base, ".quartermaster_state.json")
}
