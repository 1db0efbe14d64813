// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ErrNoBackups is returned when an item has no archives.
var ErrNoBackups = errors.New("no backups found")

// Backup is one archive on disk with its metadata.
type Backup struct {
	Path     string
	Kind     Kind
	Item     string
	Metadata Metadata

	// HasSidecar is false when Metadata was synthesized from the file
	// name and stat because no sidecar exists.
	HasSidecar bool

	ModTime time.Time
	Size    int64
}

// Name returns the archive file name.
func (b Backup) Name() string { return filepath.Base(b.Path) }

// SidecarPath returns the path of the archive's metadata file.
func (b Backup) SidecarPath() string { return SidecarPath(b.Path) }

// Time is when the backup was taken: the sidecar timestamp, falling
// back to the file modification time.
func (b Backup) Time() time.Time {
	if !b.Metadata.Timestamp.IsZero() {
		return b.Metadata.Timestamp.Time
	}
	return b.ModTime
}

// Catalog reads the archive tree under a local base directory.
type Catalog struct {
	Layout Layout
	Logger *slog.Logger
}

// New returns a Catalog rooted at base. A nil logger discards.
func New(base string, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Catalog{Layout: Layout{Base: base}, Logger: logger}
}

// Items lists the item directories of a kind, sorted by name. A
// missing kind directory yields an empty list.
func (c *Catalog) Items(kind Kind) ([]string, error) {
	entries, err := os.ReadDir(c.Layout.KindDir(kind))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", kind.Directory(), err)
	}
	var items []string
	for _, entry := range entries {
		if entry.IsDir() && ValidateIdentifier(entry.Name()) == nil && !strings.HasPrefix(entry.Name(), ".") {
			items = append(items, entry.Name())
		}
	}
	return items, nil
}

// List returns an item's archives newest first. Latest links, hidden
// files, and sidecars are not archives. Archives without a sidecar are
// listed with metadata synthesized from the file name and stat. A
// missing item directory yields an empty list.
func (c *Catalog) List(kind Kind, item string) ([]Backup, error) {
	directory := c.Layout.Dir(kind, item)
	entries, err := os.ReadDir(directory)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s/%s: %w", kind.Directory(), item, err)
	}

	var backups []Backup
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || strings.HasPrefix(name, ".") || !IsArchive(name) {
			continue
		}
		backup, err := c.load(kind, item, filepath.Join(directory, name))
		if err != nil {
			c.Logger.Warn("skipping unreadable archive", "path", filepath.Join(directory, name), "error", err)
			continue
		}
		backups = append(backups, backup)
	}
	sortNewestFirst(backups)
	return backups, nil
}

func sortNewestFirst(backups []Backup) {
	slices.SortStableFunc(backups, func(a, b Backup) int {
		if order := b.Time().Compare(a.Time()); order != 0 {
			return order
		}
		return cmp.Compare(b.Name(), a.Name())
	})
}

// Stat loads one archive by path.
func (c *Catalog) Stat(kind Kind, item, path string) (Backup, error) {
	return c.load(kind, item, path)
}

func (c *Catalog) load(kind Kind, item, path string) (Backup, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Backup{}, err
	}
	backup := Backup{
		Path:    path,
		Kind:    kind,
		Item:    item,
		ModTime: info.ModTime(),
		Size:    info.Size(),
	}

	metadata, err := ReadMetadata(SidecarPath(path))
	switch {
	case err == nil:
		backup.Metadata = metadata
		backup.HasSidecar = true
	case errors.Is(err, os.ErrNotExist):
		backup.Metadata = synthesize(kind, item, filepath.Base(path), info)
	default:
		c.Logger.Warn("unreadable sidecar, synthesizing metadata", "path", SidecarPath(path), "error", err)
		backup.Metadata = synthesize(kind, item, filepath.Base(path), info)
	}
	if backup.Metadata.BackupName == "" {
		backup.Metadata.BackupName = filepath.Base(path)
	}
	return backup, nil
}

func synthesize(kind Kind, item, filename string, info os.FileInfo) Metadata {
	metadata := Metadata{
		BackupName: filename,
		ItemName:   item,
		ItemType:   kind,
		Timestamp:  Time{info.ModTime()},
		Version:    MetadataVersion,
		Importance: ImportanceNormal,
	}
	metadata.SetSize(info.Size())
	if parsed, err := ParseArchiveName(filename); err == nil {
		metadata.BackupType = parsed.Type
		if !parsed.Time.IsZero() {
			metadata.Timestamp = Time{parsed.Time}
		}
	}
	return metadata
}

// Find returns the archive called filename of an item. The name must be
// a plain file name.
func (c *Catalog) Find(kind Kind, item, filename string) (Backup, error) {
	if err := ValidateIdentifier(item); err != nil {
		return Backup{}, err
	}
	if err := ValidateBackupFilename(filename); err != nil {
		return Backup{}, err
	}
	path := filepath.Join(c.Layout.Dir(kind, item), filename)
	backup, err := c.load(kind, item, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Backup{}, fmt.Errorf("backup %s not found for %s %s: %w", filename, kind, item, ErrNoBackups)
		}
		return Backup{}, err
	}
	return backup, nil
}

// Latest returns the newest non-complete archive of an item.
func (c *Catalog) Latest(kind Kind, item string) (Backup, error) {
	backups, err := c.List(kind, item)
	if err != nil {
		return Backup{}, err
	}
	for _, backup := range backups {
		if backup.Metadata.BackupType != TypeComplete {
			return backup, nil
		}
	}
	return Backup{}, fmt.Errorf("%s %s: %w", kind, item, ErrNoBackups)
}

// UpdateLatestLink points linkName in the archive's directory at the
// archive. The link target is relative and the link is replaced with a
// rename, so readers never see it missing.
func UpdateLatestLink(archivePath, linkName string) error {
	directory := filepath.Dir(archivePath)
	link := filepath.Join(directory, linkName)
	temporary := filepath.Join(directory, "."+linkName+".tmp-"+strconv.Itoa(os.Getpid()))

	os.Remove(temporary)
	if err := os.Symlink(filepath.Base(archivePath), temporary); err != nil {
		return fmt.Errorf("creating link %s: %w", link, err)
	}
	if err := os.Rename(temporary, link); err != nil {
		os.Remove(temporary)
		return fmt.Errorf("replacing link %s: %w", link, err)
	}
	return nil
}

// RefreshLatestLinks re-points an item's latest links at the newest
// surviving archives and removes links whose targets are gone. Used
// after retention deletes archives.
func (c *Catalog) RefreshLatestLinks(kind Kind, item string) error {
	directory := c.Layout.Dir(kind, item)
	backups, err := c.List(kind, item)
	if err != nil {
		return err
	}

	wanted := make(map[string]string)
	for _, backup := range backups {
		extension, _ := ArchiveExtension(backup.Name())
		linkName := LatestLinkName(backup.Metadata.BackupType, extension)
		if _, seen := wanted[linkName]; !seen {
			wanted[linkName] = backup.Path
		}
	}

	entries, err := os.ReadDir(directory)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var errs []error
	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 || !strings.HasPrefix(entry.Name(), "latest") {
			continue
		}
		if _, ok := wanted[entry.Name()]; !ok {
			if err := os.Remove(filepath.Join(directory, entry.Name())); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for linkName, target := range wanted {
		current, err := os.Readlink(filepath.Join(directory, linkName))
		if err == nil && current == filepath.Base(target) {
			continue
		}
		if err := UpdateLatestLink(target, linkName); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HasBackupOn reports whether an item already has an archive of the
// given type whose name carries the same calendar date as day.
func (c *Catalog) HasBackupOn(kind Kind, item string, backupType BackupType, day time.Time) (bool, error) {
	backups, err := c.List(kind, item)
	if err != nil {
		return false, err
	}
	year, month, date := day.Date()
	for _, backup := range backups {
		parsed, err := ParseArchiveName(backup.Name())
		if err != nil || parsed.Time.IsZero() {
			continue
		}
		if backupType != "" && parsed.Type != backupType {
			continue
		}
		y, m, d := parsed.Time.In(day.Location()).Date()
		if y == year && m == month && d == date {
			return true, nil
		}
	}
	return false, nil
}
