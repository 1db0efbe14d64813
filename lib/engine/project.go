// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/quartermaster-backup/quartermaster/lib/archive"
	"github.com/quartermaster-backup/quartermaster/lib/catalog"
	"github.com/quartermaster-backup/quartermaster/lib/checksum"
	"github.com/quartermaster-backup/quartermaster/lib/config"
	"github.com/quartermaster-backup/quartermaster/lib/diskspace"
)

// Archive size estimate: compressed size is assumed to be 70% of the
// source, with 20% headroom on top.
const (
	compressionRatio = 0.7
	spaceMargin      = 1.2
)

// ProjectOptions controls one project backup.
type ProjectOptions struct {
	// Incremental archives only files changed since the last full
	// archive. Without a usable snapshot the build falls back to full.
	Incremental bool

	// Complete also rebuilds <name>_complete, which keeps hidden and
	// underscore paths.
	Complete bool

	// Force ignores skip_if_exists_today.
	Force bool
}

// BackupProject archives one project.
func (e *Engine) BackupProject(ctx context.Context, name string, options ProjectOptions) (Result, error) {
	started := e.now()
	result := Result{Kind: catalog.KindProject, Item: name}

	project, err := e.project(name)
	if err != nil {
		return e.finish(ctx, result, started, err)
	}
	unlock, err := e.lock(catalog.KindProject, name)
	if err != nil {
		return e.finish(ctx, result, started, err)
	}
	defer unlock()

	result, err = e.backupProject(ctx, project, options, result)
	return e.finish(ctx, result, started, err)
}

func (e *Engine) backupProject(ctx context.Context, project config.Project, options ProjectOptions, result Result) (Result, error) {
	settings := e.Config.Backup
	logger := e.Logger.With("project", project.Name)
	now := e.now()

	if settings.SkipIfExistsToday && !options.Force {
		exists, err := e.Catalog.HasBackupOn(catalog.KindProject, project.Name, "", now)
		if err != nil {
			return result, err
		}
		if exists {
			result.Status = StatusSkipped
			result.Message = "backup already exists today"
			return result, nil
		}
	}

	compression, err := archive.ParseCompression(settings.Compression)
	if err != nil {
		return result, err
	}
	algorithm, err := checksum.ParseAlgorithm(settings.Checksum)
	if err != nil {
		return result, err
	}

	patterns := append(append([]string(nil), settings.GlobalExclude...), project.Exclude...)
	filter := archive.NewFilter(patterns, archive.ModeDefault)
	estimate, err := diskspace.TreeSize(project.Path, func(relative string, entry fs.DirEntry) bool {
		return filter.Excluded(relative, entry.IsDir())
	})
	if err != nil {
		return result, fmt.Errorf("sizing %s: %w", project.Path, err)
	}
	directory := e.Catalog.Layout.Dir(catalog.KindProject, project.Name)
	required := uint64(float64(estimate)*compressionRatio*spaceMargin) + uint64(settings.MinFreeMB)<<20
	if err := e.ensureSpace(directory, required); err != nil {
		return result, err
	}

	backupType := catalog.TypeFull
	var base *archive.Snapshot
	if options.Incremental {
		base = e.loadBase(project.Name)
		if base != nil {
			backupType = catalog.TypeIncremental
		} else {
			logger.Info("no usable snapshot, taking a full backup instead of incremental")
		}
	}

	archivePath := filepath.Join(directory, catalog.ArchiveName{
		Item:      project.Name,
		Time:      now,
		Type:      backupType,
		Extension: compression.TarExtension(),
	}.String())

	built, err := archive.Build(ctx, archive.BuildOptions{
		Source:         project.Path,
		Prefix:         project.Name,
		Destination:    archivePath,
		Compression:    compression,
		Level:          settings.CompressionLevel,
		Filter:         filter,
		Base:           base,
		CompareContent: settings.CompareContent,
		Algorithm:      algorithm,
		Logger:         logger,
	})
	if err != nil {
		return result, err
	}

	r := record{
		kind:         catalog.KindProject,
		item:         project.Name,
		description:  project.Description,
		backupType:   backupType,
		compression:  string(compression),
		digest:       built.Digest,
		size:         built.Size,
		tags:         project.Tags,
		importance:   project.Importance,
		filesAdded:   built.FilesAdded,
		filesSkipped: built.FilesSkipped,
	}
	if base != nil {
		r.baseBackup = base.Archive
	}
	if _, err := e.publish(ctx, archivePath, r); err != nil {
		return result, err
	}

	// Incrementals are differential: the snapshot always describes the
	// last full archive.
	if backupType == catalog.TypeFull {
		if err := built.Snapshot.Save(e.Catalog.Layout.SnapshotPath(project.Name)); err != nil {
			logger.Warn("saving snapshot, next incremental will be full", "error", err)
		}
	}

	result.BackupType = backupType
	result.Path = archivePath
	result.Size = built.Size
	result.Digest = built.Digest.String()
	result.FilesAdded = built.FilesAdded
	result.FilesSkipped = built.FilesSkipped
	result.BaseBackup = r.baseBackup

	if options.Complete {
		if err := e.buildComplete(ctx, project, compression, algorithm); err != nil {
			result.Message = "complete archive failed"
			return result, fmt.Errorf("complete archive: %w", err)
		}
	}
	return result, nil
}

// loadBase returns the snapshot of the last full archive, or nil when
// the snapshot or the archive it describes is missing.
func (e *Engine) loadBase(project string) *archive.Snapshot {
	snapshot, err := archive.LoadSnapshot(e.Catalog.Layout.SnapshotPath(project))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			e.Logger.Warn("unreadable snapshot", "project", project, "error", err)
		}
		return nil
	}
	if snapshot.Archive == "" {
		return nil
	}
	basePath := filepath.Join(e.Catalog.Layout.Dir(catalog.KindProject, project), snapshot.Archive)
	if _, err := os.Stat(basePath); err != nil {
		return nil
	}
	return snapshot
}

// buildComplete rebuilds the project's complete archive in place.
func (e *Engine) buildComplete(ctx context.Context, project config.Project, compression archive.Compression, algorithm checksum.Algorithm) error {
	archivePath := filepath.Join(e.Catalog.Layout.Dir(catalog.KindProject, project.Name), catalog.ArchiveName{
		Item:      project.Name,
		Type:      catalog.TypeComplete,
		Extension: compression.TarExtension(),
	}.String())

	built, err := archive.Build(ctx, archive.BuildOptions{
		Source:      project.Path,
		Prefix:      project.Name,
		Destination: archivePath,
		Compression: compression,
		Level:       e.Config.Backup.CompressionLevel,
		Filter:      archive.NewFilter(nil, archive.ModeComplete),
		Algorithm:   algorithm,
		Logger:      e.Logger.With("project", project.Name),
	})
	if err != nil {
		return err
	}
	_, err = e.publish(ctx, archivePath, record{
		kind:        catalog.KindProject,
		item:        project.Name,
		description: project.Description,
		backupType:  catalog.TypeComplete,
		compression: string(compression),
		digest:      built.Digest,
		size:        built.Size,
		tags:        project.Tags,
		importance:  project.Importance,
		filesAdded:  built.FilesAdded,
	})
	return err
}
