// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quartermaster-backup/quartermaster/lib/catalog"
	"github.com/quartermaster-backup/quartermaster/lib/checksum"
	"github.com/quartermaster-backup/quartermaster/lib/config"
	"github.com/quartermaster-backup/quartermaster/lib/gitrepo"
)

// BackupGit bundles every ref of a project's git repository. Projects
// that are not repositories, or have no commits, are skipped.
func (e *Engine) BackupGit(ctx context.Context, name string) (Result, error) {
	started := e.now()
	result := Result{Kind: catalog.KindGit, Item: name}

	project, err := e.project(name)
	if err != nil {
		return e.finish(ctx, result, started, err)
	}
	unlock, err := e.lock(catalog.KindGit, name)
	if err != nil {
		return e.finish(ctx, result, started, err)
	}
	defer unlock()

	result, err = e.backupGit(ctx, project, result)
	return e.finish(ctx, result, started, err)
}

func (e *Engine) backupGit(ctx context.Context, project config.Project, result Result) (Result, error) {
	repository := gitrepo.NewRepository(project.Path)
	if !repository.IsRepository(ctx) {
		result.Status = StatusSkipped
		result.Message = "not a git repository"
		return result, nil
	}
	algorithm, err := checksum.ParseAlgorithm(e.Config.Backup.Checksum)
	if err != nil {
		return result, err
	}

	directory := e.Catalog.Layout.Dir(catalog.KindGit, project.Name)
	archivePath := filepath.Join(directory, catalog.ArchiveName{
		Item:      project.Name,
		Time:      e.now(),
		Type:      catalog.TypeBundle,
		Extension: catalog.ExtBundle,
	}.String())

	bundleCtx, cancel := withTimeout(ctx, e.Config.Timeouts.GitBundle)
	err = repository.Bundle(bundleCtx, archivePath)
	cancel()
	if errors.Is(err, gitrepo.ErrNoCommits) {
		result.Status = StatusSkipped
		result.Message = "repository has no commits"
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("bundling %s: %w", project.Path, err)
	}

	sum, err := checksum.File(archivePath, algorithm)
	if err != nil {
		e.discard(archivePath)
		return result, err
	}
	info, err := os.Stat(archivePath)
	if err != nil {
		e.discard(archivePath)
		return result, err
	}

	if _, err := e.publish(ctx, archivePath, record{
		kind:        catalog.KindGit,
		item:        project.Name,
		description: project.Description,
		backupType:  catalog.TypeBundle,
		digest:      sum,
		size:        info.Size(),
		tags:        project.Tags,
		importance:  project.Importance,
	}); err != nil {
		return result, err
	}

	result.BackupType = catalog.TypeBundle
	result.Path = archivePath
	result.Size = info.Size()
	result.Digest = sum.String()
	return result, nil
}
