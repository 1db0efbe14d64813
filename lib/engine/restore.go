// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/quartermaster-backup/quartermaster/lib/archive"
	"github.com/quartermaster-backup/quartermaster/lib/catalog"
	"github.com/quartermaster-backup/quartermaster/lib/config"
	"github.com/quartermaster-backup/quartermaster/lib/gitrepo"
)

// RestoreResult describes a finished restore.
type RestoreResult struct {
	// Backups lists the archives applied, base first.
	Backups []string `json:"backups"`
	Target  string   `json:"target"`

	// MovedTo is where a pre-existing target was moved aside.
	MovedTo string `json:"moved_to,omitempty"`

	Files   int      `json:"files"`
	Skipped []string `json:"skipped,omitempty"`
}

// GitRestoreMode selects how a bundle is restored.
type GitRestoreMode string

const (
	// GitClone clones the bundle into a fresh directory.
	GitClone GitRestoreMode = "clone"

	// GitFetch fetches the bundle's branches into an existing
	// repository under refs/remotes/backup/.
	GitFetch GitRestoreMode = "fetch"
)

// resolve finds an item's archive by file name, or its newest archive
// when backupFile is empty.
func (e *Engine) resolve(kind catalog.Kind, item, backupFile string) (catalog.Backup, error) {
	if err := catalog.ValidateIdentifier(item); err != nil {
		return catalog.Backup{}, err
	}
	if backupFile == "" {
		return e.Catalog.Latest(kind, item)
	}
	return e.Catalog.Find(kind, item, backupFile)
}

// chain returns the archives to apply for a project backup: the base
// full archive of an incremental, then the backup itself.
func (e *Engine) chain(backup catalog.Backup) ([]catalog.Backup, error) {
	if backup.Metadata.BackupType != catalog.TypeIncremental || backup.Metadata.BaseBackup == "" {
		return []catalog.Backup{backup}, nil
	}
	base, err := e.Catalog.Find(backup.Kind, backup.Item, backup.Metadata.BaseBackup)
	if err != nil {
		return nil, fmt.Errorf("base of %s: %w", backup.Name(), err)
	}
	return []catalog.Backup{base, backup}, nil
}

// defaultTarget is the configured project path, used when the caller
// names no target.
func (e *Engine) defaultTarget(name, target string) (string, error) {
	if target != "" {
		return target, nil
	}
	project, ok := e.Config.Project(name)
	if !ok {
		return "", fmt.Errorf("project %q has no configuration and no target was given: %w", name, ErrUnknownItem)
	}
	return project.Path, nil
}

// moveAside renames an existing path to <path>_backup_<timestamp>.
// It returns "" when nothing exists at path.
func (e *Engine) moveAside(path string) (string, error) {
	if _, err := os.Lstat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	moved := path + "_backup_" + e.now().Format(catalog.TimestampLayout)
	if err := os.Rename(path, moved); err != nil {
		return "", fmt.Errorf("moving existing %s aside: %w", path, err)
	}
	e.Logger.Info("existing target moved aside", "from", path, "to", moved)
	return moved, nil
}

// RestoreProject extracts a project backup, defaulting to the newest
// one, into target, defaulting to the project's path. Incrementals are
// applied on top of their base. An existing target is moved aside, not
// overwritten.
func (e *Engine) RestoreProject(ctx context.Context, name, backupFile, target string) (RestoreResult, error) {
	var result RestoreResult
	backup, err := e.resolve(catalog.KindProject, name, backupFile)
	if err != nil {
		return result, err
	}
	if target, err = e.defaultTarget(name, target); err != nil {
		return result, err
	}
	if result.Target, err = checkTarget(target); err != nil {
		return result, err
	}
	chain, err := e.chain(backup)
	if err != nil {
		return result, err
	}
	for _, link := range chain {
		if err := e.Verify(ctx, link.Path); err != nil {
			return result, fmt.Errorf("refusing to restore %s: %w", link.Name(), err)
		}
	}
	if result.MovedTo, err = e.moveAside(result.Target); err != nil {
		return result, err
	}
	if err := e.extractChain(ctx, chain, result.Target, archive.ExtractOptions{StripComponents: 1}, &result); err != nil {
		return result, err
	}
	e.Logger.Info("project restored", "project", name, "backup", backup.Name(), "target", result.Target, "files", result.Files)
	return result, nil
}

// RestoreFiles extracts the selected paths of a project backup into
// target without moving anything aside. Paths are relative to the
// project root and may be directories or path.Match patterns.
func (e *Engine) RestoreFiles(ctx context.Context, name, backupFile string, paths []string, target string) (RestoreResult, error) {
	var result RestoreResult
	if len(paths) == 0 {
		return result, errors.New("no paths to restore")
	}
	backup, err := e.resolve(catalog.KindProject, name, backupFile)
	if err != nil {
		return result, err
	}
	if target, err = e.defaultTarget(name, target); err != nil {
		return result, err
	}
	if result.Target, err = checkTarget(target); err != nil {
		return result, err
	}
	chain, err := e.chain(backup)
	if err != nil {
		return result, err
	}
	for _, link := range chain {
		if err := e.Verify(ctx, link.Path); err != nil {
			return result, fmt.Errorf("refusing to restore %s: %w", link.Name(), err)
		}
	}
	options := archive.ExtractOptions{StripComponents: 1, Paths: paths, SkipUnsafe: true}
	if err := e.extractChain(ctx, chain, result.Target, options, &result); err != nil {
		return result, err
	}
	e.Logger.Info("files restored", "project", name, "backup", backup.Name(), "target", result.Target, "files", result.Files)
	return result, nil
}

func (e *Engine) extractChain(ctx context.Context, chain []catalog.Backup, target string, options archive.ExtractOptions, result *RestoreResult) error {
	for _, link := range chain {
		extracted, err := archive.Extract(ctx, link.Path, target, options)
		if err != nil {
			return fmt.Errorf("extracting %s: %w", link.Name(), err)
		}
		result.Backups = append(result.Backups, link.Name())
		result.Files += len(extracted.Files)
		result.Skipped = append(result.Skipped, extracted.Skipped...)
	}
	return nil
}

// ListContents lists the members of a project backup.
func (e *Engine) ListContents(ctx context.Context, name, backupFile, pattern string) ([]archive.Entry, error) {
	backup, err := e.resolve(catalog.KindProject, name, backupFile)
	if err != nil {
		return nil, err
	}
	return archive.List(ctx, backup.Path, pattern)
}

// PreviewFile returns the first lines of a text file in a project
// backup. member is relative to the project root. Files an incremental
// left unchanged are read from its base.
func (e *Engine) PreviewFile(ctx context.Context, name, backupFile, member string, maxLines int) (string, error) {
	backup, err := e.resolve(catalog.KindProject, name, backupFile)
	if err != nil {
		return "", err
	}
	chain, err := e.chain(backup)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(member, name+"/") {
		member = name + "/" + strings.TrimPrefix(member, "/")
	}
	for i := len(chain) - 1; i >= 0; i-- {
		preview, err := archive.Preview(ctx, chain[i].Path, member, maxLines)
		if errors.Is(err, archive.ErrNotFound) && i > 0 {
			continue
		}
		return preview, err
	}
	return "", archive.ErrNotFound
}

// RestoreDatabase loads a database dump, defaulting to the newest,
// back into the configured database.
func (e *Engine) RestoreDatabase(ctx context.Context, name, backupFile string) (RestoreResult, error) {
	var result RestoreResult
	database, err := e.database(name)
	if err != nil {
		return result, err
	}
	backup, err := e.resolve(catalog.KindDatabase, name, backupFile)
	if err != nil {
		return result, err
	}
	if err := e.Verify(ctx, backup.Path); err != nil {
		return result, fmt.Errorf("refusing to restore %s: %w", backup.Name(), err)
	}

	target, _, cleanup, err := e.dumper(database, config.Seconds(e.Config.Timeouts.MySQLRestore))
	if err != nil {
		return result, err
	}
	defer cleanup()

	file, err := os.Open(backup.Path)
	if err != nil {
		return result, err
	}
	defer file.Close()
	reader, err := gzip.NewReader(file)
	if err != nil {
		return result, fmt.Errorf("reading %s: %w", backup.Name(), err)
	}
	defer reader.Close()

	if err := target.restore(ctx, reader); err != nil {
		return result, fmt.Errorf("restoring %s: %w", database.Name, err)
	}
	result.Backups = []string{backup.Name()}
	result.Target = database.Name
	if database.Engine == config.EngineSQLite {
		result.Target = database.Path
	}
	e.Logger.Info("database restored", "database", name, "backup", backup.Name())
	return result, nil
}

// RestoreGit restores a git bundle. In clone mode the bundle is cloned
// into target, moving an existing directory aside first. In fetch mode
// target must be a repository, which receives the bundle's branches.
func (e *Engine) RestoreGit(ctx context.Context, name, backupFile, target string, mode GitRestoreMode) (RestoreResult, error) {
	var result RestoreResult
	backup, err := e.resolve(catalog.KindGit, name, backupFile)
	if err != nil {
		return result, err
	}
	if target, err = e.defaultTarget(name, target); err != nil {
		return result, err
	}
	if result.Target, err = checkTarget(target); err != nil {
		return result, err
	}
	if err := e.Verify(ctx, backup.Path); err != nil {
		return result, fmt.Errorf("refusing to restore %s: %w", backup.Name(), err)
	}
	result.Backups = []string{backup.Name()}

	ctx, cancel := withTimeout(ctx, e.Config.Timeouts.GitClone)
	defer cancel()

	switch mode {
	case GitClone, "":
		if result.MovedTo, err = e.moveAside(result.Target); err != nil {
			return result, err
		}
		if _, err := gitrepo.CloneBundle(ctx, backup.Path, result.Target); err != nil {
			return result, fmt.Errorf("cloning %s: %w", backup.Name(), err)
		}
	case GitFetch:
		repository := gitrepo.NewRepository(result.Target)
		if err := repository.FetchBundle(ctx, backup.Path); err != nil {
			return result, fmt.Errorf("fetching %s: %w", backup.Name(), err)
		}
	default:
		return result, fmt.Errorf("unknown git restore mode %q (want clone or fetch)", mode)
	}
	e.Logger.Info("git restored", "project", name, "backup", backup.Name(), "target", result.Target, "mode", mode)
	return result, nil
}
