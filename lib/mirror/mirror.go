// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quartermaster-backup/quartermaster/lib/catalog"
	"github.com/quartermaster-backup/quartermaster/lib/metrics"
)

// maxSidecarSize bounds how much of a target sidecar is read.
const maxSidecarSize = 1 << 20

// Mirror copies the archives of a catalog to targets.
type Mirror struct {
	Catalog *catalog.Catalog

	// Prune removes target archives that no longer exist locally.
	Prune bool

	// Parallelism bounds how many targets sync at once. Zero means 4.
	Parallelism int

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// SyncReport summarizes one target's sync.
type SyncReport struct {
	Target    string        `json:"target"`
	Copied    int           `json:"copied"`
	Unchanged int           `json:"unchanged"`
	Sidecars  int           `json:"sidecars"`
	Pruned    int           `json:"pruned"`
	Bytes     int64         `json:"bytes"`
	Failed    []string      `json:"failed,omitempty"`
	Duration  time.Duration `json:"duration"`
}

func (m *Mirror) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return m.Logger
}

// SyncAll syncs every target concurrently. Reports come back in target
// order; a failing target does not stop the others.
func (m *Mirror) SyncAll(ctx context.Context, targets []Target) ([]SyncReport, error) {
	limit := m.Parallelism
	if limit <= 0 {
		limit = 4
	}
	reports := make([]SyncReport, len(targets))
	var (
		mu   sync.Mutex
		errs []error
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(limit)
	for index, target := range targets {
		group.Go(func() error {
			report, err := m.Sync(groupCtx, target)
			reports[index] = report
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("mirror %s: %w", target.Name(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	group.Wait()
	return reports, errors.Join(errs...)
}

// managedPrefixes are the only target directories Sync writes to or
// prunes.
func managedPrefixes() []string {
	prefixes := make([]string, 0, len(catalog.Kinds))
	for _, kind := range catalog.Kinds {
		prefixes = append(prefixes, kind.Directory())
	}
	return prefixes
}

// Sync brings target up to date with the catalog. It continues past
// per-file failures, lists them in the report, and returns them
// joined.
func (m *Mirror) Sync(ctx context.Context, target Target) (SyncReport, error) {
	started := time.Now()
	logger := m.logger().With("target", target.Name())
	report := SyncReport{Target: target.Name()}
	var errs []error

	wanted := make(map[string]bool)
	complete := true
	for _, kind := range catalog.Kinds {
		backups, err := m.Catalog.All(kind)
		if err != nil {
			errs = append(errs, err)
			// A partial listing must not drive pruning.
			complete = false
		}
		for _, backup := range backups {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			rel, err := m.relative(backup.Path)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			wanted[rel] = true
			if backup.HasSidecar {
				wanted[path.Join(path.Dir(rel), catalog.SidecarName(path.Base(rel)))] = true
			}
			if err := m.syncBackup(ctx, target, backup, rel, &report); err != nil {
				logger.Warn("mirror copy failed", "archive", rel, "error", err)
				report.Failed = append(report.Failed, rel)
				errs = append(errs, err)
			}
		}
	}

	if m.Prune && complete {
		pruned, err := m.prune(ctx, target, wanted)
		report.Pruned = pruned
		if err != nil {
			errs = append(errs, err)
		}
	}

	report.Duration = time.Since(started)
	m.Metrics.MirrorCopied(target.Name(), report.Copied)
	logger.Info("mirror sync complete",
		"copied", report.Copied,
		"unchanged", report.Unchanged,
		"pruned", report.Pruned,
		"bytes", report.Bytes,
		"failed", len(report.Failed),
		"duration", report.Duration)
	return report, errors.Join(errs...)
}

func (m *Mirror) relative(archivePath string) (string, error) {
	rel, err := filepath.Rel(m.Catalog.Layout.Base, archivePath)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", archivePath, m.Catalog.Layout.Base)
	}
	return rel, nil
}

func (m *Mirror) syncBackup(ctx context.Context, target Target, backup catalog.Backup, rel string, report *SyncReport) error {
	sidecarRel := path.Join(path.Dir(rel), catalog.SidecarName(path.Base(rel)))
	local := Object{Path: rel, Size: backup.Size, Digest: backup.Metadata.ChecksumSHA256}

	copyArchive := false
	remote, err := target.Stat(ctx, rel)
	switch {
	case errors.Is(err, ErrNotFound):
		copyArchive = true
	case err != nil:
		return err
	case remote.Size != local.Size:
		copyArchive = true
	case remote.Digest != "" && local.Digest != "" && remote.Digest != local.Digest:
		copyArchive = true
	}

	var remoteSidecar []byte
	if !copyArchive && backup.HasSidecar {
		remoteSidecar, err = readSmall(ctx, target, sidecarRel)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		// Targets that keep no digest are compared through the
		// checksum their sidecar records.
		if remote.Digest == "" && local.Digest != "" && remoteSidecar != nil {
			var metadata catalog.Metadata
			if json.Unmarshal(remoteSidecar, &metadata) == nil &&
				metadata.ChecksumSHA256 != "" && metadata.ChecksumSHA256 != local.Digest {
				copyArchive = true
			}
		}
	}

	if copyArchive {
		if err := putFile(ctx, target, local, backup.Path); err != nil {
			return err
		}
		report.Copied++
		report.Bytes += local.Size
	} else {
		report.Unchanged++
	}

	if !backup.HasSidecar {
		return nil
	}
	sidecar, err := os.ReadFile(backup.SidecarPath())
	if err != nil {
		return fmt.Errorf("reading sidecar: %w", err)
	}
	if !copyArchive && bytes.Equal(sidecar, remoteSidecar) {
		return nil
	}
	if err := target.Put(ctx, Object{Path: sidecarRel, Size: int64(len(sidecar))}, bytes.NewReader(sidecar)); err != nil {
		return fmt.Errorf("writing sidecar %s: %w", sidecarRel, err)
	}
	report.Sidecars++
	return nil
}

func putFile(ctx context.Context, target Target, object Object, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := target.Put(ctx, object, file); err != nil {
		return fmt.Errorf("copying %s: %w", object.Path, err)
	}
	return nil
}

func readSmall(ctx context.Context, target Target, rel string) ([]byte, error) {
	reader, err := target.Open(ctx, rel)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(io.LimitReader(reader, maxSidecarSize))
}

// prune removes target archives and sidecars under the managed
// prefixes that are not in wanted. Other files are left alone.
func (m *Mirror) prune(ctx context.Context, target Target, wanted map[string]bool) (int, error) {
	pruned := 0
	var errs []error
	for _, prefix := range managedPrefixes() {
		objects, err := target.List(ctx, prefix)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, object := range objects {
			name := path.Base(object.Path)
			if wanted[object.Path] || !(catalog.IsArchive(name) || isSidecar(name)) {
				continue
			}
			if err := target.Remove(ctx, object.Path); err != nil {
				errs = append(errs, err)
				continue
			}
			m.logger().Info("mirror pruned", "target", target.Name(), "path", object.Path)
			pruned++
		}
	}
	return pruned, errors.Join(errs...)
}

func isSidecar(name string) bool {
	return strings.HasSuffix(name, ".json")
}
