// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"github.com/quartermaster-backup/quartermaster/lib/archive"
	"github.com/quartermaster-backup/quartermaster/lib/catalog"
	"github.com/quartermaster-backup/quartermaster/lib/checksum"
	"github.com/quartermaster-backup/quartermaster/lib/gitrepo"
)

// ErrNoChecksum is returned by Verify for archives whose sidecar
// records no checksum. "backfill" computes one.
var ErrNoChecksum = errors.New("no checksum recorded")

// Verification is the outcome of verifying one archive.
type Verification struct {
	Kind  catalog.Kind `json:"kind"`
	Item  string       `json:"item"`
	Path  string       `json:"path"`
	Valid bool         `json:"valid"`
	Error string       `json:"error,omitempty"`
}

// Verify checks an archive against its sidecar checksum and then
// confirms its content is readable: tarballs are walked to the end,
// bundles are checked with git, and gzipped dumps are decompressed.
func (e *Engine) Verify(ctx context.Context, archivePath string) error {
	ctx, cancel := withTimeout(ctx, e.Config.Timeouts.Verify)
	defer cancel()

	metadata, err := catalog.ReadMetadata(catalog.SidecarPath(archivePath))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", filepath.Base(archivePath), ErrNoChecksum)
		}
		return err
	}
	expected := metadata.Digest
	if expected == "" {
		expected = metadata.ChecksumSHA256
	}
	if expected == "" {
		return fmt.Errorf("%s: %w", filepath.Base(archivePath), ErrNoChecksum)
	}
	if err := checksum.Verify(archivePath, expected); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	name := filepath.Base(archivePath)
	extension, _ := catalog.ArchiveExtension(name)
	switch extension {
	case catalog.ExtTarGzip, catalog.ExtTarZstd, catalog.ExtTarLZ4:
		if _, err := archive.Check(ctx, archivePath); err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
	case catalog.ExtBundle:
		return gitrepo.VerifyBundle(ctx, archivePath)
	case catalog.ExtSQLGzip, catalog.ExtSQLiteGzip:
		if err := drainGzip(ctx, archivePath); err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
	}
	return nil
}

func drainGzip(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	reader, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, contextReader{ctx: ctx, reader: reader})
	return err
}

type contextReader struct {
	ctx    context.Context
	reader io.Reader
}

func (r contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.reader.Read(p)
}

// VerifyAll verifies every archive of every kind, in parallel. The
// returned error joins the individual failures.
func (e *Engine) VerifyAll(ctx context.Context) ([]Verification, error) {
	var backups []catalog.Backup
	for _, kind := range catalog.Kinds {
		found, err := e.Catalog.All(kind)
		if err != nil {
			return nil, err
		}
		backups = append(backups, found...)
	}

	report := make([]Verification, len(backups))
	var (
		mu   sync.Mutex
		errs []error
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.parallelism())
	for i, backup := range backups {
		group.Go(func() error {
			entry := Verification{Kind: backup.Kind, Item: backup.Item, Path: backup.Path, Valid: true}
			if err := e.Verify(groupCtx, backup.Path); err != nil {
				entry.Valid = false
				entry.Error = err.Error()
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", backup.Name(), err))
				mu.Unlock()
			}
			report[i] = entry
			return nil
		})
	}
	group.Wait()

	failed := len(errs)
	e.Logger.Info("verification finished", "archives", len(report), "failed", failed)
	return report, errors.Join(errs...)
}

// unsafeRoots are directories a restore never writes into.
var unsafeRoots = []string{"/bin", "/sbin", "/usr", "/etc", "/boot", "/dev", "/proc", "/sys", "/lib", "/lib64"}

// checkTarget rejects restore targets at the root or inside a system
// directory.
func checkTarget(target string) (string, error) {
	if target == "" {
		return "", fmt.Errorf("%w: empty path", ErrUnsafePath)
	}
	absolute, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	if absolute == "/" {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, absolute)
	}
	for _, root := range unsafeRoots {
		if absolute == root || strings.HasPrefix(absolute, root+"/") {
			return "", fmt.Errorf("%w: %s is under %s", ErrUnsafePath, absolute, root)
		}
	}
	return absolute, nil
}
