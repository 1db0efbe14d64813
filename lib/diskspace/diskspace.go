// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package diskspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

// ErrInsufficient is returned by Check when the volume is too full.
var ErrInsufficient = errors.New("insufficient disk space")

// Usage describes one filesystem.
type Usage struct {
	Total     uint64 `json:"total_bytes"`
	Free      uint64 `json:"free_bytes"`
	Available uint64 `json:"available_bytes"`
	Used      uint64 `json:"used_bytes"`
}

// UsedPercent is the share of Total in use, 0-100.
func (u Usage) UsedPercent() float64 {
	if u.Total == 0 {
		return 0
	}
	return float64(u.Used) / float64(u.Total) * 100
}

// Stat returns usage for the filesystem holding path. A path that does
// not exist yet is resolved to its nearest existing ancestor, so the
// destination of a first backup can be checked before it is created.
func Stat(path string) (Usage, error) {
	existing, err := nearestExisting(path)
	if err != nil {
		return Usage{}, err
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(existing, &stat); err != nil {
		return Usage{}, fmt.Errorf("statfs %s: %w", existing, err)
	}
	blockSize := uint64(stat.Bsize)
	usage := Usage{
		Total:     stat.Blocks * blockSize,
		Free:      stat.Bfree * blockSize,
		Available: stat.Bavail * blockSize,
	}
	usage.Used = usage.Total - usage.Free
	return usage, nil
}

func nearestExisting(path string) (string, error) {
	current, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(current); err == nil {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("no existing ancestor of %s", path)
		}
		current = parent
	}
}

// Check returns ErrInsufficient when fewer than required bytes are
// available at path.
func Check(path string, required uint64) error {
	usage, err := Stat(path)
	if err != nil {
		return err
	}
	if usage.Available < required {
		return fmt.Errorf("%w: need %s, have %s available at %s", ErrInsufficient,
			humanize.IBytes(required), humanize.IBytes(usage.Available), path)
	}
	return nil
}

// SkipFunc reports whether a walked entry, named by its slash-separated
// path relative to the root, is left out of a size estimate. Returning
// true for a directory prunes it.
type SkipFunc func(relative string, entry fs.DirEntry) bool

// TreeSize sums the sizes of regular files under root. Entries that
// vanish or cannot be read during the walk are ignored; the result is
// an estimate.
func TreeSize(root string, skip SkipFunc) (int64, error) {
	if _, err := os.Stat(root); err != nil {
		return 0, err
	}
	var total int64
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if entry != nil && entry.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		relative, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if skip != nil && skip(filepath.ToSlash(relative), entry) {
			if entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		info, infoErr := entry.Info()
		if infoErr != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total, err
}
