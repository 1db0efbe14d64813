// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/quartermaster-backup/quartermaster/lib/atomicfile"
)

// LocalTarget mirrors into a directory.
type LocalTarget struct {
	name string
	root string
}

// NewLocalTarget creates root if needed.
func NewLocalTarget(name, root string) (*LocalTarget, error) {
	if root == "" {
		return nil, fmt.Errorf("mirror %s: path is required", name)
	}
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("mirror %s: %w", name, err)
	}
	return &LocalTarget{name: name, root: root}, nil
}

func (t *LocalTarget) Name() string { return t.name }

// Root is the directory being mirrored into.
func (t *LocalTarget) Root() string { return t.root }

func (t *LocalTarget) resolve(rel string) (string, string, error) {
	cleaned, err := cleanRel(rel)
	if err != nil {
		return "", "", err
	}
	return cleaned, filepath.Join(t.root, filepath.FromSlash(cleaned)), nil
}

func (t *LocalTarget) Stat(ctx context.Context, rel string) (Object, error) {
	cleaned, full, err := t.resolve(rel)
	if err != nil {
		return Object{}, err
	}
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return Object{}, fmt.Errorf("%w: %s", ErrNotFound, cleaned)
	}
	if err != nil {
		return Object{}, err
	}
	return Object{Path: cleaned, Size: info.Size()}, nil
}

func (t *LocalTarget) Open(ctx context.Context, rel string) (io.ReadCloser, error) {
	cleaned, full, err := t.resolve(rel)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cleaned)
	}
	return file, err
}

func (t *LocalTarget) Put(ctx context.Context, object Object, r io.Reader) error {
	_, full, err := t.resolve(object.Path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0700); err != nil {
		return err
	}
	return atomicfile.WriteFrom(full, 0600, func(w io.Writer) error {
		written, err := io.Copy(w, contextReader{ctx: ctx, reader: r})
		if err != nil {
			return err
		}
		if object.Size >= 0 && written != object.Size {
			return fmt.Errorf("copied %d bytes, expected %d", written, object.Size)
		}
		return nil
	})
}

func (t *LocalTarget) Remove(ctx context.Context, rel string) error {
	_, full, err := t.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (t *LocalTarget) List(ctx context.Context, prefix string) ([]Object, error) {
	start := t.root
	if prefix != "" {
		_, full, err := t.resolve(prefix)
		if err != nil {
			return nil, err
		}
		start = full
	}
	var objects []Object
	err := filepath.WalkDir(start, func(current string, entry fs.DirEntry, err error) error {
		if err != nil {
			if current == start && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.Type().IsRegular() || isTemp(entry.Name()) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(t.root, current)
		if err != nil {
			return err
		}
		objects = append(objects, Object{Path: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
	return objects, err
}

func (t *LocalTarget) Close() error { return nil }
