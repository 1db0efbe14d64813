// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/quartermaster-backup/quartermaster/lib/config"
	"github.com/quartermaster-backup/quartermaster/lib/secret"
)

// ErrNotFound is returned by Stat and Open for a missing path.
var ErrNotFound = errors.New("not found on target")

// Object describes a file on a target.
type Object struct {
	// Path is relative to the target root, slash-separated.
	Path string
	Size int64

	// Digest is the hex SHA-256 of the content when the target
	// records it, and empty otherwise.
	Digest string
}

// Target is a replication destination.
type Target interface {
	Name() string

	// Stat returns ErrNotFound when rel does not exist.
	Stat(ctx context.Context, rel string) (Object, error)

	// Open returns ErrNotFound when rel does not exist.
	Open(ctx context.Context, rel string) (io.ReadCloser, error)

	// Put stores object.Size bytes read from r at object.Path,
	// replacing any existing file.
	Put(ctx context.Context, object Object, r io.Reader) error

	// Remove deletes rel. A missing path is not an error.
	Remove(ctx context.Context, rel string) error

	// List returns every file under prefix, recursively.
	List(ctx context.Context, prefix string) ([]Object, error)

	Close() error
}

// Options carries what opening a target may need beyond its settings.
type Options struct {
	// Unseal decrypts vault-sealed secrets such as an S3 secret key.
	Unseal func(value string) (*secret.Buffer, error)

	Logger *slog.Logger
}

// Open connects to the target described by settings.
func Open(ctx context.Context, settings config.MirrorTarget, options Options) (Target, error) {
	switch settings.Kind {
	case config.MirrorLocal:
		return NewLocalTarget(settings.Name, settings.Path)
	case config.MirrorSFTP:
		return DialSFTP(ctx, settings)
	case config.MirrorS3:
		var secretKey *secret.Buffer
		if settings.SecretAccessKey != "" {
			if options.Unseal == nil {
				return nil, fmt.Errorf("mirror %s: secret_access_key is set but no vault is available", settings.Name)
			}
			buffer, err := options.Unseal(settings.SecretAccessKey)
			if err != nil {
				return nil, fmt.Errorf("mirror %s: unsealing secret key: %w", settings.Name, err)
			}
			defer buffer.Close()
			secretKey = buffer
		}
		return NewS3Target(ctx, settings, secretKey)
	}
	return nil, fmt.Errorf("mirror %s: unknown kind %q", settings.Name, settings.Kind)
}

// cleanRel validates a target-relative path and returns its clean,
// slash-separated form.
func cleanRel(rel string) (string, error) {
	cleaned := path.Clean(strings.ReplaceAll(rel, "\\", "/"))
	if cleaned == "." || !filepath.IsLocal(filepath.FromSlash(cleaned)) {
		return "", fmt.Errorf("invalid target path %q", rel)
	}
	return cleaned, nil
}

// tempName is the name a file is staged under before the rename.
func tempName(name, suffix string) string {
	return "." + name + ".tmp-" + suffix
}

func isTemp(name string) bool {
	return strings.HasPrefix(name, ".") && strings.Contains(name, ".tmp-")
}

// contextReader stops a copy once ctx is done.
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
