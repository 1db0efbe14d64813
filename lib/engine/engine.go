// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fluxcd/pkg/lockedfile"

	"github.com/quartermaster-backup/quartermaster/lib/catalog"
	"github.com/quartermaster-backup/quartermaster/lib/clock"
	"github.com/quartermaster-backup/quartermaster/lib/config"
	"github.com/quartermaster-backup/quartermaster/lib/diskspace"
	"github.com/quartermaster-backup/quartermaster/lib/metrics"
	"github.com/quartermaster-backup/quartermaster/lib/notify"
	"github.com/quartermaster-backup/quartermaster/lib/secret"
)

var (
	// ErrUnknownItem is returned for a name that is not configured.
	ErrUnknownItem = errors.New("unknown item")

	// ErrInsufficientSpace is returned when the archive volume cannot
	// hold the estimated archive plus the configured headroom.
	ErrInsufficientSpace = errors.New("insufficient disk space")

	// ErrUnsafePath is returned for restore targets inside system
	// directories.
	ErrUnsafePath = errors.New("unsafe restore target")
)

// Status is the outcome of one backup.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"

	// StatusPartial is used by QuickSnapshot when some steps fail.
	StatusPartial Status = "partial"
)

// Result describes one item's backup.
type Result struct {
	Kind       catalog.Kind       `json:"kind"`
	Item       string             `json:"item"`
	Status     Status             `json:"status"`
	BackupType catalog.BackupType `json:"backup_type,omitempty"`
	Path       string             `json:"path,omitempty"`
	Size       int64              `json:"size,omitempty"`
	Digest     string             `json:"digest,omitempty"`

	FilesAdded   int    `json:"files_added,omitempty"`
	FilesSkipped int    `json:"files_skipped,omitempty"`
	BaseBackup   string `json:"base_backup,omitempty"`

	Duration time.Duration `json:"duration"`
	Message  string        `json:"message,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Unsealer decrypts vault-sealed configuration values.
type Unsealer interface {
	Unseal(value string) (*secret.Buffer, error)
}

// Engine performs backups and restores for one configuration.
type Engine struct {
	Config  *config.Config
	Catalog *catalog.Catalog

	// Vault unseals database passwords. Nil accepts only plaintext
	// passwords.
	Vault Unsealer

	// Metrics and Notifier may be nil.
	Metrics  *metrics.Metrics
	Notifier notify.Notifier

	Clock  clock.Clock
	Logger *slog.Logger

	// MySQLDump and MySQLClient override the MySQL binaries.
	MySQLDump   string
	MySQLClient string
}

// New returns an engine over the configuration's local base.
func New(cfg *config.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		Config:  cfg,
		Catalog: catalog.New(cfg.Backup.LocalBase, logger),
		Clock:   clock.Real(),
		Logger:  logger,
	}
}

func (e *Engine) now() time.Time {
	if e.Clock == nil {
		return time.Now()
	}
	return e.Clock.Now()
}

func (e *Engine) project(name string) (config.Project, error) {
	if err := catalog.ValidateIdentifier(name); err != nil {
		return config.Project{}, err
	}
	project, ok := e.Config.Project(name)
	if !ok {
		return config.Project{}, fmt.Errorf("project %q: %w", name, ErrUnknownItem)
	}
	return project, nil
}

func (e *Engine) database(name string) (config.Database, error) {
	if err := catalog.ValidateIdentifier(name); err != nil {
		return config.Database{}, err
	}
	database, ok := e.Config.Database(name)
	if !ok {
		return config.Database{}, fmt.Errorf("database %q: %w", name, ErrUnknownItem)
	}
	return database, nil
}

// lock takes the item's cross-process lock, creating the item
// directory if needed.
func (e *Engine) lock(kind catalog.Kind, item string) (func(), error) {
	if err := os.MkdirAll(e.Catalog.Layout.Dir(kind, item), 0700); err != nil {
		return nil, fmt.Errorf("creating %s directory: %w", kind, err)
	}
	unlock, err := lockedfile.MutexAt(e.Catalog.Layout.LockPath(kind, item)).Lock()
	if err != nil {
		return nil, fmt.Errorf("locking %s %s: %w", kind, item, err)
	}
	return unlock, nil
}

// ensureSpace fails with ErrInsufficientSpace when directory's volume
// has fewer than required bytes available. A volume that cannot be
// inspected is logged and let through.
func (e *Engine) ensureSpace(directory string, required uint64) error {
	err := diskspace.Check(directory, required)
	switch {
	case errors.Is(err, diskspace.ErrInsufficient):
		return fmt.Errorf("%w: %w", ErrInsufficientSpace, err)
	case err != nil:
		e.Logger.Warn("disk space check skipped", "directory", directory, "error", err)
	}
	return nil
}

// finish stamps duration and status, records metrics, and sends the
// notification for a backup result.
func (e *Engine) finish(ctx context.Context, result Result, started time.Time, err error) (Result, error) {
	result.Duration = e.now().Sub(started)
	logger := e.Logger.With("kind", result.Kind, "item", result.Item)
	switch {
	case err != nil:
		result.Status = StatusFailed
		result.Error = err.Error()
		logger.Error("backup failed", "error", err, "duration", result.Duration)
	case result.Status == "":
		result.Status = StatusSuccess
	}
	if result.Status == StatusSkipped {
		logger.Info("backup skipped", "reason", result.Message)
		return result, nil
	}

	e.Metrics.Backup(string(result.Kind), string(result.Status), result.Duration, result.Size)
	if result.Status == StatusSuccess {
		e.Metrics.Succeeded(string(result.Kind), e.now())
		logger.Info("backup complete", "path", result.Path, "size", result.Size, "type", result.BackupType, "duration", result.Duration)
	}
	if e.Notifier != nil {
		event := notify.Event{ItemKind: string(result.Kind), Item: result.Item, Size: result.Size}
		if err != nil {
			event.Kind = notify.Failure
			event.Error = err.Error()
		} else {
			event.Kind = notify.Success
		}
		e.Notifier.Notify(ctx, event)
	}
	return result, err
}

// discard removes a partial archive and its sidecar.
func (e *Engine) discard(archivePath string) {
	for _, path := range []string{archivePath, catalog.SidecarPath(archivePath)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.Logger.Warn("removing partial archive", "path", path, "error", err)
		}
	}
}

// withTimeout bounds ctx by seconds when positive.
func withTimeout(ctx context.Context, seconds int) (context.Context, context.CancelFunc) {
	if seconds <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, config.Seconds(seconds))
}
