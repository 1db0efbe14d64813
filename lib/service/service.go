// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/quartermaster-backup/quartermaster/lib/catalog"
	"github.com/quartermaster-backup/quartermaster/lib/clock"
	"github.com/quartermaster-backup/quartermaster/lib/config"
	"github.com/quartermaster-backup/quartermaster/lib/engine"
	"github.com/quartermaster-backup/quartermaster/lib/history"
	"github.com/quartermaster-backup/quartermaster/lib/logging"
	"github.com/quartermaster-backup/quartermaster/lib/metrics"
	"github.com/quartermaster-backup/quartermaster/lib/mirror"
	"github.com/quartermaster-backup/quartermaster/lib/notify"
	"github.com/quartermaster-backup/quartermaster/lib/retention"
	"github.com/quartermaster-backup/quartermaster/lib/scheduler"
	"github.com/quartermaster-backup/quartermaster/lib/vault"
)

// SyncDirTarget names the implicit mirror target for backup.sync_dir.
const SyncDirTarget = "sync_dir"

// Options configures Open.
type Options struct {
	// ConfigDir overrides the QUARTERMASTER_CONFIG environment variable.
	ConfigDir string

	// Stderr receives console log records. Defaults to os.Stderr.
	Stderr io.Writer

	// Metrics creates a Prometheus registry for the components.
	Metrics bool

	// Clock defaults to the real clock.
	Clock clock.Clock
}

// Service holds the wired components for one configuration.
type Service struct {
	Config *config.Config
	Logger *slog.Logger

	// Vault is nil when no key file exists.
	Vault *vault.Vault

	Catalog   *catalog.Catalog
	Engine    *engine.Engine
	Retention *retention.Manager
	Mirror    *mirror.Mirror

	// Metrics is nil unless requested. Notifier is nil when
	// notifications are disabled.
	Metrics  *metrics.Metrics
	Notifier notify.Notifier

	Clock clock.Clock

	closers []io.Closer
}

// Open loads and validates the configuration and builds the
// components. Close the service to flush the log file and release the
// vault key.
func Open(options Options) (*Service, error) {
	var cfg *config.Config
	var err error
	if options.ConfigDir != "" {
		cfg, err = config.LoadDir(options.ConfigDir)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", cfg.Dir, err)
	}
	return New(cfg, options)
}

// New builds the components for an already loaded configuration.
func New(cfg *config.Config, options Options) (*Service, error) {
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}

	layout := catalog.Layout{Base: cfg.Backup.LocalBase}
	logOptions, err := logging.FromConfig(cfg.Logging, layout.LogsDir())
	if err != nil {
		return nil, err
	}
	logOptions.Stderr = options.Stderr
	logger, logCloser, err := logging.New(logOptions)
	if err != nil {
		return nil, err
	}
	s := &Service{Config: cfg, Logger: logger, Clock: clk, closers: []io.Closer{logCloser}}

	s.Vault, err = vault.Open(cfg.Vault.KeyFile)
	switch {
	case errors.Is(err, vault.ErrNoKey):
		logger.Debug("no vault key, sealed values are unavailable", "key_file", cfg.Vault.KeyFile)
	case err != nil:
		s.Close()
		return nil, fmt.Errorf("opening vault: %w", err)
	default:
		s.closers = append(s.closers, s.Vault)
	}

	if options.Metrics {
		s.Metrics = metrics.New()
	}
	if cfg.Notifications.Enabled {
		notifiers := notify.Multi{notify.Log{Logger: logger}}
		if cfg.Notifications.Desktop {
			if desktop := notify.NewDesktop(logger); desktop != nil {
				notifiers = append(notifiers, desktop)
			}
		}
		s.Notifier = notifiers
	}

	s.Engine = engine.New(cfg, logger)
	s.Engine.Clock = clk
	s.Engine.Metrics = s.Metrics
	s.Engine.Notifier = s.Notifier
	if s.Vault != nil {
		s.Engine.Vault = s.Vault
	}
	s.Catalog = s.Engine.Catalog

	s.Retention = &retention.Manager{
		Catalog: s.Catalog,
		Config:  cfg.Retention,
		Clock:   clk,
		Metrics: s.Metrics,
		Logger:  logger,
	}
	s.Mirror = &mirror.Mirror{
		Catalog:     s.Catalog,
		Prune:       cfg.Mirror.Prune,
		Parallelism: cfg.Backup.Parallelism,
		Metrics:     s.Metrics,
		Logger:      logger,
	}
	return s, nil
}

// Close releases the vault key and flushes the log file.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// OpenTargets connects every configured mirror target. backup.sync_dir,
// when set, comes first as a local target. Targets that fail to
// connect are skipped and their errors joined; the caller closes the
// returned targets.
func (s *Service) OpenTargets(ctx context.Context) ([]mirror.Target, error) {
	var targets []mirror.Target
	var errs []error
	if s.Config.Backup.SyncDir != "" {
		target, err := mirror.NewLocalTarget(SyncDirTarget, s.Config.Backup.SyncDir)
		if err != nil {
			errs = append(errs, err)
		} else {
			targets = append(targets, target)
		}
	}

	options := mirror.Options{Logger: s.Logger}
	if s.Vault != nil {
		options.Unseal = s.Vault.Unseal
	}
	for _, settings := range s.Config.Mirror.Targets {
		target, err := mirror.Open(ctx, settings, options)
		if err != nil {
			s.Logger.Error("mirror target unavailable", "target", settings.Name, "error", err)
			errs = append(errs, err)
			continue
		}
		targets = append(targets, target)
	}
	return targets, errors.Join(errs...)
}

// Jobs parses the configured schedule.
func (s *Service) Jobs() ([]scheduler.Job, error) {
	return scheduler.JobsFromConfig(s.Config.Schedule)
}

// Orchestrator wires the scheduler to the engine, retention, mirror,
// and the persisted last-run state. store may be nil to skip task
// history.
func (s *Service) Orchestrator(store *history.Store) (*scheduler.Orchestrator, error) {
	state, err := scheduler.LoadState(s.Catalog.Layout.StatePath())
	if err != nil {
		return nil, err
	}
	options := scheduler.Options{
		Jobs:  s.Jobs,
		State: state,
		Executor: &scheduler.Actions{
			Engine:      s.Engine,
			Retention:   s.Retention,
			Mirror:      s.Mirror,
			OpenTargets: s.OpenTargets,
		},
		History:     store,
		Metrics:     s.Metrics,
		Notifier:    s.Notifier,
		Parallelism: s.Config.Backup.Parallelism,
		Clock:       s.Clock,
		Logger:      s.Logger,
	}
	return scheduler.New(options), nil
}

// OpenHistory opens the task history database under the local base.
func (s *Service) OpenHistory() (*history.Store, error) {
	return history.Open(s.Config.Backup.LocalBase, s.Logger)
}
