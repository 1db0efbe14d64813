// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Quartermaster-daemon runs the backup scheduler continuously.
//
// On startup it loads the configuration, opens the task history, and
// then:
//  1. Runs every job whose cron schedule is due, sleeping until the
//     next one (at most a minute between checks so schedule edits are
//     picked up).
//  2. Serves /metrics and /healthz on metrics.listen when set.
//  3. Prunes task history older than --history-retention daily.
//
// SIGINT or SIGTERM stops new tasks; running tasks are cancelled and
// awaited before exit.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/quartermaster-backup/quartermaster/lib/diskspace"
	"github.com/quartermaster-backup/quartermaster/lib/history"
	"github.com/quartermaster-backup/quartermaster/lib/process"
	"github.com/quartermaster-backup/quartermaster/lib/service"
	"github.com/quartermaster-backup/quartermaster/lib/version"
)

// pruneInterval is how often old task history is dropped.
const pruneInterval = 24 * time.Hour

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configDir        string
		historyRetention time.Duration
		showVersion      bool
	)
	flags := pflag.NewFlagSet("quartermaster-daemon", pflag.ContinueOnError)
	flags.StringVar(&configDir, "config", "", "configuration directory (default $QUARTERMASTER_CONFIG)")
	flags.DurationVar(&historyRetention, "history-retention", 90*24*time.Hour, "drop task history older than this")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if showVersion {
		fmt.Println(version.Full())
		return nil
	}

	ctx, cancel := process.SignalContext(context.Background())
	defer cancel()

	s, err := service.Open(service.Options{ConfigDir: configDir, Metrics: true})
	if err != nil {
		return err
	}
	defer s.Close()
	logger := s.Logger

	store, err := s.OpenHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	orchestrator, err := s.Orchestrator(store)
	if err != nil {
		return err
	}
	jobs, err := s.Jobs()
	if err != nil {
		logger.Warn("some scheduled jobs are invalid and will not run", "error", err)
	}
	logger.Info("quartermaster daemon starting",
		"version", version.Info(),
		"config", s.Config.Dir,
		"local_base", s.Config.Backup.LocalBase,
		"jobs", len(jobs),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return orchestrator.Run(groupCtx)
	})
	group.Go(func() error {
		pruneHistory(groupCtx, s, store, historyRetention)
		return nil
	})
	if address := s.Config.Metrics.Listen; address != "" {
		localBase := s.Config.Backup.LocalBase
		server := service.NewHTTPServer(service.HTTPServerConfig{
			Address: address,
			Handler: service.Handler(s.Metrics, func(ctx context.Context) error {
				_, err := diskspace.Stat(localBase)
				return err
			}),
			Logger: logger,
		})
		group.Go(func() error {
			return server.Serve(groupCtx)
		})
	}

	err = group.Wait()
	orchestrator.Wait()
	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("quartermaster daemon stopped")
	return nil
}

// pruneHistory drops history rows older than retention once a day.
func pruneHistory(ctx context.Context, s *service.Service, store *history.Store, retention time.Duration) {
	ticker := s.Clock.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned, err := store.Prune(ctx, s.Clock.Now().Add(-retention))
			if err != nil {
				s.Logger.Error("pruning task history failed", "error", err)
				continue
			}
			s.Logger.Info("task history pruned", "removed", pruned)
		}
	}
}
