// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/quartermaster-backup/quartermaster/lib/config"
)

// BackupAllProjects backs up every enabled project with its configured
// incremental and complete settings.
func (e *Engine) BackupAllProjects(ctx context.Context) ([]Result, error) {
	projects := e.Config.EnabledProjects()
	return e.each(ctx, len(projects), func(ctx context.Context, i int) (Result, error) {
		return e.BackupProject(ctx, projects[i].Name, ConfiguredOptions(projects[i]))
	})
}

// ConfiguredOptions returns the options a scheduled run uses for
// project.
func ConfiguredOptions(project config.Project) ProjectOptions {
	return ProjectOptions{Incremental: project.Incremental, Complete: project.Complete}
}

// BackupAllDatabases backs up every enabled database.
func (e *Engine) BackupAllDatabases(ctx context.Context) ([]Result, error) {
	databases := e.Config.EnabledDatabases()
	return e.each(ctx, len(databases), func(ctx context.Context, i int) (Result, error) {
		return e.BackupDatabase(ctx, databases[i].Name)
	})
}

// BackupAllGit bundles every enabled project that is a git repository.
func (e *Engine) BackupAllGit(ctx context.Context) ([]Result, error) {
	projects := e.Config.EnabledProjects()
	return e.each(ctx, len(projects), func(ctx context.Context, i int) (Result, error) {
		return e.BackupGit(ctx, projects[i].Name)
	})
}

// parallelism is the bound on concurrent items.
func (e *Engine) parallelism() int {
	if e.Config.Backup.Parallelism > 0 {
		return e.Config.Backup.Parallelism
	}
	return config.Default().Backup.Parallelism
}

// each runs n items with bounded concurrency. Results keep item order.
// Item errors are collected rather than returned to the group, so one
// failure never cancels its siblings.
func (e *Engine) each(ctx context.Context, n int, run func(context.Context, int) (Result, error)) ([]Result, error) {
	results := make([]Result, n)
	var (
		mu   sync.Mutex
		errs []error
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.parallelism())
	for i := range n {
		group.Go(func() error {
			result, err := run(groupCtx, i)
			results[i] = result
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	group.Wait()
	return results, errors.Join(errs...)
}
