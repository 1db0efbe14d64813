// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quartermaster-backup/quartermaster/lib/catalog"
	"github.com/quartermaster-backup/quartermaster/lib/config"
	"github.com/quartermaster-backup/quartermaster/lib/engine"
	"github.com/quartermaster-backup/quartermaster/lib/mirror"
	"github.com/quartermaster-backup/quartermaster/lib/retention"
)

// Outcome counts the items a task touched.
type Outcome struct {
	Succeeded int
	Failed    int
	Skipped   int
	Message   string
}

// Executor performs the work of one task.
type Executor interface {
	Execute(ctx context.Context, kind, target string) (Outcome, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, kind, target string) (Outcome, error)

func (f ExecutorFunc) Execute(ctx context.Context, kind, target string) (Outcome, error) {
	return f(ctx, kind, target)
}

// Actions executes tasks with the backup engine, retention manager,
// and mirror.
type Actions struct {
	Engine    *engine.Engine
	Retention *retention.Manager
	Mirror    *mirror.Mirror

	// OpenTargets connects to the configured mirror targets for one
	// sync. The targets are closed afterwards.
	OpenTargets func(ctx context.Context) ([]mirror.Target, error)
}

// Execute runs one task kind, for a single target when one is given.
func (a *Actions) Execute(ctx context.Context, kind, target string) (Outcome, error) {
	switch kind {
	case config.JobProjects:
		if target != "" {
			var options engine.ProjectOptions
			if project, ok := a.Engine.Config.Project(target); ok {
				options = engine.ConfiguredOptions(project)
			}
			return fromResults(single(a.Engine.BackupProject(ctx, target, options)))
		}
		return fromResults(a.Engine.BackupAllProjects(ctx))
	case config.JobDatabases:
		if target != "" {
			return fromResults(single(a.Engine.BackupDatabase(ctx, target)))
		}
		return fromResults(a.Engine.BackupAllDatabases(ctx))
	case config.JobGit:
		if target != "" {
			return fromResults(single(a.Engine.BackupGit(ctx, target)))
		}
		return fromResults(a.Engine.BackupAllGit(ctx))
	case config.JobRetention:
		return a.retention(ctx, target)
	case config.JobMirror:
		return a.mirror(ctx, target)
	case config.JobVerify:
		report, err := a.Engine.VerifyAll(ctx)
		var outcome Outcome
		for _, entry := range report {
			if entry.Valid {
				outcome.Succeeded++
			} else {
				outcome.Failed++
			}
		}
		outcome.Message = fmt.Sprintf("%d of %d archives valid", outcome.Succeeded, len(report))
		return outcome, err
	}
	return Outcome{}, fmt.Errorf("unknown task kind %q", kind)
}

func single(result engine.Result, err error) ([]engine.Result, error) {
	return []engine.Result{result}, err
}

func fromResults(results []engine.Result, err error) (Outcome, error) {
	var outcome Outcome
	for _, result := range results {
		switch result.Status {
		case engine.StatusSuccess:
			outcome.Succeeded++
		case engine.StatusSkipped:
			outcome.Skipped++
		default:
			outcome.Failed++
		}
	}
	outcome.Message = fmt.Sprintf("%d succeeded, %d failed, %d skipped", outcome.Succeeded, outcome.Failed, outcome.Skipped)
	return outcome, err
}

func (a *Actions) retention(ctx context.Context, target string) (Outcome, error) {
	var (
		results []retention.Result
		err     error
	)
	if target != "" {
		kind, item, ok := strings.Cut(target, "/")
		if !ok || item == "" {
			return Outcome{}, fmt.Errorf("retention target %q: want <kind>/<item>", target)
		}
		parsed, parseErr := catalog.ParseKind(kind)
		if parseErr != nil {
			return Outcome{}, parseErr
		}
		var result retention.Result
		result, err = a.Retention.Enforce(ctx, parsed, item, false)
		results = []retention.Result{result}
	} else {
		results, err = a.Retention.EnforceAll(ctx, false)
	}

	var outcome Outcome
	deleted := 0
	for _, result := range results {
		deleted += len(result.Report.Deleted)
		if len(result.Report.Failed) > 0 {
			outcome.Failed++
		} else {
			outcome.Succeeded++
		}
	}
	outcome.Message = fmt.Sprintf("%d archives deleted across %d items", deleted, len(results))
	if len(results) == 0 && err == nil {
		outcome.Skipped = 1
		outcome.Message = "no archives"
	}
	return outcome, err
}

func (a *Actions) mirror(ctx context.Context, target string) (Outcome, error) {
	if a.OpenTargets == nil || a.Mirror == nil {
		return Outcome{Skipped: 1, Message: "no mirror targets configured"}, nil
	}
	targets, err := a.OpenTargets(ctx)
	defer func() {
		for _, opened := range targets {
			opened.Close()
		}
	}()
	if err != nil && len(targets) == 0 {
		return Outcome{}, err
	}
	if target != "" {
		var selected []mirror.Target
		for _, opened := range targets {
			if opened.Name() == target {
				selected = append(selected, opened)
			}
		}
		if len(selected) == 0 {
			return Outcome{}, errors.Join(err, fmt.Errorf("mirror target %q is not configured", target))
		}
		targets = selected
	}
	if len(targets) == 0 {
		return Outcome{Skipped: 1, Message: "no mirror targets configured"}, err
	}

	reports, syncErr := a.Mirror.SyncAll(ctx, targets)
	var outcome Outcome
	copied := 0
	for _, report := range reports {
		copied += report.Copied
		if len(report.Failed) > 0 {
			outcome.Failed++
		} else {
			outcome.Succeeded++
		}
	}
	if err != nil {
		outcome.Failed++
	}
	outcome.Message = fmt.Sprintf("%d files copied to %d targets", copied, len(reports))
	return outcome, errors.Join(err, syncErr)
}
