// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/quartermaster-backup/quartermaster/lib/gitrepo"
	"github.com/quartermaster-backup/quartermaster/lib/notify"
)

// DefaultSnapshotMessage is the savepoint commit message when the
// caller gives none.
const DefaultSnapshotMessage = "quartermaster savepoint"

// Step is one stage of a quick snapshot.
type Step struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`

	// Result is set for backup steps.
	Result *Result `json:"result,omitempty"`
}

// SnapshotReport is the outcome of QuickSnapshot.
type SnapshotReport struct {
	Project string `json:"project"`
	Status  Status `json:"status"`
	Commit  string `json:"commit,omitempty"`
	Steps   []Step `json:"steps"`
}

// Succeeded counts steps that succeeded or had nothing to do.
func (r SnapshotReport) Succeeded() int {
	count := 0
	for _, step := range r.Steps {
		if step.Status != StatusFailed {
			count++
		}
	}
	return count
}

// QuickSnapshot commits a git savepoint of the project when its tree
// has changes, takes a forced project backup, and dumps each database
// the project lists. Every step runs even if an earlier one failed.
func (e *Engine) QuickSnapshot(ctx context.Context, name, message string) (SnapshotReport, error) {
	report := SnapshotReport{Project: name}
	project, err := e.project(name)
	if err != nil {
		return report, err
	}
	if message == "" {
		message = DefaultSnapshotMessage
	}

	var errs []error
	repository := gitrepo.NewRepository(project.Path)
	savepoint := Step{Name: "git savepoint"}
	if !repository.IsRepository(ctx) {
		savepoint.Status = StatusSkipped
		savepoint.Message = "not a git repository"
	} else {
		hash, err := repository.Savepoint(ctx, message)
		switch {
		case errors.Is(err, gitrepo.ErrNothingToCommit):
			savepoint.Status = StatusSkipped
			savepoint.Message = "working tree clean"
		case err != nil:
			savepoint.Status = StatusFailed
			savepoint.Error = err.Error()
			errs = append(errs, fmt.Errorf("git savepoint: %w", err))
		default:
			savepoint.Status = StatusSuccess
			savepoint.Message = "committed " + hash
			report.Commit = hash
		}
	}
	report.Steps = append(report.Steps, savepoint)

	backup, err := e.BackupProject(ctx, project.Name, ProjectOptions{Force: true})
	report.Steps = append(report.Steps, resultStep("project backup", backup))
	if err != nil {
		errs = append(errs, err)
	}

	for _, database := range project.Databases {
		dump, err := e.BackupDatabase(ctx, database)
		report.Steps = append(report.Steps, resultStep("database "+database, dump))
		if err != nil {
			errs = append(errs, err)
		}
	}

	succeeded := 0
	for _, step := range report.Steps {
		if step.Status == StatusSuccess {
			succeeded++
		}
	}
	switch {
	case len(errs) == 0:
		report.Status = StatusSuccess
	case succeeded == 0:
		report.Status = StatusFailed
	default:
		report.Status = StatusPartial
	}

	if e.Notifier != nil {
		e.Notifier.Notify(ctx, notify.Event{
			Kind:      notify.Snapshot,
			ItemKind:  "project",
			Item:      project.Name,
			Succeeded: report.Succeeded(),
			Total:     len(report.Steps),
			Error:     errString(errors.Join(errs...)),
		})
	}
	e.Logger.Info("quick snapshot finished", "project", project.Name, "status", report.Status, "steps", len(report.Steps))
	return report, errors.Join(errs...)
}

func resultStep(name string, result Result) Step {
	return Step{
		Name:    name,
		Status:  result.Status,
		Message: result.Message,
		Error:   result.Error,
		Result:  &result,
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
