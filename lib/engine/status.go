// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"time"

	"github.com/quartermaster-backup/quartermaster/lib/catalog"
	"github.com/quartermaster-backup/quartermaster/lib/gitrepo"
)

// GitSummary is the working tree state of a project repository.
type GitSummary struct {
	Branch      string `json:"branch"`
	Dirty       bool   `json:"dirty"`
	Changes     int    `json:"changes"`
	Commits     int    `json:"commits"`
	LastCommit  string `json:"last_commit,omitempty"`
	Savepointed bool   `json:"savepointed"`
}

// ItemStatus is the backup state of one configured item.
type ItemStatus struct {
	Kind    catalog.Kind `json:"kind"`
	Item    string       `json:"item"`
	Enabled bool         `json:"enabled"`

	Latest  time.Time `json:"latest,omitzero"`
	Count   int       `json:"count"`
	Bytes   int64     `json:"bytes"`
	Overdue bool      `json:"overdue"`

	Git *GitSummary `json:"git,omitempty"`
}

// Status reports every configured project and database. An enabled
// item is overdue when it has no backup or its newest backup is older
// than schedule.overdue_after.
func (e *Engine) Status(ctx context.Context) ([]ItemStatus, error) {
	now := e.now()
	overdueAfter := e.Config.Schedule.OverdueAfter.Std()
	var (
		statuses []ItemStatus
		errs     []error
	)

	item := func(kind catalog.Kind, name string, enabled bool) ItemStatus {
		status := ItemStatus{Kind: kind, Item: name, Enabled: enabled}
		backups, err := e.Catalog.List(kind, name)
		if err != nil {
			errs = append(errs, err)
		}
		for _, backup := range backups {
			status.Count++
			status.Bytes += backup.Size
			if backup.Metadata.BackupType != catalog.TypeComplete && backup.Time().After(status.Latest) {
				status.Latest = backup.Time()
			}
		}
		status.Overdue = enabled && (status.Latest.IsZero() ||
			(overdueAfter > 0 && now.Sub(status.Latest) > overdueAfter))
		return status
	}

	for _, project := range e.Config.Projects {
		status := item(catalog.KindProject, project.Name, project.Enabled)
		repository := gitrepo.NewRepository(project.Path)
		if repository.IsRepository(ctx) {
			git, err := repository.Status(ctx)
			if err != nil {
				errs = append(errs, err)
			} else {
				summary := &GitSummary{
					Branch:      git.Branch,
					Dirty:       git.Dirty,
					Changes:     git.TotalChanges(),
					Commits:     git.CommitCount,
					Savepointed: git.HasSavepoint(),
				}
				if len(git.Commits) > 0 {
					summary.LastCommit = git.Commits[0].Hash
				}
				status.Git = summary
			}
		}
		statuses = append(statuses, status)
	}
	for _, database := range e.Config.Databases {
		statuses = append(statuses, item(catalog.KindDatabase, database.Name, database.Enabled))
	}
	return statuses, errors.Join(errs...)
}
