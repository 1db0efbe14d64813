// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/quartermaster-backup/quartermaster/lib/config"
	"github.com/quartermaster-backup/quartermaster/lib/cron"
)

// Job is a named, scheduled run of one job kind.
type Job struct {
	Name     string
	Kind     string
	Schedule cron.Schedule
	Enabled  bool
}

// JobsFromConfig parses the configured jobs in the schedule's time
// zone.
func JobsFromConfig(settings config.ScheduleConfig) ([]Job, error) {
	location, err := settings.Location()
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(settings.Jobs))
	var errs []error
	for _, job := range settings.Jobs {
		if !slices.Contains(config.JobKinds, job.Kind) {
			errs = append(errs, fmt.Errorf("job %s: unknown kind %q", job.Name, job.Kind))
			continue
		}
		schedule, err := cron.ParseIn(job.Cron, location)
		if err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", job.Name, err))
			continue
		}
		jobs = append(jobs, Job{Name: job.Name, Kind: job.Kind, Schedule: schedule, Enabled: job.Enabled})
	}
	return jobs, errors.Join(errs...)
}

// Due returns the enabled jobs whose next run after their last
// successful run is not after now.
func Due(jobs []Job, state *State, now time.Time) []Job {
	return due(jobs, state.LastRun, now)
}

func due(jobs []Job, lastRun func(job string) time.Time, now time.Time) []Job {
	var found []Job
	for _, job := range jobs {
		if job.Enabled && job.Schedule.Due(lastRun(job.Name), now) {
			found = append(found, job)
		}
	}
	return found
}

// NextDue returns the earliest time any enabled job becomes due. ok is
// false when no job can ever fire.
func NextDue(jobs []Job, state *State, now time.Time) (time.Time, bool) {
	return nextDue(jobs, state.LastRun, now)
}

func nextDue(jobs []Job, lastRun func(job string) time.Time, now time.Time) (next time.Time, ok bool) {
	for _, job := range jobs {
		if !job.Enabled {
			continue
		}
		last := lastRun(job.Name)
		if last.IsZero() {
			return now, true
		}
		at, err := job.Schedule.Next(last)
		if err != nil {
			continue
		}
		if !ok || at.Before(next) {
			next, ok = at, true
		}
	}
	return next, ok
}

// Overdue returns the kinds of enabled jobs whose last successful run
// is older than after, or that never ran. Kinds are listed once, in
// job order.
func Overdue(jobs []Job, state *State, now time.Time, after time.Duration) []string {
	var overdue []string
	for _, job := range jobs {
		if !job.Enabled || slices.Contains(overdue, job.Kind) {
			continue
		}
		last := state.KindLastRun(job.Kind)
		if last.IsZero() || now.Sub(last) > after {
			overdue = append(overdue, job.Kind)
		}
	}
	return overdue
}
