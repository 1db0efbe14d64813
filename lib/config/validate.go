// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/quartermaster-backup/quartermaster/lib/catalog"
	"github.com/quartermaster-backup/quartermaster/lib/cron"
)

var (
	compressions = []string{"gzip", "zstd", "lz4"}
	checksums    = []string{"sha256", "blake3"}
	mirrorKinds  = []string{MirrorLocal, MirrorSFTP, MirrorS3}
	engines      = []string{EngineMySQL, EngineSQLite}
	importances  = []string{"", "critical", "high", "normal", "low"}
)

// Validate checks the configuration and reports every problem found,
// joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.Backup.LocalBase == "" {
		errs = append(errs, fmt.Errorf("backup.local_base is required"))
	}
	if !slices.Contains(compressions, c.Backup.Compression) {
		errs = append(errs, fmt.Errorf("backup.compression must be one of: %v", compressions))
	}
	if !slices.Contains(checksums, c.Backup.Checksum) {
		errs = append(errs, fmt.Errorf("backup.checksum must be one of: %v", checksums))
	}
	if c.Backup.Parallelism <= 0 {
		errs = append(errs, fmt.Errorf("backup.parallelism must be positive, got %d", c.Backup.Parallelism))
	}

	errs = append(errs, c.validateProjects()...)
	errs = append(errs, c.validateDatabases()...)
	errs = append(errs, c.validateRetention()...)
	errs = append(errs, c.validateMirror()...)
	errs = append(errs, c.validateSchedule()...)
	errs = append(errs, c.validateStorage()...)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (c *Config) validateProjects() []error {
	var errs []error
	seen := make(map[string]bool)
	for index, project := range c.Projects {
		if err := catalog.ValidateIdentifier(project.Name); err != nil {
			errs = append(errs, fmt.Errorf("projects[%d]: %w", index, err))
			continue
		}
		if seen[project.Name] {
			errs = append(errs, fmt.Errorf("projects[%d]: duplicate project name %q", index, project.Name))
		}
		seen[project.Name] = true
		if project.Path == "" {
			errs = append(errs, fmt.Errorf("project %s: path is required", project.Name))
		}
		if !slices.Contains(importances, project.Importance) {
			errs = append(errs, fmt.Errorf("project %s: importance must be one of: %v", project.Name, importances[1:]))
		}
		for _, database := range project.Databases {
			if _, ok := c.Database(database); !ok {
				errs = append(errs, fmt.Errorf("project %s: unknown database %q", project.Name, database))
			}
		}
	}
	return errs
}

func (c *Config) validateDatabases() []error {
	var errs []error
	seen := make(map[string]bool)
	for index, database := range c.Databases {
		if err := catalog.ValidateIdentifier(database.Name); err != nil {
			errs = append(errs, fmt.Errorf("databases[%d]: %w", index, err))
			continue
		}
		if seen[database.Name] {
			errs = append(errs, fmt.Errorf("databases[%d]: duplicate database name %q", index, database.Name))
		}
		seen[database.Name] = true
		if !slices.Contains(engines, database.Engine) {
			errs = append(errs, fmt.Errorf("database %s: engine must be one of: %v", database.Name, engines))
		}
		if database.Engine == EngineSQLite && database.Path == "" {
			errs = append(errs, fmt.Errorf("database %s: path is required for sqlite", database.Name))
		}
	}
	return errs
}

func (c *Config) validateRetention() []error {
	var errs []error
	retention := c.Retention
	if retention.ProjectDays <= 0 || retention.DatabaseDays <= 0 || retention.GitDays <= 0 {
		errs = append(errs, fmt.Errorf("retention: project_days, database_days, and git_days must be positive"))
	}
	if retention.KeepUncategorized < 0 {
		errs = append(errs, fmt.Errorf("retention.keep_uncategorized must not be negative"))
	}
	if retention.Tiers.Enabled {
		tiers := retention.Tiers
		if tiers.Hourly.Keep <= 0 && tiers.Daily.Keep <= 0 && tiers.Weekly.Keep <= 0 &&
			tiers.Monthly.Keep <= 0 && tiers.Yearly.Keep <= 0 {
			errs = append(errs, fmt.Errorf("retention.tiers is enabled but no tier keeps anything"))
		}
	}
	return errs
}

func (c *Config) validateMirror() []error {
	var errs []error
	seen := make(map[string]bool)
	for index, target := range c.Mirror.Targets {
		if err := catalog.ValidateIdentifier(target.Name); err != nil {
			errs = append(errs, fmt.Errorf("mirror.targets[%d]: %w", index, err))
			continue
		}
		if seen[target.Name] {
			errs = append(errs, fmt.Errorf("mirror.targets[%d]: duplicate target name %q", index, target.Name))
		}
		seen[target.Name] = true
		switch target.Kind {
		case MirrorLocal:
			if target.Path == "" {
				errs = append(errs, fmt.Errorf("mirror target %s: path is required", target.Name))
			}
		case MirrorSFTP:
			if target.Host == "" || target.User == "" || target.Path == "" {
				errs = append(errs, fmt.Errorf("mirror target %s: host, user, and path are required", target.Name))
			}
			if target.KnownHosts == "" {
				errs = append(errs, fmt.Errorf("mirror target %s: known_hosts is required", target.Name))
			}
		case MirrorS3:
			if target.Bucket == "" {
				errs = append(errs, fmt.Errorf("mirror target %s: bucket is required", target.Name))
			}
		default:
			errs = append(errs, fmt.Errorf("mirror target %s: kind must be one of: %v", target.Name, mirrorKinds))
		}
	}
	return errs
}

func (c *Config) validateSchedule() []error {
	var errs []error
	if _, err := c.Schedule.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.Schedule.OverdueAfter <= 0 {
		errs = append(errs, fmt.Errorf("schedule.overdue_after must be positive"))
	}
	seen := make(map[string]bool)
	for index, job := range c.Schedule.Jobs {
		if err := catalog.ValidateIdentifier(job.Name); err != nil {
			errs = append(errs, fmt.Errorf("schedule.jobs[%d]: %w", index, err))
			continue
		}
		if seen[job.Name] {
			errs = append(errs, fmt.Errorf("schedule.jobs[%d]: duplicate job name %q", index, job.Name))
		}
		seen[job.Name] = true
		if !slices.Contains(JobKinds, job.Kind) {
			errs = append(errs, fmt.Errorf("job %s: kind must be one of: %v", job.Name, JobKinds))
		}
		if _, err := cron.Parse(job.Cron); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", job.Name, err))
		}
	}
	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error
	storage := c.Storage
	if storage.DiskUsageCriticalPercent < 0 || storage.DiskUsageCriticalPercent > 100 {
		errs = append(errs, fmt.Errorf("storage_thresholds.disk_usage_critical_percent must be within 0-100"))
	}
	if storage.HighDuplicationRatio < 0 || storage.HighDuplicationRatio > 1 {
		errs = append(errs, fmt.Errorf("storage_thresholds.high_duplication_ratio must be within 0-1"))
	}
	if storage.DedupSavingsMB < 0 || storage.MaxBackupCountWarning < 0 {
		errs = append(errs, fmt.Errorf("storage_thresholds: counts must not be negative"))
	}
	if c.Logs.MaxLines < 0 {
		errs = append(errs, fmt.Errorf("logs.max_lines must not be negative"))
	}
	return errs
}
