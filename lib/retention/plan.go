// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package retention

import (
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/quartermaster-backup/quartermaster/lib/catalog"
)

// Decision is the fate of one backup.
type Decision struct {
	Backup catalog.Backup `json:"-"`
	Name   string         `json:"name"`
	Tier   string         `json:"tier,omitempty"`
	Reason string         `json:"reason"`
	Size   int64          `json:"size"`
}

// TierSummary describes the kept members of a tier.
type TierSummary struct {
	Name   string    `json:"name"`
	Count  int       `json:"count"`
	Oldest time.Time `json:"oldest,omitzero"`
	Newest time.Time `json:"newest,omitzero"`
}

// Plan lists what a policy keeps and deletes, newest first.
type Plan struct {
	Keep   []Decision    `json:"keep"`
	Delete []Decision    `json:"delete"`
	Tiers  []TierSummary `json:"tiers,omitempty"`

	Total          int   `json:"total"`
	TotalBytes     int64 `json:"total_bytes"`
	SpaceToRecover int64 `json:"space_to_recover"`

	// Exempt counts complete archives, which retention never touches.
	Exempt int `json:"exempt"`
}

// planner accumulates decisions.
type planner struct {
	candidates []catalog.Backup
	plan       Plan
}

func newPlan(backups []catalog.Backup) *planner {
	p := &planner{}
	backups = slices.Clone(backups)
	slices.SortStableFunc(backups, func(a, b catalog.Backup) int {
		return b.Time().Compare(a.Time())
	})
	for _, backup := range backups {
		if backup.Metadata.BackupType == catalog.TypeComplete {
			p.plan.Exempt++
			continue
		}
		p.candidates = append(p.candidates, backup)
		p.plan.Total++
		p.plan.TotalBytes += backup.Size
	}
	return p
}

func decision(backup catalog.Backup, tier, reason string) Decision {
	return Decision{Backup: backup, Name: backup.Name(), Tier: tier, Reason: reason, Size: backup.Size}
}

func (p *planner) keep(backup catalog.Backup, tier, reason string) {
	p.plan.Keep = append(p.plan.Keep, decision(backup, tier, reason))
}

func (p *planner) remove(backup catalog.Backup, tier, reason string) {
	p.plan.Delete = append(p.plan.Delete, decision(backup, tier, reason))
}

// finish rescues the base archive of every kept incremental and totals
// the reclaimable space.
func (p *planner) finish() Plan {
	kept := make(map[string]bool, len(p.plan.Keep))
	for _, decision := range p.plan.Keep {
		kept[decision.Name] = true
	}
	var remaining []Decision
	rescued := make(map[string]string)
	for _, decision := range p.plan.Keep {
		if base := decision.Backup.Metadata.BaseBackup; base != "" && !kept[base] {
			rescued[base] = decision.Name
		}
	}
	for _, decision := range p.plan.Delete {
		if dependent, ok := rescued[decision.Name]; ok {
			decision.Reason = "base of " + dependent
			p.plan.Keep = append(p.plan.Keep, decision)
			continue
		}
		remaining = append(remaining, decision)
		p.plan.SpaceToRecover += decision.Size
	}
	p.plan.Delete = remaining
	return p.plan
}

// HumanSpace renders SpaceToRecover.
func (p Plan) HumanSpace() string {
	return humanize.IBytes(uint64(p.SpaceToRecover))
}

// Report is the outcome of Apply.
type Report struct {
	DryRun  bool     `json:"dry_run"`
	Deleted []string `json:"deleted"`
	Failed  []string `json:"failed,omitempty"`
	Freed   int64    `json:"freed"`
}

// Apply deletes every archive in plan.Delete together with its sidecar.
// It continues past failures and returns them joined. A dry run
// reports what would be deleted and touches nothing.
func Apply(plan Plan, dryRun bool, logger *slog.Logger) (Report, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	report := Report{DryRun: dryRun}
	var errs []error
	for _, decision := range plan.Delete {
		if dryRun {
			report.Deleted = append(report.Deleted, decision.Name)
			report.Freed += decision.Size
			continue
		}
		if err := catalog.Remove(decision.Backup); err != nil {
			logger.Error("retention delete failed", "archive", decision.Name, "error", err)
			report.Failed = append(report.Failed, decision.Name)
			errs = append(errs, err)
			continue
		}
		logger.Info("retention deleted archive", "archive", decision.Name, "tier", decision.Tier, "reason", decision.Reason)
		report.Deleted = append(report.Deleted, decision.Name)
		report.Freed += decision.Size
	}
	return report, errors.Join(errs...)
}
