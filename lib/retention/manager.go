// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quartermaster-backup/quartermaster/lib/catalog"
	"github.com/quartermaster-backup/quartermaster/lib/clock"
	"github.com/quartermaster-backup/quartermaster/lib/config"
	"github.com/quartermaster-backup/quartermaster/lib/metrics"
)

// DefaultKeepUncategorized is the uncategorized keep used for tier
// suggestions.
const DefaultKeepUncategorized = 3

// Manager enforces the configured policy over one archive tree.
type Manager struct {
	Catalog *catalog.Catalog
	Config  config.RetentionConfig

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Metrics may be nil.
	Metrics *metrics.Metrics

	Logger *slog.Logger
}

// Result is the outcome of enforcing retention on one item.
type Result struct {
	Kind   catalog.Kind `json:"kind"`
	Item   string       `json:"item"`
	Plan   Plan         `json:"plan"`
	Report Report       `json:"report"`
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return m.Logger
}

func (m *Manager) now() time.Time {
	if m.Clock == nil {
		return time.Now()
	}
	return m.Clock.Now()
}

func (m *Manager) preservation() Preservation {
	return Preservation{PreserveTagged: m.Config.PreserveTagged, ImportantTags: m.Config.ImportantTags}
}

// Days is the age-policy horizon for kind.
func (m *Manager) Days(kind catalog.Kind) int {
	switch kind {
	case catalog.KindProject:
		return m.Config.ProjectDays
	case catalog.KindDatabase:
		return m.Config.DatabaseDays
	case catalog.KindGit:
		return m.Config.GitDays
	}
	return 0
}

// Policy returns the planner configured for kind.
func (m *Manager) Policy(kind catalog.Kind) Planner {
	if m.Config.Tiers.Enabled {
		return TieredPolicy{
			Tiers:             TiersFromConfig(m.Config.Tiers),
			KeepUncategorized: m.Config.KeepUncategorized,
			Preservation:      m.preservation(),
		}
	}
	return AgePolicy{Days: m.Days(kind), Preservation: m.preservation()}
}

// Plan computes the plan for one item without changing anything.
func (m *Manager) Plan(kind catalog.Kind, item string) (Plan, error) {
	backups, err := m.Catalog.List(kind, item)
	if err != nil && !errors.Is(err, catalog.ErrNoBackups) {
		return Plan{}, fmt.Errorf("listing %s %s: %w", kind, item, err)
	}
	return m.Policy(kind).Plan(backups, m.now()), nil
}

// Enforce plans and applies retention for one item, then re-points its
// latest links at the surviving archives.
func (m *Manager) Enforce(ctx context.Context, kind catalog.Kind, item string, dryRun bool) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	plan, err := m.Plan(kind, item)
	if err != nil {
		return Result{}, err
	}
	result := Result{Kind: kind, Item: item, Plan: plan}
	logger := m.logger().With("kind", kind, "item", item)

	report, applyErr := Apply(plan, dryRun, logger)
	result.Report = report
	if dryRun {
		logger.Info("retention dry run", "would_delete", len(report.Deleted), "keep", len(plan.Keep), "space", plan.HumanSpace())
		return result, nil
	}
	m.Metrics.RetentionDeleted(string(kind), len(report.Deleted))

	var linkErr error
	if len(report.Deleted) > 0 {
		linkErr = m.Catalog.RefreshLatestLinks(kind, item)
		logger.Info("retention complete", "deleted", len(report.Deleted), "kept", len(plan.Keep), "freed", report.Freed)
	}
	return result, errors.Join(applyErr, linkErr)
}

// EnforceAll runs Enforce over every item of every kind. It continues
// past failures.
func (m *Manager) EnforceAll(ctx context.Context, dryRun bool) ([]Result, error) {
	var results []Result
	var errs []error
	for _, kind := range catalog.Kinds {
		items, err := m.Catalog.Items(kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("listing %s items: %w", kind, err))
			continue
		}
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return results, errors.Join(append(errs, err)...)
			}
			result, err := m.Enforce(ctx, kind, item, dryRun)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s %s: %w", kind, item, err))
			}
			results = append(results, result)
		}
	}
	return results, errors.Join(errs...)
}

// Status describes the retention state of one item.
type Status struct {
	Kind       catalog.Kind  `json:"kind"`
	Item       string        `json:"item"`
	Policy     string        `json:"policy"`
	Total      int           `json:"total"`
	TotalBytes int64         `json:"total_bytes"`
	Tiers      []TierSummary `json:"tiers,omitempty"`
	Preserved  int           `json:"preserved"`
	Expiring   int           `json:"expiring"`

	// NextExpiry is when the next kept backup leaves its tier or
	// crosses the age horizon. Zero when nothing will expire.
	NextExpiry time.Time `json:"next_expiry,omitzero"`
}

// Status reports counts per tier, the next expiry, and total size.
func (m *Manager) Status(kind catalog.Kind, item string) (Status, error) {
	plan, err := m.Plan(kind, item)
	if err != nil {
		return Status{}, err
	}
	status := Status{
		Kind:       kind,
		Item:       item,
		Total:      plan.Total,
		TotalBytes: plan.TotalBytes,
		Tiers:      plan.Tiers,
		Expiring:   len(plan.Delete),
	}

	maxAge := make(map[string]time.Duration)
	switch policy := m.Policy(kind).(type) {
	case TieredPolicy:
		status.Policy = "tiered"
		for _, tier := range policy.Tiers {
			maxAge[tier.Name] = tier.MaxAge
		}
	case AgePolicy:
		status.Policy = fmt.Sprintf("age (%d days)", policy.Days)
		if policy.Days > 0 {
			maxAge[""] = time.Duration(policy.Days) * day
		}
	}

	preservation := m.preservation()
	for _, decision := range plan.Keep {
		if preservation.Reason(decision.Backup.Metadata) != "" {
			status.Preserved++
			continue
		}
		age, ok := maxAge[decision.Tier]
		if !ok {
			continue
		}
		expiry := decision.Backup.Time().Add(age)
		if status.NextExpiry.IsZero() || expiry.Before(status.NextExpiry) {
			status.NextExpiry = expiry
		}
	}
	return status, nil
}
