// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package retention

import (
	"fmt"
	"slices"
	"time"

	"github.com/quartermaster-backup/quartermaster/lib/catalog"
	"github.com/quartermaster-backup/quartermaster/lib/config"
)

// Tier names. Uncategorized holds backups that fit no tier.
const (
	Hourly        = "hourly"
	Daily         = "daily"
	Weekly        = "weekly"
	Monthly       = "monthly"
	Yearly        = "yearly"
	Uncategorized = "uncategorized"
)

const day = 24 * time.Hour

// Tier keeps up to Keep backups, one per bucket, no older than MaxAge.
type Tier struct {
	Name   string        `json:"name"`
	Keep   int           `json:"keep"`
	MaxAge time.Duration `json:"max_age"`
}

// Tiers are evaluated in order, finest first.
type Tiers []Tier

// DefaultTiers is 24 hourly, 7 daily, 4 weekly, 12 monthly, 5 yearly.
func DefaultTiers() Tiers {
	return TiersFromConfig(config.DefaultTiers())
}

// TiersFromConfig converts the settings section, dropping tiers whose
// keep is not positive.
func TiersFromConfig(settings config.TiersConfig) Tiers {
	all := []struct {
		name string
		tier config.Tier
	}{
		{Hourly, settings.Hourly},
		{Daily, settings.Daily},
		{Weekly, settings.Weekly},
		{Monthly, settings.Monthly},
		{Yearly, settings.Yearly},
	}
	var tiers Tiers
	for _, entry := range all {
		if entry.tier.Keep > 0 {
			tiers = append(tiers, Tier{Name: entry.name, Keep: entry.tier.Keep, MaxAge: entry.tier.MaxAge.Std()})
		}
	}
	return tiers
}

// bucket returns the key under which a tier holds at most one backup.
func bucket(tier string, t time.Time) string {
	switch tier {
	case Hourly:
		return t.Format("2006-01-02T15")
	case Daily:
		return t.Format("2006-01-02")
	case Weekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case Monthly:
		return t.Format("2006-01")
	case Yearly:
		return t.Format("2006")
	}
	return t.Format(time.RFC3339Nano)
}

// Preservation decides which backups are never deleted.
type Preservation struct {
	PreserveTagged bool
	ImportantTags  []string
}

// Reason explains why a backup is preserved, or returns "" when it is
// not.
func (p Preservation) Reason(metadata catalog.Metadata) string {
	switch {
	case metadata.Pinned:
		return "pinned"
	case metadata.KeepForever:
		return "keep_forever"
	case metadata.Importance == catalog.ImportanceCritical || metadata.Importance == catalog.ImportanceHigh:
		return "importance " + metadata.Importance
	}
	if p.PreserveTagged {
		for _, tag := range metadata.Tags {
			if slices.Contains(p.ImportantTags, tag) {
				return "tagged " + tag
			}
		}
	}
	return ""
}

// Planner is a retention policy.
type Planner interface {
	Plan(backups []catalog.Backup, now time.Time) Plan
}

// AgePolicy deletes backups older than Days. Days of zero or less
// keeps everything.
type AgePolicy struct {
	Days int
	Preservation
}

// Plan implements Planner.
func (p AgePolicy) Plan(backups []catalog.Backup, now time.Time) Plan {
	plan := newPlan(backups)
	cutoff := now.Add(-time.Duration(p.Days) * day)
	for _, backup := range plan.candidates {
		if reason := p.Reason(backup.Metadata); reason != "" {
			plan.keep(backup, "", "preserved: "+reason)
			continue
		}
		if p.Days > 0 && backup.Time().Before(cutoff) {
			plan.remove(backup, "", fmt.Sprintf("older than %d days", p.Days))
			continue
		}
		plan.keep(backup, "", fmt.Sprintf("within %d days", p.Days))
	}
	return plan.finish()
}

// TieredPolicy thins backups into tiers.
type TieredPolicy struct {
	Tiers Tiers

	// KeepUncategorized is how many of the newest backups that fit no
	// tier survive.
	KeepUncategorized int

	Preservation
}

// Assign maps each backup path to its tier name. Backups must be
// newest first.
func (tiers Tiers) Assign(backups []catalog.Backup, now time.Time) map[string]string {
	assigned := make(map[string]string, len(backups))
	for _, tier := range tiers {
		seen := make(map[string]bool)
		for _, backup := range backups {
			if _, done := assigned[backup.Path]; done {
				continue
			}
			if now.Sub(backup.Time()) > tier.MaxAge {
				continue
			}
			key := bucket(tier.Name, backup.Time())
			if seen[key] {
				continue
			}
			seen[key] = true
			assigned[backup.Path] = tier.Name
		}
	}
	for _, backup := range backups {
		if _, done := assigned[backup.Path]; !done {
			assigned[backup.Path] = Uncategorized
		}
	}
	return assigned
}

// Plan implements Planner.
func (p TieredPolicy) Plan(backups []catalog.Backup, now time.Time) Plan {
	plan := newPlan(backups)
	assigned := p.Tiers.Assign(plan.candidates, now)

	limits := map[string]int{Uncategorized: p.KeepUncategorized}
	for _, tier := range p.Tiers {
		limits[tier.Name] = tier.Keep
	}
	counts := make(map[string]int)

	for _, backup := range plan.candidates {
		tier := assigned[backup.Path]
		counts[tier]++
		position := counts[tier]
		if reason := p.Reason(backup.Metadata); reason != "" {
			plan.keep(backup, tier, "preserved: "+reason)
			continue
		}
		if position <= limits[tier] {
			plan.keep(backup, tier, fmt.Sprintf("%s %d of %d", tier, position, limits[tier]))
			continue
		}
		plan.remove(backup, tier, fmt.Sprintf("beyond %s keep of %d", tier, limits[tier]))
	}

	result := plan.finish()
	for _, tier := range append(slices.Clone(p.Tiers), Tier{Name: Uncategorized}) {
		summary := TierSummary{Name: tier.Name}
		for _, decision := range result.Keep {
			if decision.Tier != tier.Name {
				continue
			}
			summary.Count++
			when := decision.Backup.Time()
			if summary.Oldest.IsZero() || when.Before(summary.Oldest) {
				summary.Oldest = when
			}
			if when.After(summary.Newest) {
				summary.Newest = when
			}
		}
		result.Tiers = append(result.Tiers, summary)
	}
	return result
}
