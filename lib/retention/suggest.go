// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package retention

import (
	"time"

	"github.com/quartermaster-backup/quartermaster/lib/catalog"
)

// Suggestion proposes tiers that fit how often an item is backed up.
type Suggestion struct {
	// Frequency is "hourly", "daily", or "weekly".
	Frequency       string        `json:"frequency"`
	AverageInterval time.Duration `json:"average_interval"`
	Tiers           Tiers         `json:"tiers"`

	CurrentCount  int   `json:"current_count"`
	CurrentBytes  int64 `json:"current_bytes"`
	ProposedCount int   `json:"proposed_count"`
	ProposedBytes int64 `json:"proposed_bytes"`
	Savings       int64 `json:"savings"`
}

// SuggestTiers picks a tier set from the average interval between
// backups and reports what applying it now would keep. Fewer than two
// backups give no interval, and the default tiers are suggested.
func SuggestTiers(backups []catalog.Backup, now time.Time) Suggestion {
	suggestion := Suggestion{Frequency: Daily, Tiers: DefaultTiers()}
	if len(backups) >= 2 {
		newest, oldest := backups[0].Time(), backups[0].Time()
		for _, backup := range backups[1:] {
			if t := backup.Time(); t.After(newest) {
				newest = t
			} else if t.Before(oldest) {
				oldest = t
			}
		}
		suggestion.AverageInterval = newest.Sub(oldest) / time.Duration(len(backups)-1)
		switch {
		case suggestion.AverageInterval <= time.Hour:
			suggestion.Frequency = Hourly
			suggestion.Tiers = Tiers{
				{Name: Hourly, Keep: 48, MaxAge: 48 * time.Hour},
				{Name: Daily, Keep: 14, MaxAge: 14 * day},
				{Name: Weekly, Keep: 8, MaxAge: 56 * day},
				{Name: Monthly, Keep: 12, MaxAge: 360 * day},
			}
		case suggestion.AverageInterval <= day:
			suggestion.Tiers = Tiers{
				{Name: Daily, Keep: 30, MaxAge: 30 * day},
				{Name: Weekly, Keep: 12, MaxAge: 84 * day},
				{Name: Monthly, Keep: 24, MaxAge: 720 * day},
			}
		default:
			suggestion.Frequency = Weekly
			suggestion.Tiers = Tiers{
				{Name: Weekly, Keep: 12, MaxAge: 84 * day},
				{Name: Monthly, Keep: 36, MaxAge: 1080 * day},
			}
		}
	}

	plan := TieredPolicy{Tiers: suggestion.Tiers, KeepUncategorized: DefaultKeepUncategorized}.Plan(backups, now)
	suggestion.CurrentCount = plan.Total
	suggestion.CurrentBytes = plan.TotalBytes
	suggestion.ProposedCount = len(plan.Keep)
	suggestion.ProposedBytes = plan.TotalBytes - plan.SpaceToRecover
	suggestion.Savings = plan.SpaceToRecover
	return suggestion
}
