// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/quartermaster-backup/quartermaster/lib/catalog"
	"github.com/quartermaster-backup/quartermaster/lib/config"
)

// Recommendation levels, most urgent first.
const (
	LevelCritical = "critical"
	LevelHigh     = "high"
	LevelMedium   = "medium"
	LevelLow      = "low"
)

// reclaimWorthReporting is how much a cleanup must free before the
// report recommends running it.
const reclaimWorthReporting = 1 << 30

// Recommendation is one suggestion of a storage report.
type Recommendation struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Candidate is an archive the configured policy would delete.
type Candidate struct {
	Kind catalog.Kind `json:"kind"`
	Item string       `json:"item"`
	Decision
}

// StorageReport combines usage, cleanup candidates, and duplication
// into recommendations. Building it changes nothing on disk.
type StorageReport struct {
	Generated       time.Time                 `json:"generated"`
	Usage           catalog.Usage             `json:"usage"`
	Candidates      []Candidate               `json:"candidates"`
	CandidateBytes  int64                     `json:"candidate_bytes"`
	Duplication     catalog.DuplicationReport `json:"duplication"`
	Recommendations []Recommendation          `json:"recommendations"`
}

// StorageReport plans every item under the configured policy and
// judges the result against thresholds.
func (m *Manager) StorageReport(ctx context.Context, thresholds config.StorageThresholds) (StorageReport, error) {
	report := StorageReport{Generated: m.now()}
	var errs []error

	usage, err := m.Catalog.Usage()
	if err != nil {
		errs = append(errs, err)
	}
	report.Usage = usage

	for _, item := range usage.Items {
		if err := ctx.Err(); err != nil {
			return report, errors.Join(append(errs, err)...)
		}
		plan, err := m.Plan(item.Kind, item.Item)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, decision := range plan.Delete {
			report.Candidates = append(report.Candidates, Candidate{Kind: item.Kind, Item: item.Item, Decision: decision})
			report.CandidateBytes += decision.Size
		}
	}

	duplication, err := m.Catalog.Duplication(thresholds.HighDuplicationRatio)
	if err != nil {
		errs = append(errs, err)
	}
	report.Duplication = duplication
	report.Recommendations = recommend(report, thresholds)
	return report, errors.Join(errs...)
}

func recommend(report StorageReport, thresholds config.StorageThresholds) []Recommendation {
	var recommendations []Recommendation
	add := func(level, format string, args ...any) {
		recommendations = append(recommendations, Recommendation{Level: level, Message: fmt.Sprintf(format, args...)})
	}

	if disk := report.Usage.Disk; disk != nil && disk.UsedPercent() > thresholds.DiskUsageCriticalPercent {
		add(LevelCritical, "Disk usage is at %.1f%%. Clean up now.", disk.UsedPercent())
	}
	if report.CandidateBytes > reclaimWorthReporting {
		add(LevelHigh, "Applying retention would free %s.", humanize.IBytes(uint64(report.CandidateBytes)))
	}
	if report.Duplication.Redundant > int64(thresholds.DedupSavingsMB)<<20 {
		add(LevelMedium, "%s is held in duplicate archives.", report.Duplication.HumanRedundant())
	}
	if limit := thresholds.MaxBackupCountWarning; limit > 0 {
		for _, item := range report.Usage.Items {
			if item.Count > limit {
				add(LevelLow, "%s %s has %d archives. Consider a stricter retention policy.", item.Kind, item.Item, item.Count)
			}
		}
	}
	return recommendations
}
