// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// TimelinePoint is the archive tree as of the end of one day: every
// archive still on disk that was taken on or before Date.
type TimelinePoint struct {
	Date   string             `json:"date"`
	ByKind map[Kind]KindUsage `json:"by_kind"`
	Count  int                `json:"count"`
	Bytes  int64              `json:"bytes"`
}

// Timeline returns days+1 points, oldest first, ending on the day of
// now. Days are calendar days in now's location.
func (c *Catalog) Timeline(days int, now time.Time) ([]TimelinePoint, error) {
	if days < 0 {
		return nil, fmt.Errorf("timeline days must not be negative, got %d", days)
	}
	backups, err := c.all()
	slices.SortFunc(backups, func(a, b Backup) int { return a.Time().Compare(b.Time()) })

	location := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, location)
	points := make([]TimelinePoint, 0, days+1)
	running := make(map[Kind]KindUsage)
	var count int
	var bytes int64
	next := 0

	for offset := days; offset >= 0; offset-- {
		dayStart := today.AddDate(0, 0, -offset)
		dayEnd := dayStart.AddDate(0, 0, 1)
		for next < len(backups) && backups[next].Time().In(location).Before(dayEnd) {
			backup := backups[next]
			total := running[backup.Kind]
			total.Count++
			total.Bytes += backup.Size
			running[backup.Kind] = total
			count++
			bytes += backup.Size
			next++
		}
		point := TimelinePoint{
			Date:   dayStart.Format(time.DateOnly),
			ByKind: make(map[Kind]KindUsage, len(running)),
			Count:  count,
			Bytes:  bytes,
		}
		for kind, total := range running {
			point.ByKind[kind] = total
		}
		points = append(points, point)
	}
	return points, err
}

// ItemDuplication describes repeated content among one item's
// archives.
type ItemDuplication struct {
	Kind       Kind    `json:"kind"`
	Item       string  `json:"item"`
	Count      int     `json:"count"`
	Bytes      int64   `json:"bytes"`
	Distinct   int     `json:"distinct"`
	Duplicates int     `json:"duplicates"`
	Ratio      float64 `json:"ratio"`

	// Redundant is the size of every copy beyond the first of each
	// distinct content.
	Redundant int64 `json:"redundant_bytes"`

	// ByChecksum is false when some archive lacked a recorded checksum
	// and was matched on size alone.
	ByChecksum bool `json:"by_checksum"`
}

// DuplicationReport summarises repeated archives across the tree.
type DuplicationReport struct {
	Items []ItemDuplication `json:"items"`

	// High lists items whose Ratio exceeds the threshold passed to
	// Duplication.
	High []ItemDuplication `json:"high"`

	Redundant int64 `json:"redundant_bytes"`
}

// HumanRedundant renders Redundant in IEC units.
func (r DuplicationReport) HumanRedundant() string { return humanize.IBytes(uint64(r.Redundant)) }

// contentKey identifies an archive's bytes: the recorded checksum when
// there is one, otherwise only its size.
func contentKey(backup Backup) (string, bool) {
	switch {
	case backup.Metadata.ChecksumSHA256 != "":
		return "sha256:" + strings.ToLower(backup.Metadata.ChecksumSHA256), true
	case backup.Metadata.Digest != "":
		return backup.Metadata.Digest, true
	}
	return fmt.Sprintf("size:%d", backup.Size), false
}

// Duplication groups each item's archives by content. Items with a
// single archive are left out.
func (c *Catalog) Duplication(highRatio float64) (DuplicationReport, error) {
	report := DuplicationReport{}
	var errs []error
	for _, kind := range Kinds {
		items, err := c.Items(kind)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, item := range items {
			backups, err := c.List(kind, item)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if len(backups) < 2 {
				continue
			}
			entry := duplicationOf(kind, item, backups)
			report.Items = append(report.Items, entry)
			report.Redundant += entry.Redundant
			if entry.Ratio > highRatio {
				report.High = append(report.High, entry)
			}
		}
	}
	return report, errors.Join(errs...)
}

func duplicationOf(kind Kind, item string, backups []Backup) ItemDuplication {
	entry := ItemDuplication{Kind: kind, Item: item, Count: len(backups), ByChecksum: true}
	seen := make(map[string]bool)
	for _, backup := range backups {
		entry.Bytes += backup.Size
		key, exact := contentKey(backup)
		if !exact {
			entry.ByChecksum = false
		}
		if seen[key] {
			entry.Duplicates++
			entry.Redundant += backup.Size
			continue
		}
		seen[key] = true
	}
	entry.Distinct = len(seen)
	entry.Ratio = float64(entry.Duplicates) / float64(entry.Count)
	return entry
}

// all lists every archive of every item, continuing past failures.
func (c *Catalog) all() ([]Backup, error) {
	var backups []Backup
	var errs []error
	for _, kind := range Kinds {
		items, err := c.Items(kind)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, item := range items {
			listed, err := c.List(kind, item)
			if err != nil {
				errs = append(errs, err)
			}
			backups = append(backups, listed...)
		}
	}
	return backups, errors.Join(errs...)
}
