// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"errors"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/quartermaster-backup/quartermaster/lib/diskspace"
)

// ItemUsage summarises one item's archives.
type ItemUsage struct {
	Kind   Kind      `json:"kind"`
	Item   string    `json:"item"`
	Count  int       `json:"count"`
	Bytes  int64     `json:"bytes"`
	Oldest time.Time `json:"oldest"`
	Newest time.Time `json:"newest"`
}

// HumanSize renders Bytes in IEC units.
func (u ItemUsage) HumanSize() string { return humanize.IBytes(uint64(u.Bytes)) }

// KindUsage totals one kind.
type KindUsage struct {
	Count int   `json:"count"`
	Bytes int64 `json:"bytes"`
}

// Usage is the storage picture of a local base.
type Usage struct {
	Items  []ItemUsage        `json:"items"`
	ByKind map[Kind]KindUsage `json:"by_kind"`
	Count  int                `json:"count"`
	Bytes  int64              `json:"bytes"`

	// Disk is the volume holding the base. Nil when statfs failed.
	Disk *diskspace.Usage `json:"disk,omitempty"`
}

// HumanSize renders Bytes in IEC units.
func (u Usage) HumanSize() string { return humanize.IBytes(uint64(u.Bytes)) }

// Usage walks every item and totals archive sizes.
func (c *Catalog) Usage() (Usage, error) {
	usage := Usage{ByKind: make(map[Kind]KindUsage)}
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
			if len(backups) == 0 {
				continue
			}
			entry := ItemUsage{
				Kind:   kind,
				Item:   item,
				Count:  len(backups),
				Newest: backups[0].Time(),
				Oldest: backups[len(backups)-1].Time(),
			}
			for _, backup := range backups {
				entry.Bytes += backup.Size
			}
			usage.Items = append(usage.Items, entry)

			total := usage.ByKind[kind]
			total.Count += entry.Count
			total.Bytes += entry.Bytes
			usage.ByKind[kind] = total
			usage.Count += entry.Count
			usage.Bytes += entry.Bytes
		}
	}

	if disk, err := diskspace.Stat(c.Layout.Base); err == nil {
		usage.Disk = &disk
	} else {
		c.Logger.Warn("disk usage unavailable", "path", c.Layout.Base, "error", err)
	}
	return usage, errors.Join(errs...)
}
