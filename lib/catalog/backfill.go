// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/quartermaster-backup/quartermaster/lib/checksum"
)

// BackfillReport counts the work done by BackfillChecksums.
type BackfillReport struct {
	Total   int `json:"total"`
	Updated int `json:"updated"`
	Created int `json:"created"`
	Failed  int `json:"failed"`
}

// BackfillChecksums computes checksum_sha256 for every archive whose
// sidecar lacks one, and writes sidecars for archives that have none.
// An empty kind covers every kind; an empty item covers every item.
// Individual failures are counted and joined into the returned error.
func (c *Catalog) BackfillChecksums(ctx context.Context, kind Kind, item string) (BackfillReport, error) {
	var report BackfillReport
	var errs []error

	kinds := Kinds
	if kind != "" {
		kinds = []Kind{kind}
	}
	for _, kind := range kinds {
		items := []string{item}
		if item == "" {
			var err error
			if items, err = c.Items(kind); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		for _, item := range items {
			backups, err := c.List(kind, item)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			for _, backup := range backups {
				if err := ctx.Err(); err != nil {
					return report, err
				}
				report.Total++
				if backup.HasSidecar && backup.Metadata.ChecksumSHA256 != "" {
					continue
				}
				if err := c.backfill(backup); err != nil {
					report.Failed++
					errs = append(errs, err)
					continue
				}
				if backup.HasSidecar {
					report.Updated++
				} else {
					report.Created++
				}
			}
		}
	}
	return report, errors.Join(errs...)
}

func (c *Catalog) backfill(backup Backup) error {
	digest, err := checksum.File(backup.Path, checksum.SHA256)
	if err != nil {
		return fmt.Errorf("checksumming %s: %w", backup.Name(), err)
	}
	metadata := backup.Metadata
	metadata.ChecksumSHA256 = checksum.Hex(digest)
	if metadata.Digest == "" {
		metadata.Digest = digest.String()
	}
	if !backup.HasSidecar {
		metadata.CreatedBy = "backfill"
	}
	if err := WriteMetadata(backup.SidecarPath(), metadata); err != nil {
		return err
	}
	c.Logger.Info("checksum backfilled", "backup", backup.Name(), "sha256", metadata.ChecksumSHA256[:12], "created_sidecar", !backup.HasSidecar)
	return nil
}
