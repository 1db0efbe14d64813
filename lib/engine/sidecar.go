// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/quartermaster-backup/quartermaster/lib/catalog"
	"github.com/quartermaster-backup/quartermaster/lib/checksum"
	"github.com/quartermaster-backup/quartermaster/lib/version"
)

// record describes a freshly built archive for its sidecar.
type record struct {
	kind        catalog.Kind
	item        string
	description string
	backupType  catalog.BackupType
	compression string
	digest      checksum.Digest
	size        int64

	tags       []string
	importance string

	filesAdded   int
	filesSkipped int
	baseBackup   string
}

// writeSidecar writes the metadata for archivePath. The hex SHA-256
// field is mandatory, so archives digested with another algorithm are
// hashed a second time.
func (e *Engine) writeSidecar(archivePath string, r record) (catalog.Metadata, error) {
	sha256Hex := checksum.Hex(r.digest)
	if r.digest.Algorithm() != checksum.SHA256 {
		sum, err := checksum.File(archivePath, checksum.SHA256)
		if err != nil {
			return catalog.Metadata{}, fmt.Errorf("hashing %s: %w", filepath.Base(archivePath), err)
		}
		sha256Hex = checksum.Hex(sum)
	}

	metadata := catalog.Metadata{
		BackupName:     filepath.Base(archivePath),
		ItemName:       r.item,
		ItemType:       r.kind,
		Description:    r.description,
		Timestamp:      catalog.Time{Time: e.now()},
		ChecksumSHA256: sha256Hex,
		Digest:         r.digest.String(),
		BackupType:     r.backupType,
		Compression:    r.compression,
		CreatedBy:      catalog.CreatedBy + " " + version.Short(),
		Version:        catalog.MetadataVersion,
		Tags:           slices.Clone(r.tags),
		Importance:     r.importance,
		FilesAdded:     r.filesAdded,
		FilesSkipped:   r.filesSkipped,
		BaseBackup:     r.baseBackup,
	}
	metadata.SetSize(r.size)
	if err := catalog.WriteMetadata(catalog.SidecarPath(archivePath), metadata); err != nil {
		return catalog.Metadata{}, fmt.Errorf("writing metadata: %w", err)
	}
	return metadata, nil
}

// publish writes the sidecar, re-points the latest link, and verifies
// the archive when configured. Any failure discards the archive.
func (e *Engine) publish(ctx context.Context, archivePath string, r record) (catalog.Metadata, error) {
	metadata, err := e.writeSidecar(archivePath, r)
	if err != nil {
		e.discard(archivePath)
		return catalog.Metadata{}, err
	}
	extension, _ := catalog.ArchiveExtension(filepath.Base(archivePath))
	if err := catalog.UpdateLatestLink(archivePath, catalog.LatestLinkName(r.backupType, extension)); err != nil {
		e.discard(archivePath)
		return catalog.Metadata{}, err
	}
	if e.Config.Backup.VerifyAfterBackup {
		if err := e.Verify(ctx, archivePath); err != nil {
			e.discard(archivePath)
			if refreshErr := e.Catalog.RefreshLatestLinks(r.kind, r.item); refreshErr != nil {
				e.Logger.Warn("refreshing latest links", "error", refreshErr)
			}
			return catalog.Metadata{}, fmt.Errorf("verification after backup: %w", err)
		}
	}
	return metadata, nil
}
