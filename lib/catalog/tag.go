// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
)

// TagUpdate changes the labels of one backup. Nil fields are left as
// they are; Tags are added to the existing set.
type TagUpdate struct {
	Tags        []string
	Importance  *string
	KeepForever *bool
	Description *string
}

// Tag applies update to the sidecar of backup, creating the sidecar if
// the archive has none. Setting KeepForever also sets Pinned.
func (c *Catalog) Tag(backup Backup, update TagUpdate) (Metadata, error) {
	metadata := backup.Metadata
	if update.Importance != nil && !slices.Contains(Importances, *update.Importance) {
		return Metadata{}, fmt.Errorf("invalid importance %q (want one of %s)", *update.Importance, strings.Join(Importances, ", "))
	}

	if len(update.Tags) > 0 {
		tags := slices.Clone(metadata.Tags)
		for _, tag := range update.Tags {
			tag = strings.TrimSpace(tag)
			if tag != "" {
				tags = append(tags, tag)
			}
		}
		slices.Sort(tags)
		metadata.Tags = slices.Compact(tags)
	}
	if update.Importance != nil {
		metadata.Importance = *update.Importance
	}
	if update.KeepForever != nil {
		metadata.KeepForever = *update.KeepForever
		metadata.Pinned = *update.KeepForever
	}
	if update.Description != nil {
		metadata.Description = *update.Description
	}

	if err := WriteMetadata(backup.SidecarPath(), metadata); err != nil {
		return Metadata{}, err
	}
	c.Logger.Info("backup tagged",
		"backup", backup.Name(),
		"tags", metadata.Tags,
		"importance", metadata.Importance,
		"keep_forever", metadata.KeepForever,
	)
	return metadata, nil
}

// ListTagged returns tagged backups across every kind and item, newest
// first. An empty tag matches any backup for which Metadata.Tagged is
// true; otherwise only backups carrying that tag are returned.
func (c *Catalog) ListTagged(tag string) ([]Backup, error) {
	var tagged []Backup
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
			for _, backup := range backups {
				if !backup.HasSidecar {
					continue
				}
				if (tag == "" && backup.Metadata.Tagged()) || (tag != "" && backup.Metadata.HasTag(tag)) {
					tagged = append(tagged, backup)
				}
			}
		}
	}
	sortNewestFirst(tagged)
	return tagged, errors.Join(errs...)
}

// All returns every backup of every item of kind.
func (c *Catalog) All(kind Kind) ([]Backup, error) {
	items, err := c.Items(kind)
	if err != nil {
		return nil, err
	}
	var all []Backup
	var errs []error
	for _, item := range items {
		backups, err := c.List(kind, item)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		all = append(all, backups...)
	}
	return all, errors.Join(errs...)
}

// Remove deletes an archive and its sidecar. A missing sidecar is not
// an error.
func Remove(backup Backup) error {
	if err := os.Remove(backup.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", backup.Path, err)
	}
	if err := os.Remove(backup.SidecarPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", backup.SidecarPath(), err)
	}
	return nil
}
