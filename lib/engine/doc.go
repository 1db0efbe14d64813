// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine runs backups, verification, and restores for the
// configured projects, databases, and git repositories.
//
// Every backup follows the same pipeline: resolve the item, take its
// lock file, skip if today's archive already exists, check free space,
// build the archive under a temporary name, write the metadata sidecar,
// re-point the latest link, and optionally verify. A failure at any
// step removes the partial archive and sidecar, so the archive tree
// only ever holds complete, checksummed archives.
//
// Per-item locks are lockedfile mutexes at <item dir>/.lock, which
// serialize a CLI run against the daemon as well as concurrent
// goroutines.
//
// The Backup* methods return a [Result] for the item together with an
// error. Batch methods such as [Engine.BackupAllProjects] run items
// concurrently, never let one failure cancel the rest, and return the
// per-item results plus the joined errors.
package engine
