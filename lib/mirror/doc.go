// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mirror replicates the local archive tree to secondary
// locations.
//
// A [Target] is a flat namespace of slash-separated relative paths. Three
// implementations exist: [LocalTarget] for a directory (the configured
// sync dir or an external disk), [SFTPTarget] for a remote host over
// SSH, and [S3Target] for an S3-compatible bucket. Local and SFTP
// targets write under a temporary name and rename into place, so a
// reader of the target never sees a partial archive. S3 uploads are
// atomic on their own.
//
// [Mirror.Sync] walks every archive under projects/, databases/, and
// git/ and copies those the target lacks or holds with a different
// size or checksum. A sidecar is always written after its archive, so
// a target sidecar never describes bytes that are not there yet. With
// pruning enabled, target archives and sidecars under the same three
// prefixes that no longer exist locally are removed; nothing outside
// them is touched.
package mirror
