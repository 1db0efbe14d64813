// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog indexes the archives under a local base directory.
//
// The base holds one directory per item kind (projects/, databases/,
// git/) and one subdirectory per item. Each archive has a JSON
// metadata sidecar with the same stem:
//
//	projects/site/site_20260102_030405_full.tar.gz
//	projects/site/site_20260102_030405_full.json
//	projects/site/latest.tar.gz -> site_20260102_030405_full.tar.gz
//
// [Layout] owns naming: directories, archive file names
// ([ArchiveName], [ParseArchiveName]), sidecar paths, and latest links.
// [Catalog] reads the tree: listing newest first, tagging, tag search,
// checksum backfill, and storage usage. Sidecars are read leniently
// (comments and trailing commas are tolerated, and timestamps written
// without a zone are accepted) and written atomically with mode 0600.
//
// The catalog never decides what to delete; retention and mirror code
// consume its listings.
package catalog
