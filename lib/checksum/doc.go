// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package checksum computes and verifies content digests for backup
// archives.
//
// Digests use the OCI "algorithm:hex" form from go-digest, so a value
// read from a metadata sidecar carries its own algorithm. SHA-256 is the
// default; BLAKE3 is available for large archives where hashing time
// dominates. Older sidecars stored a bare 64-character SHA-256 hex
// string, and [Normalize] accepts that form as well.
//
// [Writer] hashes bytes as they stream into an archive so builders get
// the digest without reading the file a second time.
package checksum
