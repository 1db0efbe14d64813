// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive builds and reads compressed tar archives of project
// directories.
//
// [Build] walks a source tree in lexical order, applies a [Filter], and
// streams a tar through the configured [Compression] and a checksum
// writer into a temporary file that is renamed into place with mode
// 0600 only after every byte is on disk. A partial archive is never
// visible under the final name.
//
// Incremental builds take the [Snapshot] of the previous build: a file
// whose modification time is not newer and whose size is unchanged is
// left out (and, with content comparison enabled, only when its BLAKE3
// fingerprint also matches). Directories are always written so that an
// incremental archive restores the full tree shape. Each build returns
// the snapshot for the next one; snapshots persist as deterministic
// CBOR.
//
// The read side ([List], [Walk], [Extract], [Preview]) detects the
// compression from the file name. Extraction resolves every entry with
// securejoin so no entry escapes the destination, and never creates
// symlinks, hard links, or device nodes.
package archive
