// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package atomicfile replaces files so that readers observe either the
// old content or the new content, never a truncated mix.
//
// Each write goes to a temporary file in the destination directory, is
// fsynced, renamed over the destination, and the directory is fsynced so
// the rename survives a crash. Metadata sidecars, the scheduler state
// file, snapshot indexes, and rewritten configuration files all go
// through here.
package atomicfile
