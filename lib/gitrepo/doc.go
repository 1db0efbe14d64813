// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gitrepo provides typed access to the git CLI for the
// repositories Quartermaster protects. Every command targets a specific
// working tree through "git -C <dir>", injected by all Repository
// methods, so no command depends on the process working directory.
//
// Backups of a repository are bundles ("git bundle create --all"): one
// file holding every ref and the objects they reach. A bundle can be
// cloned into a fresh directory ([CloneBundle]) or fetched into an
// existing clone ([Repository.FetchBundle]), where its branches land
// under refs/remotes/backup/ and never overwrite local work.
//
// Commands are bounded by the caller's context; the engine derives
// per-operation deadlines from the configured timeouts.
package gitrepo
