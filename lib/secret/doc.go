// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds decrypted credentials (database passwords, the
// vault identity) in memory that the Go runtime never sees.
//
// A [Buffer] is an anonymous mmap region locked into RAM with mlock and
// marked MADV_DONTDUMP so it is neither swapped nor written into core
// files. Close zeroes, unlocks, and unmaps it; any later access panics.
//
// [ReadFromPath] and [ReadPassword] are the two ways plaintext enters
// the process from outside: a file (or stdin) and an interactive
// terminal prompt.
package secret
