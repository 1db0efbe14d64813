// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for quartermaster
// binaries.
//
// Version information is injected at build time via -ldflags, for example:
//
//	go build -ldflags "-X github.com/quartermaster-backup/quartermaster/lib/version.GitCommit=$(git rev-parse --short HEAD)"
package version
