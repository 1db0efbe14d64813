// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package history persists orchestrator task outcomes in a SQLite
// database beside the backups, so status and "last run" survive
// restarts of the daemon and are visible to the CLI.
package history
