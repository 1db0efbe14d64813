// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service assembles the runtime shared by the quartermaster
// CLI and daemon.
//
// [Open] loads the configuration directory, validates it, and builds:
//
//   - the logger (console plus the rotating file under <local_base>/logs)
//   - the vault, when its key file exists
//   - the backup engine, retention manager, and mirror
//   - notifications and, for the daemon, Prometheus metrics
//
// [Service.OpenTargets] connects the configured mirror targets, with
// backup.sync_dir as an implicit local target. [Service.Orchestrator]
// wires the scheduler to all of the above.
//
// [HTTPServer] serves the daemon's /metrics and /healthz endpoints and
// shuts down gracefully when its context is cancelled.
//
// Binaries compose these pieces in main() rather than subclassing a
// framework.
package service
