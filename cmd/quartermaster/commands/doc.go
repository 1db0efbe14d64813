// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the quartermaster command tree.
//
// Most commands open the runtime through lib/service, run one
// operation, and print either a table or, with --json, the operation's
// result struct. Configuration comes from --config or
// QUARTERMASTER_CONFIG.
package commands
