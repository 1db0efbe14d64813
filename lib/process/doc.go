// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for the quartermaster
// binaries: fatal error reporting before the structured logger exists,
// and the signal-driven context that stops the daemon loop.
package process
