// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the structured logger every binary uses.
//
// Records go to two sinks at once: stderr, as text when it is a
// terminal and JSON otherwise, and a rotating JSON file at
// <local_base>/logs/backup.log. By default the file rotates at 10 MB
// and keeps five generations.
package logging
