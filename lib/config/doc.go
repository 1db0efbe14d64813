// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads Quartermaster configuration from a directory of
// YAML files.
//
// The directory is named by the QUARTERMASTER_CONFIG environment
// variable (via [Load]) or a --config flag (via [LoadDir]). There is no
// ~/.config discovery and no automatic search. The directory holds:
//
//   - settings.yaml -- backup, retention, timeouts, mirror, schedule,
//     notification, metrics, logging, and vault settings
//   - projects.yaml -- the project list
//   - databases.yaml -- the database list, with passwords sealed by the
//     vault once [Config.SealPasswords] has run
//
// settings.yaml is required; the item files may be absent. Variable
// expansion is performed on path fields after loading: ${HOME},
// ${QUARTERMASTER_BASE}, and ${VAR:-default} patterns are expanded.
// No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- settings plus the item lists
//   - [Default] -- a Config with every default filled in
//   - [Load] and [LoadDir] -- the two entry points for loading
//   - [Config.Validate] -- reports every problem at once
//   - [Config.SaveProjects] and [Config.SaveDatabases] -- atomic writes
package config
