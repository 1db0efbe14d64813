// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the quartermaster CLI.
//
// The central type is [Command]: a named node with optional
// [Command.Subcommands], a lazily built [pflag.FlagSet], and a Run
// function that receives the process context. [Command.Execute]
// parses flags, routes subcommands, and prints help with examples.
// Unknown commands and flags get a "did you mean" suggestion when an
// edit distance of at most three reaches a known name.
//
// Commands declare flags as tagged params structs bound by
// [FlagsFromParams]. Embedding [JSONOutput] adds --json and
// [JSONOutput.EmitJSON]. Text output goes through [Table] and the
// lipgloss [Theme].
//
// Errors: [UsageError] marks bad input (exit 2) and [ExitError] a
// non-zero exit whose output the command already wrote.
package cli
