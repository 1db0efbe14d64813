// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logparse reads the error logs of the web stacks whose
// projects are backed up: Apache error logs and PHP error logs,
// including Laravel (Monolog) lines and uncaught exceptions with their
// stack traces.
//
// Every parser produces [Entry] values with a normalized Severity, so
// the logs commands can filter, count, and export them uniformly.
// [Read] parses the tail of a file (plain or gzip), [Summarize] counts
// PHP errors inside a time window, and [Discover] and [FindProjectLogs]
// locate logs on the host and inside a project tree. Lines that no
// pattern recognizes are kept with severity "unknown" for Apache logs
// and dropped for PHP logs, where such lines are usually the tail of
// a multi-line message.
package logparse
