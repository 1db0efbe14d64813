// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cron parses the 5-field cron expressions used in backup
// schedules and computes when a job is next due.
//
//	┌───────────── minute (0-59)
//	│ ┌───────────── hour (0-23)
//	│ │ ┌───────────── day of month (1-31)
//	│ │ │ ┌───────────── month (1-12)
//	│ │ │ │ ┌───────────── day of week (0-7, 0 and 7 are Sunday)
//	│ │ │ │ │
//	* * * * *
//
// Fields accept values, ranges (1-5), lists (1,3,5), steps (*/15,
// 1-30/5) and the wildcard. The aliases @hourly, @daily, @weekly,
// @monthly and @yearly expand to their usual expressions.
//
// A backup at "0 2 * * *" means two in the morning where the machine
// is, so schedules are evaluated in a location: [ParseIn] takes one,
// [Parse] uses UTC. [Templates] lists the named presets offered to
// operators and [Describe] renders any expression as a short English
// phrase for status output.
package cron
