// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler decides which configured jobs are due and runs
// them as tracked tasks.
//
// [State] persists the last successful run of every job and job kind
// in a small JSON file beside the archives. [Due] compares each job's
// cron schedule against that state; a job that has never run is due
// immediately.
//
// [Orchestrator] turns due jobs and ad-hoc submissions into [Task]
// values, runs them with bounded parallelism through an [Executor],
// and reports every status transition to the history store, metrics,
// notifications, and OnUpdate callbacks. [Orchestrator.Run] is the
// daemon loop: it sleeps until the next job is due, re-checking every
// minute so edits to the schedule are picked up, and on cancellation
// waits for in-flight tasks before returning.
package scheduler
