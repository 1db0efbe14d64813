// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package retention decides which archives to expire and deletes them.
//
// Two policies exist. [AgePolicy] deletes everything older than a
// number of days. [TieredPolicy] thins history into hourly, daily,
// weekly, monthly, and yearly representatives: each backup, newest
// first, joins the first tier whose maximum age covers it and whose
// bucket (hour, date, ISO week, month, year) has no member yet. The
// first Keep members of each tier survive; backups that fit no tier
// are "uncategorized" and only the newest few are kept.
//
// Both policies produce a [Plan] without touching the disk. Planning is
// a pure function of the backup list and the current time, which makes
// dry runs exact previews. [Apply] executes a plan.
//
// Some backups are never deleted: pinned or keep_forever archives,
// critical and high importance, and archives carrying an important tag
// when tag preservation is on. A kept incremental archive also keeps
// the full archive it was built on, since it cannot be restored
// without it. Complete archives are rebuilt in place and are outside
// retention altogether.
package retention
