// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package notify tells a human when backups finish.
//
// An [Event] describes an outcome; a [Notifier] delivers it. [Desktop]
// shells out to notify-send, [Log] writes a structured record, and
// [Multi] fans one event out to several notifiers. Delivery is best
// effort: notifiers log their own failures and never fail the backup
// that produced the event.
package notify
