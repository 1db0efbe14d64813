// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
)

// EventKind classifies an event.
type EventKind string

const (
	Success EventKind = "success"
	Failure EventKind = "failure"

	// Snapshot reports a multi-step snapshot, complete or partial.
	Snapshot EventKind = "snapshot"
)

// Urgency levels understood by notify-send.
const (
	UrgencyLow      = "low"
	UrgencyNormal   = "normal"
	UrgencyCritical = "critical"
)

// maxErrorLength bounds the error text shown in a notification.
const maxErrorLength = 100

// Event is one outcome worth telling someone about.
type Event struct {
	Kind EventKind

	// ItemKind is "project", "database", "git", or a job kind.
	ItemKind string
	Item     string

	// Size is the archive size in bytes for successes.
	Size int64

	// Error is the failure text.
	Error string

	// Succeeded and Total count snapshot steps.
	Succeeded int
	Total     int
}

// Partial reports whether a snapshot event had failing steps.
func (e Event) Partial() bool {
	return e.Kind == Snapshot && e.Succeeded < e.Total
}

// Title is the notification headline.
func (e Event) Title() string {
	switch e.Kind {
	case Success:
		return "Backup successful"
	case Failure:
		return "Backup failed"
	case Snapshot:
		if e.Partial() {
			return "Snapshot partially complete"
		}
		return "Snapshot complete"
	}
	return string(e.Kind)
}

// Body is the notification text.
func (e Event) Body() string {
	var body strings.Builder
	if e.Kind == Snapshot {
		fmt.Fprintf(&body, "Project: %s\n%d/%d operations successful", e.Item, e.Succeeded, e.Total)
		return body.String()
	}
	fmt.Fprintf(&body, "%s: %s", capitalize(e.ItemKind), e.Item)
	if e.Kind == Success && e.Size > 0 {
		fmt.Fprintf(&body, "\nSize: %s", humanize.IBytes(uint64(e.Size)))
	}
	if e.Kind == Failure && e.Error != "" {
		fmt.Fprintf(&body, "\nError: %s", truncate(e.Error, maxErrorLength))
	}
	return body.String()
}

// Urgency maps the event to a notify-send urgency.
func (e Event) Urgency() string {
	if e.Kind == Failure {
		return UrgencyCritical
	}
	return UrgencyNormal
}

// Icon is a freedesktop icon name.
func (e Event) Icon() string {
	switch {
	case e.Kind == Failure:
		return "dialog-error"
	case e.Partial():
		return "dialog-warning"
	}
	return "emblem-default"
}

func capitalize(text string) string {
	if text == "" {
		return "Item"
	}
	return strings.ToUpper(text[:1]) + text[1:]
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Multi delivers each event to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event Event) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, event)
		}
	}
}

// Log records events in the structured log.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(ctx context.Context, event Event) {
	if l.Logger == nil {
		return
	}
	attributes := []any{"event", event.Kind, "kind", event.ItemKind, "item", event.Item}
	switch {
	case event.Kind == Failure:
		l.Logger.ErrorContext(ctx, "backup failed", append(attributes, "error", event.Error)...)
	case event.Kind == Snapshot:
		level := slog.LevelInfo
		if event.Partial() {
			level = slog.LevelWarn
		}
		l.Logger.Log(ctx, level, "snapshot finished", append(attributes, "succeeded", event.Succeeded, "total", event.Total)...)
	default:
		l.Logger.InfoContext(ctx, "backup succeeded", append(attributes, "size", event.Size)...)
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}
