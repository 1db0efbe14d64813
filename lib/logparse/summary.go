// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logparse

import (
	"cmp"
	"slices"
	"time"
)

// Counted is a message and how often it occurred.
type Counted struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// Summary counts PHP log entries inside a time window.
type Summary struct {
	Total      int            `json:"total"`
	Fatal      int            `json:"fatal"`
	Errors     int            `json:"errors"`
	Warnings   int            `json:"warnings"`
	Notices    int            `json:"notices"`
	Deprecated int            `json:"deprecated"`
	Exceptions int            `json:"exceptions"`
	ByFile     map[string]int `json:"by_file"`
	ByKind     map[string]int `json:"by_kind"`

	// RecentFatal holds the last ten fatal entries, oldest first.
	RecentFatal []Entry `json:"recent_fatal"`

	// MostCommon holds the five most frequent messages.
	MostCommon []Counted `json:"most_common"`
}

const (
	recentFatalLimit = 10
	mostCommonLimit  = 5
	messageKeyLength = 100
)

// Summarize counts entries at or after since. Entries whose timestamp
// could not be parsed are always counted.
func Summarize(entries []Entry, since time.Time) Summary {
	summary := Summary{ByFile: make(map[string]int), ByKind: make(map[string]int)}
	messages := make(map[string]int)
	for _, entry := range entries {
		if !entry.Time.IsZero() && entry.Time.Before(since) {
			continue
		}
		summary.Total++
		summary.ByKind[entry.Kind]++
		if entry.File != "" {
			summary.ByFile[entry.File]++
		}
		switch entry.Severity {
		case SeverityFatal, SeverityEmergency, SeverityAlert, SeverityCritical:
			summary.Fatal++
			summary.RecentFatal = append(summary.RecentFatal, entry)
		case SeverityError:
			summary.Errors++
		case SeverityWarning, SeverityWarn:
			summary.Warnings++
		case SeverityNotice:
			summary.Notices++
		case SeverityDeprecated:
			summary.Deprecated++
		}
		if entry.Kind == KindException {
			summary.Exceptions++
		}
		message := entry.Message
		if len(message) > messageKeyLength {
			message = message[:messageKeyLength]
		}
		messages[entry.Severity+": "+message]++
	}
	if len(summary.RecentFatal) > recentFatalLimit {
		summary.RecentFatal = summary.RecentFatal[len(summary.RecentFatal)-recentFatalLimit:]
	}

	for message, count := range messages {
		summary.MostCommon = append(summary.MostCommon, Counted{Message: message, Count: count})
	}
	slices.SortFunc(summary.MostCommon, func(a, b Counted) int {
		if order := cmp.Compare(b.Count, a.Count); order != 0 {
			return order
		}
		return cmp.Compare(a.Message, b.Message)
	})
	if len(summary.MostCommon) > mostCommonLimit {
		summary.MostCommon = summary.MostCommon[:mostCommonLimit]
	}
	return summary
}
