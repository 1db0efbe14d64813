// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logparse

import (
	"strings"
	"time"
)

// Normalized severities. Apache logs use the first six; PHP logs add
// the rest.
const (
	SeverityError      = "error"
	SeverityWarn       = "warn"
	SeverityNotice     = "notice"
	SeverityInfo       = "info"
	SeverityDebug      = "debug"
	SeverityUnknown    = "unknown"
	SeverityFatal      = "fatal"
	SeverityWarning    = "warning"
	SeverityDeprecated = "deprecated"
	SeverityStrict     = "strict"
	SeverityEmergency  = "emergency"
	SeverityAlert      = "alert"
	SeverityCritical   = "critical"
)

// Entry kinds.
const (
	KindApache    = "apache"
	KindPHPError  = "php_error"
	KindFramework = "framework"
	KindException = "exception"
	KindUnparsed  = "unparsed"
)

// Entry is one parsed log record.
type Entry struct {
	Kind string `json:"kind"`

	// Time is zero when the timestamp was missing or unrecognized;
	// Timestamp keeps the original text either way.
	Time      time.Time `json:"time,omitzero"`
	Timestamp string    `json:"timestamp,omitempty"`

	Severity string `json:"severity"`
	Message  string `json:"message"`

	// Apache fields.
	Module string `json:"module,omitempty"`
	PID    int    `json:"pid,omitempty"`
	TID    int    `json:"tid,omitempty"`
	Client string `json:"client,omitempty"`

	// PHP fields.
	File          string      `json:"file,omitempty"`
	Line          int         `json:"line,omitempty"`
	Framework     string      `json:"framework,omitempty"`
	Environment   string      `json:"environment,omitempty"`
	ExceptionType string      `json:"exception_type,omitempty"`
	Trace         *StackTrace `json:"stack_trace,omitempty"`

	Raw string `json:"raw"`
}

// GuessSeverity infers a severity from free text.
func GuessSeverity(line string) string {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "error") || strings.Contains(lower, "fatal"):
		return SeverityError
	case strings.Contains(lower, "warn"):
		return SeverityWarn
	case strings.Contains(lower, "notice"):
		return SeverityNotice
	case strings.Contains(lower, "debug"):
		return SeverityDebug
	}
	return SeverityInfo
}

// parseTime tries layouts in order. Layouts without a year take the
// year of now.
func parseTime(text string, layouts []string, now time.Time) (time.Time, bool) {
	text = strings.TrimSpace(text)
	for _, layout := range layouts {
		parsed, err := time.ParseInLocation(layout, text, now.Location())
		if err != nil {
			continue
		}
		if parsed.Year() == 0 {
			parsed = parsed.AddDate(now.Year(), 0, 0)
		}
		return parsed, true
	}
	return time.Time{}, false
}
