// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// [Wed Oct 11 14:32:52.123456 2023] [core:error] [pid 1234:tid 5678] [client 10.0.0.1:5050] AH00126: ...
	apacheFull = regexp.MustCompile(`^\[([^\]]+)\]\s*\[([^\]]+)\]\s*\[pid\s+(\d+)(?::tid\s+(\d+))?\]\s*(?:\[client\s+([^\]]+)\]\s*)?(.*)$`)

	// [Wed Oct 11 14:32:52 2023] [error] [client 10.0.0.1] ...
	apacheSimple = regexp.MustCompile(`^\[([^\]]+)\]\s*\[([^\]]+)\]\s*(?:\[client\s+([^\]]+)\]\s*)?(.*)$`)
)

var apacheLayouts = []string{
	"Mon Jan 02 15:04:05 2006",
	"Mon Jan _2 15:04:05 2006",
	time.DateTime,
	"02/Jan/2006:15:04:05 -0700",
}

// ParseApache parses one Apache error log line. It reports false only
// for blank lines; a line no pattern matches becomes an unparsed entry
// with a guessed severity of "unknown".
func ParseApache(line string) (Entry, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Entry{}, false
	}
	entry := Entry{Kind: KindApache, Raw: line}

	var level string
	if match := apacheFull.FindStringSubmatch(line); match != nil {
		entry.Timestamp = match[1]
		level = match[2]
		entry.PID, _ = strconv.Atoi(match[3])
		entry.TID, _ = strconv.Atoi(match[4])
		entry.Client = match[5]
		entry.Message = match[6]
	} else if match := apacheSimple.FindStringSubmatch(line); match != nil {
		entry.Timestamp = match[1]
		level = match[2]
		entry.Client = match[3]
		entry.Message = match[4]
	} else {
		entry.Kind = KindUnparsed
		entry.Severity = SeverityUnknown
		entry.Message = line
		return entry, true
	}

	if module, severity, ok := strings.Cut(level, ":"); ok {
		entry.Module = strings.TrimSpace(module)
		level = severity
	}
	entry.Severity = strings.ToLower(strings.Trim(strings.TrimSpace(level), ":"))
	if entry.Severity == "" {
		entry.Severity = GuessSeverity(line)
	}
	if parsed, ok := parseTime(entry.Timestamp, apacheLayouts, time.Now()); ok {
		entry.Time = parsed
	}
	return entry, true
}
