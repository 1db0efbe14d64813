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
	// [01-Jan-2026 12:34:56 UTC] PHP Fatal error:  Uncaught Error: ... in /var/www/index.php on line 12
	phpError = regexp.MustCompile(`^\[([^\]]+)\]\s*(PHP\s+(?:Fatal error|Warning|Notice|Parse error|Deprecated|Strict Standards)):\s*(.*?)\s+in\s+(.*?)\s+on\s+line\s+(\d+)`)

	// The same without a location.
	phpErrorBare = regexp.MustCompile(`^\[([^\]]+)\]\s*(PHP\s+(?:Fatal error|Warning|Notice|Parse error|Deprecated|Strict Standards)):\s*(.*)$`)

	// [2026-01-01 12:34:56] production.ERROR: message {"context":1} []
	monolog = regexp.MustCompile(`^\[(\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2})[^\]]*\]\s*(\w+)\.(\w+):\s*(.*?)(?:\s+\{.*\})?(?:\s+\[\])?$`)

	// RuntimeException: message in /var/www/app.php:12
	exception = regexp.MustCompile(`\b((?:[A-Z]\w*)?(?:Exception|Error)):\s*(.*?)\s+in\s+(\S+?):(\d+)`)

	traceFrame = regexp.MustCompile(`^#(\d+)\s+(.*)$`)

	// /var/www/app.php(12): App\Service->run()
	frameCall = regexp.MustCompile(`^(.+?)\((\d+)\):\s*(.*)$`)

	// /var/www/app.php:12
	frameFileLine = regexp.MustCompile(`^(.+?):(\d+)$`)

	frameFunction = regexp.MustCompile(`([\w\\]+(?:(?:::|->)\w+)?)\(`)
)

var phpLayouts = []string{
	"02-Jan-2006 15:04:05 MST",
	"02-Jan-2006 15:04:05",
	time.DateTime,
	"2006/01/02 15:04:05",
	"Jan 02 15:04:05",
	"Jan _2 15:04:05",
}

// phpLevels maps keywords to severities, most severe first.
var phpLevels = []struct {
	keyword  string
	severity string
}{
	{"fatal", SeverityFatal},
	{"parse error", SeverityFatal},
	{"emergency", SeverityEmergency},
	{"alert", SeverityAlert},
	{"critical", SeverityCritical},
	{"error", SeverityError},
	{"exception", SeverityError},
	{"warning", SeverityWarning},
	{"notice", SeverityNotice},
	{"deprecated", SeverityDeprecated},
	{"strict", SeverityStrict},
	{"debug", SeverityDebug},
	{"info", SeverityInfo},
}

// NormalizePHPLevel maps a PHP or Monolog level to a severity.
func NormalizePHPLevel(level string) string {
	lower := strings.ToLower(level)
	for _, candidate := range phpLevels {
		if strings.Contains(lower, candidate.keyword) {
			return candidate.severity
		}
	}
	return SeverityInfo
}

// ParsePHP parses one PHP error log line. Timestamps without a year
// take the year of now. It reports false for lines no pattern
// recognizes.
func ParsePHP(line string, now time.Time) (Entry, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Entry{}, false
	}

	if match := phpError.FindStringSubmatch(line); match != nil {
		entry := Entry{
			Kind:     KindPHPError,
			Severity: NormalizePHPLevel(match[2]),
			Message:  strings.TrimSpace(match[3]),
			File:     strings.TrimSpace(match[4]),
			Raw:      line,
		}
		entry.Line, _ = strconv.Atoi(match[5])
		entry.setTime(match[1], now)
		return entry, true
	}
	if match := phpErrorBare.FindStringSubmatch(line); match != nil {
		entry := Entry{
			Kind:     KindPHPError,
			Severity: NormalizePHPLevel(match[2]),
			Message:  strings.TrimSpace(match[3]),
			Raw:      line,
		}
		if uncaught := exception.FindStringSubmatch(entry.Message); uncaught != nil {
			entry.ExceptionType = uncaught[1]
			entry.File = uncaught[3]
			entry.Line, _ = strconv.Atoi(uncaught[4])
		}
		entry.setTime(match[1], now)
		return entry, true
	}
	if match := monolog.FindStringSubmatch(line); match != nil {
		entry := Entry{
			Kind:        KindFramework,
			Framework:   "laravel",
			Environment: match[2],
			Severity:    NormalizePHPLevel(match[3]),
			Message:     strings.TrimSpace(match[4]),
			Raw:         line,
		}
		entry.setTime(match[1], now)
		return entry, true
	}
	if match := exception.FindStringSubmatch(line); match != nil {
		entry := Entry{
			Kind:          KindException,
			ExceptionType: match[1],
			Severity:      SeverityError,
			Message:       strings.TrimSpace(match[2]),
			File:          match[3],
			Raw:           line,
		}
		entry.Line, _ = strconv.Atoi(match[4])
		if strings.HasPrefix(line, "[") {
			if end := strings.IndexByte(line, ']'); end > 0 {
				entry.setTime(line[1:end], now)
			}
		}
		return entry, true
	}
	return Entry{}, false
}

// setTime records text and, when it parses, the time it names. A
// trailing IANA zone name such as Europe/Berlin is honored.
func (e *Entry) setTime(text string, now time.Time) {
	e.Timestamp = text
	text = strings.TrimSpace(text)
	if index := strings.LastIndexByte(text, ' '); index > 0 && strings.Contains(text[index+1:], "/") {
		if location, err := time.LoadLocation(text[index+1:]); err == nil {
			now = now.In(location)
			text = text[:index]
		}
	}
	if parsed, ok := parseTime(text, phpLayouts, now); ok {
		e.Time = parsed
	}
}

// Frame is one line of a PHP stack trace.
type Frame struct {
	Number   int    `json:"number"`
	Content  string `json:"content"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Function string `json:"function,omitempty"`
}

// StackTrace is the "#0 ..." block following an uncaught exception.
type StackTrace struct {
	Frames []Frame `json:"frames"`
	Raw    string  `json:"raw"`
}

// ParseStackTrace reads the trace starting at lines[start]. It returns
// the trace and the number of lines it spans: numbered frames plus
// continuation lines, ending at a blank line or one starting with "[".
func ParseStackTrace(lines []string, start int) (StackTrace, int) {
	var trace StackTrace
	var raw []string
	index := start
	for ; index < len(lines); index++ {
		line := strings.TrimRight(lines[index], "\r\n")
		trimmed := strings.TrimSpace(line)
		if match := traceFrame.FindStringSubmatch(trimmed); match != nil {
			frame := Frame{Content: match[2]}
			frame.Number, _ = strconv.Atoi(match[1])
			parseFrame(&frame)
			trace.Frames = append(trace.Frames, frame)
			raw = append(raw, trimmed)
			continue
		}
		if trimmed == "" || strings.HasPrefix(trimmed, "[") {
			break
		}
		raw = append(raw, trimmed)
	}
	trace.Raw = strings.Join(raw, "\n")
	return trace, index - start
}

func parseFrame(frame *Frame) {
	call := frame.Content
	if match := frameCall.FindStringSubmatch(frame.Content); match != nil {
		frame.File = match[1]
		frame.Line, _ = strconv.Atoi(match[2])
		call = match[3]
	} else if match := frameFileLine.FindStringSubmatch(frame.Content); match != nil {
		frame.File = match[1]
		frame.Line, _ = strconv.Atoi(match[2])
		return
	}
	if match := frameFunction.FindStringSubmatch(call); match != nil {
		frame.Function = match[1]
	}
}
