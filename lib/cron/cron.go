// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed cron expression bound to a location.
type Schedule struct {
	expression  string
	location    *time.Location
	minutes     bitset64
	hours       bitset64
	daysOfMonth bitset64
	months      bitset64
	daysOfWeek  bitset64

	// Standard cron ORs the two day fields when both are restricted.
	// A field starting with * (including */N) is unrestricted.
	dayOfMonthRestricted bool
	dayOfWeekRestricted  bool
}

type bitset64 uint64

func (b bitset64) has(value int) bool { return b&(1<<uint(value)) != 0 }
func (b *bitset64) set(value int)     { *b |= 1 << uint(value) }

var aliases = map[string]string{
	"@hourly":   "0 * * * *",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@weekly":   "0 0 * * 0",
	"@monthly":  "0 0 1 * *",
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
}

// Parse parses expression in UTC.
func Parse(expression string) (Schedule, error) {
	return ParseIn(expression, time.UTC)
}

// ParseIn parses expression and evaluates it in location.
func ParseIn(expression string, location *time.Location) (Schedule, error) {
	if location == nil {
		location = time.UTC
	}
	expanded := strings.TrimSpace(expression)
	if alias, ok := aliases[strings.ToLower(expanded)]; ok {
		expanded = alias
	}

	fields := strings.Fields(expanded)
	if len(fields) != 5 {
		return Schedule{}, fmt.Errorf("cron: expected 5 fields, got %d", len(fields))
	}

	schedule := Schedule{expression: expanded, location: location}
	var err error
	if schedule.minutes, err = parseField(fields[0], 0, 59); err != nil {
		return Schedule{}, fmt.Errorf("cron: minute field: %w", err)
	}
	if schedule.hours, err = parseField(fields[1], 0, 23); err != nil {
		return Schedule{}, fmt.Errorf("cron: hour field: %w", err)
	}
	if schedule.daysOfMonth, err = parseField(fields[2], 1, 31); err != nil {
		return Schedule{}, fmt.Errorf("cron: day-of-month field: %w", err)
	}
	if schedule.months, err = parseField(fields[3], 1, 12); err != nil {
		return Schedule{}, fmt.Errorf("cron: month field: %w", err)
	}
	if schedule.daysOfWeek, err = parseField(fields[4], 0, 7); err != nil {
		return Schedule{}, fmt.Errorf("cron: day-of-week field: %w", err)
	}
	// 7 is Sunday too.
	if schedule.daysOfWeek.has(7) {
		schedule.daysOfWeek.set(0)
	}
	schedule.dayOfMonthRestricted = !strings.HasPrefix(fields[2], "*")
	schedule.dayOfWeekRestricted = !strings.HasPrefix(fields[4], "*")
	return schedule, nil
}

// String returns the expression with aliases expanded.
func (s Schedule) String() string { return s.expression }

// Location returns the location the schedule is evaluated in.
func (s Schedule) Location() *time.Location { return s.location }

// Next returns the earliest matching minute strictly after t. The
// result is expressed in the schedule's location. Schedules that can
// never fire (Feb 30) return an error after searching four years.
func (s Schedule) Next(t time.Time) (time.Time, error) {
	location := s.location
	if location == nil {
		location = time.UTC
	}
	t = t.In(location).Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(4, 0, 0)

	for t.Before(limit) {
		previous := t

		switch {
		case !s.months.has(int(t.Month())):
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, location)
		case !s.dayMatches(t):
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, location)
		case !s.hours.has(t.Hour()):
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, location)
		case !s.minutes.has(t.Minute()):
			t = t.Add(time.Minute)
		default:
			return t, nil
		}

		// Wall-clock arithmetic across a DST fold can land on the same
		// instant again; force progress.
		if !t.After(previous) {
			t = previous.Add(time.Hour).Truncate(time.Hour)
		}
	}

	return time.Time{}, fmt.Errorf("cron: no matching time within 4 years of %s", t.Format(time.RFC3339))
}

// Due reports whether a run is owed at now given the previous run.
// A zero lastRun is always due.
func (s Schedule) Due(lastRun, now time.Time) bool {
	if lastRun.IsZero() {
		return true
	}
	next, err := s.Next(lastRun)
	if err != nil {
		return false
	}
	return !next.After(now)
}

func (s Schedule) dayMatches(t time.Time) bool {
	dayOfMonth := s.daysOfMonth.has(t.Day())
	dayOfWeek := s.daysOfWeek.has(int(t.Weekday()))
	if s.dayOfMonthRestricted && s.dayOfWeekRestricted {
		return dayOfMonth || dayOfWeek
	}
	return dayOfMonth && dayOfWeek
}

func parseField(field string, minimum, maximum int) (bitset64, error) {
	var result bitset64
	for _, term := range strings.Split(field, ",") {
		bits, err := parseTerm(term, minimum, maximum)
		if err != nil {
			return 0, err
		}
		result |= bits
	}
	if result == 0 {
		return 0, fmt.Errorf("field %q produces empty set", field)
	}
	return result, nil
}

// parseTerm handles *, */N, V, V-V, and V-V/N.
func parseTerm(term string, minimum, maximum int) (bitset64, error) {
	rangeExpression, stepExpression, hasStep := strings.Cut(term, "/")
	step := 1
	if hasStep {
		parsed, err := strconv.Atoi(stepExpression)
		if err != nil {
			return 0, fmt.Errorf("invalid step %q: %w", stepExpression, err)
		}
		if parsed <= 0 {
			return 0, fmt.Errorf("step must be positive, got %d", parsed)
		}
		step = parsed
	}

	var start, end int
	switch {
	case rangeExpression == "*":
		start, end = minimum, maximum
	case strings.Contains(rangeExpression, "-"):
		startText, endText, _ := strings.Cut(rangeExpression, "-")
		var err error
		if start, err = strconv.Atoi(startText); err != nil {
			return 0, fmt.Errorf("invalid range start %q: %w", startText, err)
		}
		if end, err = strconv.Atoi(endText); err != nil {
			return 0, fmt.Errorf("invalid range end %q: %w", endText, err)
		}
		if start > end {
			return 0, fmt.Errorf("range start %d > end %d", start, end)
		}
	default:
		value, err := strconv.Atoi(rangeExpression)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q: %w", rangeExpression, err)
		}
		start, end = value, value
		if hasStep {
			end = maximum
		}
	}

	if start < minimum || end > maximum {
		return 0, fmt.Errorf("value out of range [%d-%d]: got %d-%d", minimum, maximum, start, end)
	}

	var result bitset64
	for value := start; value <= end; value += step {
		result.set(value)
	}
	return result, nil
}
