// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cron

import (
	"fmt"
	"strconv"
	"strings"
)

// Template is a named schedule preset.
type Template struct {
	Name        string `json:"name"`
	Expression  string `json:"expression"`
	Description string `json:"description"`
}

// Templates are the presets offered when configuring a job.
var Templates = []Template{
	{Name: "hourly", Expression: "0 * * * *", Description: "Every hour at minute 0"},
	{Name: "every-6-hours", Expression: "0 */6 * * *", Description: "Every 6 hours"},
	{Name: "daily", Expression: "0 2 * * *", Description: "Daily at 02:00"},
	{Name: "daily-noon", Expression: "0 12 * * *", Description: "Daily at 12:00"},
	{Name: "twice-daily", Expression: "0 2,14 * * *", Description: "Daily at 02:00 and 14:00"},
	{Name: "weekly", Expression: "0 3 * * 0", Description: "Weekly on Sunday at 03:00"},
	{Name: "monthly", Expression: "0 4 1 * *", Description: "Monthly on day 1 at 04:00"},
	{Name: "weekdays", Expression: "0 2 * * 1-5", Description: "Weekdays at 02:00"},
	{Name: "weekends", Expression: "0 3 * * 0,6", Description: "Weekends at 03:00"},
}

// LookupTemplate returns the preset called name.
func LookupTemplate(name string) (Template, bool) {
	for _, template := range Templates {
		if template.Name == name {
			return template, true
		}
	}
	return Template{}, false
}

var weekdayNames = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Describe renders expression as a short English phrase. Expressions
// that do not parse are reported as invalid; shapes without a natural
// phrasing fall back to a field-by-field description.
func Describe(expression string) string {
	if _, err := Parse(expression); err != nil {
		return "Invalid schedule"
	}
	expanded := strings.TrimSpace(expression)
	if alias, ok := aliases[strings.ToLower(expanded)]; ok {
		expanded = alias
	}
	fields := strings.Fields(expanded)
	minute, hour, dayOfMonth, month, dayOfWeek := fields[0], fields[1], fields[2], fields[3], fields[4]

	minuteValue, minuteFixed := atoi(minute)
	times, timesFixed := clockTimes(hour, minuteValue, minuteFixed)

	switch {
	case minute == "*" && hour == "*" && dayOfMonth == "*" && month == "*" && dayOfWeek == "*":
		return "Every minute"
	case strings.HasPrefix(minute, "*/") && hour == "*" && dayOfMonth == "*" && month == "*" && dayOfWeek == "*":
		return fmt.Sprintf("Every %s minutes", minute[2:])
	case minuteFixed && hour == "*" && dayOfMonth == "*" && month == "*" && dayOfWeek == "*":
		return fmt.Sprintf("Every hour at minute %d", minuteValue)
	case minuteFixed && strings.HasPrefix(hour, "*/") && dayOfMonth == "*" && month == "*" && dayOfWeek == "*":
		return fmt.Sprintf("Every %s hours", hour[2:])
	case !timesFixed:
		return describeFields(minute, hour, dayOfMonth, month, dayOfWeek)
	}

	at := strings.Join(times, " and ")
	switch {
	case dayOfMonth == "*" && month == "*" && dayOfWeek == "*":
		return "Daily at " + at
	case dayOfMonth == "*" && month == "*" && dayOfWeek == "1-5":
		return "Weekdays at " + at
	case dayOfMonth == "*" && month == "*" && (dayOfWeek == "0,6" || dayOfWeek == "6,0"):
		return "Weekends at " + at
	case dayOfMonth == "*" && month == "*":
		if day, ok := atoi(dayOfWeek); ok {
			return fmt.Sprintf("Weekly on %s at %s", weekdayNames[day%7], at)
		}
	case dayOfWeek == "*" && month == "*":
		if day, ok := atoi(dayOfMonth); ok {
			return fmt.Sprintf("Monthly on day %d at %s", day, at)
		}
	case dayOfWeek == "*":
		day, dayOK := atoi(dayOfMonth)
		monthValue, monthOK := atoi(month)
		if dayOK && monthOK {
			return fmt.Sprintf("Yearly on %d/%d at %s", monthValue, day, at)
		}
	}
	return describeFields(minute, hour, dayOfMonth, month, dayOfWeek)
}

// clockTimes formats a fixed minute combined with a plain list of hours
// as HH:MM strings.
func clockTimes(hour string, minute int, minuteFixed bool) ([]string, bool) {
	if !minuteFixed {
		return nil, false
	}
	var times []string
	for _, part := range strings.Split(hour, ",") {
		value, ok := atoi(part)
		if !ok {
			return nil, false
		}
		times = append(times, fmt.Sprintf("%02d:%02d", value, minute))
	}
	return times, true
}

func describeFields(minute, hour, dayOfMonth, month, dayOfWeek string) string {
	var parts []string
	switch {
	case minute == "*":
		parts = append(parts, "Every minute")
	case strings.HasPrefix(minute, "*/"):
		parts = append(parts, "Every "+minute[2:]+" minutes")
	default:
		parts = append(parts, "At minute "+minute)
	}
	switch {
	case hour == "*":
	case strings.HasPrefix(hour, "*/"):
		parts = append(parts, "every "+hour[2:]+" hours")
	default:
		parts = append(parts, "at hour "+hour)
	}
	if dayOfMonth != "*" {
		parts = append(parts, "on day "+dayOfMonth)
	}
	if month != "*" {
		parts = append(parts, "in month "+month)
	}
	if dayOfWeek != "*" {
		if day, ok := atoi(dayOfWeek); ok {
			parts = append(parts, "on "+weekdayNames[day%7])
		} else {
			parts = append(parts, "on weekdays "+dayOfWeek)
		}
	}
	return strings.Join(parts, ", ")
}

func atoi(text string) (int, bool) {
	value, err := strconv.Atoi(text)
	return value, err == nil
}
