// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cron

import "testing"

func TestDescribe(t *testing.T) {
	tests := []struct {
		expression string
		want       string
	}{
		{"* * * * *", "Every minute"},
		{"*/30 * * * *", "Every 30 minutes"},
		{"0 * * * *", "Every hour at minute 0"},
		{"0 */6 * * *", "Every 6 hours"},
		{"0 0 * * *", "Daily at 00:00"},
		{"30 2 * * *", "Daily at 02:30"},
		{"0 2,14 * * *", "Daily at 02:00 and 14:00"},
		{"0 3 * * 0", "Weekly on Sunday at 03:00"},
		{"0 3 * * 7", "Weekly on Sunday at 03:00"},
		{"0 1 * * 1-5", "Weekdays at 01:00"},
		{"0 3 * * 0,6", "Weekends at 03:00"},
		{"0 4 1 * *", "Monthly on day 1 at 04:00"},
		{"0 0 25 12 *", "Yearly on 12/25 at 00:00"},
		{"@daily", "Daily at 00:00"},
		{"*/5 9-17 * * 1-5", "Every 5 minutes, at hour 9-17, on weekdays 1-5"},
		{"not cron", "Invalid schedule"},
	}
	for _, test := range tests {
		t.Run(test.expression, func(t *testing.T) {
			if got := Describe(test.expression); got != test.want {
				t.Errorf("Describe(%q) = %q, want %q", test.expression, got, test.want)
			}
		})
	}
}

func TestTemplatesParseAndDescribe(t *testing.T) {
	for _, template := range Templates {
		if _, err := Parse(template.Expression); err != nil {
			t.Errorf("template %s: %v", template.Name, err)
		}
		if got := Describe(template.Expression); got != template.Description {
			t.Errorf("template %s: Describe = %q, description says %q", template.Name, got, template.Description)
		}
	}
	if _, ok := LookupTemplate("weekly"); !ok {
		t.Error("LookupTemplate(weekly) not found")
	}
	if _, ok := LookupTemplate("fortnightly"); ok {
		t.Error("LookupTemplate(fortnightly) found")
	}
}
