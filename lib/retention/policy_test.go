// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package retention

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/quartermaster-backup/quartermaster/lib/catalog"
	"github.com/quartermaster-backup/quartermaster/lib/config"
)

var now = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

// fake returns an in-memory backup named name, taken at when.
func fake(name string, when time.Time, metadata catalog.Metadata) catalog.Backup {
	metadata.Timestamp = catalog.Time{Time: when}
	if metadata.BackupType == "" {
		metadata.BackupType = catalog.TypeFull
	}
	return catalog.Backup{
		Path:       "/backups/projects/site/" + name,
		Kind:       catalog.KindProject,
		Item:       "site",
		Metadata:   metadata,
		HasSidecar: true,
		ModTime:    when,
		Size:       100,
	}
}

func decided(decisions []Decision) []string {
	var result []string
	for _, decision := range decisions {
		result = append(result, decision.Name)
	}
	slices.Sort(result)
	return result
}

func assertDecisions(t *testing.T, label string, decisions []Decision, want ...string) {
	t.Helper()
	got := decided(decisions)
	slices.Sort(want)
	if !slices.Equal(got, want) {
		t.Errorf("%s = %v, want %v", label, got, want)
	}
}

func daysAgo(days int) time.Time { return now.Add(-time.Duration(days) * day) }

func TestAgePolicy(t *testing.T) {
	backups := []catalog.Backup{
		fake("recent", daysAgo(1), catalog.Metadata{}),
		fake("middle", daysAgo(10), catalog.Metadata{}),
		fake("old", daysAgo(40), catalog.Metadata{}),
		fake("pinned", daysAgo(50), catalog.Metadata{Pinned: true}),
		fake("forever", daysAgo(51), catalog.Metadata{KeepForever: true}),
		fake("critical", daysAgo(52), catalog.Metadata{Importance: catalog.ImportanceCritical}),
		fake("low", daysAgo(53), catalog.Metadata{Importance: catalog.ImportanceLow}),
		fake("release", daysAgo(60), catalog.Metadata{Tags: []string{"release"}}),
	}

	t.Run("preserve tagged", func(t *testing.T) {
		policy := AgePolicy{Days: 30, Preservation: Preservation{PreserveTagged: true, ImportantTags: []string{"release"}}}
		plan := policy.Plan(backups, now)
		assertDecisions(t, "keep", plan.Keep, "recent", "middle", "pinned", "forever", "critical", "release")
		assertDecisions(t, "delete", plan.Delete, "old", "low")
		if plan.Total != 8 || plan.TotalBytes != 800 {
			t.Errorf("totals = %d/%d, want 8/800", plan.Total, plan.TotalBytes)
		}
		if plan.SpaceToRecover != 200 {
			t.Errorf("SpaceToRecover = %d, want 200", plan.SpaceToRecover)
		}
	})

	t.Run("tags ignored", func(t *testing.T) {
		policy := AgePolicy{Days: 30, Preservation: Preservation{ImportantTags: []string{"release"}}}
		plan := policy.Plan(backups, now)
		assertDecisions(t, "delete", plan.Delete, "old", "low", "release")
	})

	t.Run("zero days keeps all", func(t *testing.T) {
		plan := AgePolicy{}.Plan(backups, now)
		if len(plan.Delete) != 0 {
			t.Errorf("Delete = %v, want none", decided(plan.Delete))
		}
	})
}

func TestPlanExemptsCompleteArchives(t *testing.T) {
	backups := []catalog.Backup{
		fake("complete", daysAgo(100), catalog.Metadata{BackupType: catalog.TypeComplete}),
		fake("old", daysAgo(100), catalog.Metadata{}),
	}
	plan := AgePolicy{Days: 7}.Plan(backups, now)
	if plan.Exempt != 1 || plan.Total != 1 {
		t.Errorf("Exempt/Total = %d/%d, want 1/1", plan.Exempt, plan.Total)
	}
	assertDecisions(t, "delete", plan.Delete, "old")
	assertDecisions(t, "keep", plan.Keep)
}

func TestPlanKeepsBaseOfKeptIncremental(t *testing.T) {
	backups := []catalog.Backup{
		fake("base", daysAgo(40), catalog.Metadata{}),
		fake("incr", daysAgo(5), catalog.Metadata{BackupType: catalog.TypeIncremental, BaseBackup: "base"}),
		fake("orphan", daysAgo(41), catalog.Metadata{}),
	}
	plan := AgePolicy{Days: 30}.Plan(backups, now)
	assertDecisions(t, "keep", plan.Keep, "base", "incr")
	assertDecisions(t, "delete", plan.Delete, "orphan")
	for _, decision := range plan.Keep {
		if decision.Name == "base" && decision.Reason != "base of incr" {
			t.Errorf("base reason = %q, want %q", decision.Reason, "base of incr")
		}
	}
	if plan.SpaceToRecover != 100 {
		t.Errorf("SpaceToRecover = %d, want 100", plan.SpaceToRecover)
	}
}

func TestTieredPolicy(t *testing.T) {
	at := func(month time.Month, day, hour, minute int) time.Time {
		return time.Date(2026, month, day, hour, minute, 0, 0, time.UTC)
	}
	backups := []catalog.Backup{
		fake("a", at(6, 10, 11, 30), catalog.Metadata{}), // hourly #1
		fake("b", at(6, 10, 11, 10), catalog.Metadata{}), // hour taken, daily #1
		fake("c", at(6, 10, 10, 0), catalog.Metadata{}),  // hourly #2
		fake("d", at(6, 10, 9, 0), catalog.Metadata{}),   // hourly #3
		fake("e", at(6, 9, 8, 0), catalog.Metadata{}),    // daily #2
		fake("f", at(6, 8, 8, 0), catalog.Metadata{}),    // daily #3
		fake("g", at(5, 20, 8, 0), catalog.Metadata{}),   // uncategorized #1
		fake("h", at(5, 1, 8, 0), catalog.Metadata{}),    // uncategorized #2
		fake("i", at(4, 1, 8, 0), catalog.Metadata{Pinned: true}),
	}
	policy := TieredPolicy{
		Tiers: Tiers{
			{Name: Hourly, Keep: 2, MaxAge: 24 * time.Hour},
			{Name: Daily, Keep: 2, MaxAge: 7 * day},
		},
		KeepUncategorized: 1,
	}

	// Input order must not matter.
	shuffled := slices.Clone(backups)
	slices.Reverse(shuffled)
	plan := policy.Plan(shuffled, now)

	assertDecisions(t, "keep", plan.Keep, "a", "b", "c", "e", "g", "i")
	assertDecisions(t, "delete", plan.Delete, "d", "f", "h")

	wantTiers := map[string]int{Hourly: 2, Daily: 2, Uncategorized: 2}
	if len(plan.Tiers) != len(wantTiers) {
		t.Fatalf("Tiers = %+v, want %d entries", plan.Tiers, len(wantTiers))
	}
	for _, summary := range plan.Tiers {
		if summary.Count != wantTiers[summary.Name] {
			t.Errorf("tier %s count = %d, want %d", summary.Name, summary.Count, wantTiers[summary.Name])
		}
	}
	hourly := plan.Tiers[0]
	if !hourly.Newest.Equal(at(6, 10, 11, 30)) || !hourly.Oldest.Equal(at(6, 10, 10, 0)) {
		t.Errorf("hourly range = %v..%v", hourly.Oldest, hourly.Newest)
	}
	for _, decision := range plan.Delete {
		if !strings.HasPrefix(decision.Reason, "beyond ") {
			t.Errorf("%s reason = %q", decision.Name, decision.Reason)
		}
	}
}

func TestTieredPolicyDefaultTiers(t *testing.T) {
	at := func(year int, month time.Month, day int) time.Time {
		return time.Date(year, month, day, 2, 0, 0, 0, time.UTC)
	}
	backups := []catalog.Backup{
		fake("today", at(2026, 6, 10), catalog.Metadata{}),
		fake("yesterday", at(2026, 6, 9), catalog.Metadata{}),
		fake("wednesday", at(2026, 5, 27), catalog.Metadata{}),
		fake("monday", at(2026, 5, 25), catalog.Metadata{}), // same ISO week as wednesday
		fake("march", at(2026, 3, 15), catalog.Metadata{}),
		fake("early-march", at(2026, 3, 2), catalog.Metadata{}),
		fake("last-year", at(2025, 5, 1), catalog.Metadata{}),
		fake("ancient", at(2020, 1, 1), catalog.Metadata{}),
		fake("older", at(2019, 6, 1), catalog.Metadata{}),
	}
	policy := TieredPolicy{Tiers: DefaultTiers(), KeepUncategorized: 1}
	plan := policy.Plan(backups, now)

	wantTier := map[string]string{
		"today":       Hourly,
		"yesterday":   Daily,
		"wednesday":   Weekly,
		"monday":      Monthly,
		"march":       Monthly,
		"early-march": Yearly,
		"last-year":   Yearly,
		"ancient":     Uncategorized,
		"older":       Uncategorized,
	}
	for _, decision := range append(slices.Clone(plan.Keep), plan.Delete...) {
		if decision.Tier != wantTier[decision.Name] {
			t.Errorf("%s tier = %q, want %q", decision.Name, decision.Tier, wantTier[decision.Name])
		}
	}
	assertDecisions(t, "delete", plan.Delete, "older")

	wantCounts := map[string]int{Hourly: 1, Daily: 1, Weekly: 1, Monthly: 2, Yearly: 2, Uncategorized: 1}
	for _, summary := range plan.Tiers {
		if summary.Count != wantCounts[summary.Name] {
			t.Errorf("tier %s count = %d, want %d", summary.Name, summary.Count, wantCounts[summary.Name])
		}
	}
}

func TestBuckets(t *testing.T) {
	when := time.Date(2026, 1, 1, 7, 45, 0, 0, time.UTC)
	tests := []struct {
		tier string
		want string
	}{
		{Hourly, "2026-01-01T07"},
		{Daily, "2026-01-01"},
		{Weekly, "2026-W01"},
		{Monthly, "2026-01"},
		{Yearly, "2026"},
	}
	for _, test := range tests {
		if got := bucket(test.tier, when); got != test.want {
			t.Errorf("bucket(%s) = %q, want %q", test.tier, got, test.want)
		}
	}
	// ISO weeks cross calendar years.
	if got := bucket(Weekly, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)); got != "2026-W53" {
		t.Errorf("bucket(weekly, 2027-01-01) = %q, want 2026-W53", got)
	}
}

func TestTiersFromConfig(t *testing.T) {
	settings := config.DefaultTiers()
	settings.Hourly.Keep = 0
	tiers := TiersFromConfig(settings)
	var names []string
	for _, tier := range tiers {
		names = append(names, tier.Name)
	}
	if want := []string{Daily, Weekly, Monthly, Yearly}; !slices.Equal(names, want) {
		t.Errorf("tiers = %v, want %v", names, want)
	}
	if tiers[0].Keep != 7 || tiers[0].MaxAge != 7*day {
		t.Errorf("daily = %+v", tiers[0])
	}
}

func TestSuggestTiers(t *testing.T) {
	series := func(count int, interval time.Duration) []catalog.Backup {
		var backups []catalog.Backup
		for i := range count {
			backups = append(backups, fake(string(rune('a'+i)), now.Add(-time.Duration(i)*interval), catalog.Metadata{}))
		}
		return backups
	}
	tests := []struct {
		name      string
		backups   []catalog.Backup
		frequency string
		first     string
	}{
		{"hourly", series(10, 30*time.Minute), Hourly, Hourly},
		{"daily", series(10, 12*time.Hour), Daily, Daily},
		{"weekly", series(10, 7*day), Weekly, Weekly},
		{"single", series(1, day), Daily, Hourly},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			suggestion := SuggestTiers(test.backups, now)
			if suggestion.Frequency != test.frequency {
				t.Errorf("Frequency = %q, want %q", suggestion.Frequency, test.frequency)
			}
			if suggestion.Tiers[0].Name != test.first {
				t.Errorf("first tier = %q, want %q", suggestion.Tiers[0].Name, test.first)
			}
			if suggestion.CurrentCount != len(test.backups) {
				t.Errorf("CurrentCount = %d, want %d", suggestion.CurrentCount, len(test.backups))
			}
			if suggestion.CurrentBytes-suggestion.Savings != suggestion.ProposedBytes {
				t.Errorf("bytes do not add up: %+v", suggestion)
			}
		})
	}
}
