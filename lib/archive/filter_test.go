// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import "testing"

func TestFilterDefaultMode(t *testing.T) {
	filter := NewFilter([]string{"node_modules/", "*.log", "# comment", "", "build/output"}, ModeDefault)

	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{"src/main.go", false, false},
		{".git", true, true},
		{"src/.env", false, true},
		{"_scratch/notes.txt", false, true},
		{"docs/_draft.md", false, true},
		{"node_modules", true, true},
		{"web/node_modules", true, true},
		{"node_modules", false, false},
		{"server.log", false, true},
		{"logs/app.log", false, true},
		{"build/output", true, true},
		{"build/other", true, false},
		{"archive.tar.gz", false, false},
	}
	for _, test := range tests {
		t.Run(test.path, func(t *testing.T) {
			if got := filter.Excluded(test.path, test.isDir); got != test.want {
				t.Errorf("Excluded(%q, %v) = %v, want %v", test.path, test.isDir, got, test.want)
			}
		})
	}
}

func TestFilterCompleteMode(t *testing.T) {
	filter := NewFilter(nil, ModeComplete)

	tests := []struct {
		path string
		want bool
	}{
		{".env", false},
		{"_private/key", false},
		{"src/main.go", false},
		{"dist/release.zip", true},
		{"old.tar.gz", true},
		{"data.tgz", true},
		{"dump.sql.gz", true},
		{"image.xz", true},
		{"notes.7z", true},
	}
	for _, test := range tests {
		t.Run(test.path, func(t *testing.T) {
			if got := filter.Excluded(test.path, false); got != test.want {
				t.Errorf("Excluded(%q) = %v, want %v", test.path, got, test.want)
			}
		})
	}
}

func TestFilterRoot(t *testing.T) {
	filter := NewFilter([]string{"*"}, ModeDefault)
	if filter.Excluded(".", true) || filter.Excluded("", true) {
		t.Error("the source root must never be excluded")
	}
}
