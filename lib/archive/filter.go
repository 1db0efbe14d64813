// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Mode selects the default exclusions of a Filter.
type Mode int

const (
	// ModeDefault leaves out every path with a component starting with
	// "." or "_", plus the configured patterns.
	ModeDefault Mode = iota

	// ModeComplete keeps hidden and underscore paths and leaves out
	// only nested archive files.
	ModeComplete
)

// ArchivePatterns are the files a complete archive leaves out.
var ArchivePatterns = []string{
	"*.zip", "*.7z", "*.tar", "*.tar.gz", "*.tgz", "*.tar.bz2", "*.rar", "*.gz", "*.bz2", "*.xz",
}

// Filter decides which paths of a source tree are archived.
type Filter struct {
	mode    Mode
	matcher gitignore.Matcher
}

// NewFilter builds a filter from gitignore-syntax patterns. Blank lines
// and comments are ignored. In ModeComplete the patterns are added to
// ArchivePatterns.
func NewFilter(patterns []string, mode Mode) *Filter {
	if mode == ModeComplete {
		patterns = append(append([]string(nil), ArchivePatterns...), patterns...)
	}
	var parsed []gitignore.Pattern
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" || strings.HasPrefix(pattern, "#") {
			continue
		}
		parsed = append(parsed, gitignore.ParsePattern(pattern, nil))
	}
	return &Filter{mode: mode, matcher: gitignore.NewMatcher(parsed)}
}

// Excluded reports whether the slash-separated path, relative to the
// source root, is left out. An excluded directory prunes its subtree.
func (f *Filter) Excluded(relative string, isDir bool) bool {
	if relative == "" || relative == "." {
		return false
	}
	components := strings.Split(relative, "/")
	if f.mode == ModeDefault {
		for _, component := range components {
			if strings.HasPrefix(component, ".") || strings.HasPrefix(component, "_") {
				return true
			}
		}
	}
	return f.matcher.Match(components, isDir)
}
