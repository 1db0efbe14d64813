// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logparse

import (
	"path/filepath"
	"slices"
	"testing"

	"github.com/quartermaster-backup/quartermaster/lib/config"
	"github.com/quartermaster-backup/quartermaster/lib/testutil"
)

func TestFindProjectLogs(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"index.php":                      "<?php",
		"php_errors.log":                 "x",
		"app/cache/exception.log":        "x",
		"storage/logs/laravel.log":       "x",
		"storage/logs/laravel-error.log": "x",
		"logs/access.log":                "x",
		"tmp/logs/worker.log":            "x",
		"wp-content/debug.log":           "x",
		"vendor/pkg/error.log":           "x",
		"node_modules/thing/fatal.log":   "x",
		"notes/error-handling.md":        "x",
	})
	at := func(paths ...string) []string {
		var joined []string
		for _, path := range paths {
			joined = append(joined, filepath.Join(root, path))
		}
		return joined
	}

	found := FindProjectLogs(root)
	if want := at("app/cache/exception.log", "php_errors.log", "storage/logs/laravel-error.log"); !slices.Equal(found.PHPErrors, want) {
		t.Errorf("PHPErrors = %q, want %q", found.PHPErrors, want)
	}
	if want := at("storage/logs/laravel-error.log", "storage/logs/laravel.log"); !slices.Equal(found.Framework, want) {
		t.Errorf("Framework = %q, want %q", found.Framework, want)
	}
	if want := at("logs/access.log", "tmp/logs/worker.log"); !slices.Equal(found.Application, want) {
		t.Errorf("Application = %q, want %q", found.Application, want)
	}
	if want := at("wp-content/debug.log"); !slices.Equal(found.Debug, want) {
		t.Errorf("Debug = %q, want %q", found.Debug, want)
	}
	if all := found.All(); len(all) != 7 {
		t.Errorf("All = %q, want 7 distinct paths", all)
	}
}

func TestDiscover(t *testing.T) {
	system := t.TempDir()
	testutil.WriteTree(t, system, map[string]string{
		"apache2/error.log":       "x",
		"apache2/other_error.log": "x",
		"php/php8.3-fpm.log":      "x",
	})
	site := t.TempDir()
	testutil.WriteTree(t, site, map[string]string{"wp-content/debug.log": "x"})
	empty := t.TempDir()

	locations := Discover(config.LogSourcesConfig{
		Apache: []string{filepath.Join(system, "apache2", "*.log"), filepath.Join(system, "apache2", "error.log")},
		PHP:    []string{filepath.Join(system, "php", "*.log"), filepath.Join(system, "missing.log")},
	}, []config.Project{
		{Name: "site", Path: site},
		{Name: "bare", Path: empty},
	})

	if len(locations.Apache) != 2 {
		t.Errorf("Apache = %q, want two distinct files", locations.Apache)
	}
	if len(locations.PHP) != 1 {
		t.Errorf("PHP = %q", locations.PHP)
	}
	if len(locations.Projects) != 1 || locations.Projects[0].Project != "site" {
		t.Errorf("Projects = %+v, want only site", locations.Projects)
	}
}
