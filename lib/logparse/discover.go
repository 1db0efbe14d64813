// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logparse

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/quartermaster-backup/quartermaster/lib/config"
)

// DefaultApachePaths are searched when the logs section names no
// Apache logs.
var DefaultApachePaths = []string{
	"/var/log/apache2/error.log",
	"/var/log/apache2/*error*.log",
	"/var/log/httpd/error_log",
	"/var/log/httpd/*error*",
	"/opt/lampp/logs/error_log",
	"/usr/local/apache2/logs/error_log",
}

// DefaultPHPPaths are searched when the logs section names no PHP logs.
var DefaultPHPPaths = []string{
	"/var/log/php_errors.log",
	"/var/log/php*-fpm.log",
	"/var/log/php/*.log",
	"/opt/lampp/logs/php_error_log",
}

// ProjectLogs are the logs found inside one project tree.
type ProjectLogs struct {
	Project     string   `json:"project"`
	PHPErrors   []string `json:"php_errors"`
	Framework   []string `json:"framework"`
	Application []string `json:"application"`
	Debug       []string `json:"debug"`
}

// All returns every log of the project, deduplicated and sorted.
func (p ProjectLogs) All() []string {
	all := slices.Concat(p.PHPErrors, p.Framework, p.Application, p.Debug)
	slices.Sort(all)
	return slices.Compact(all)
}

// Locations are the logs found on the host.
type Locations struct {
	Apache   []string      `json:"apache"`
	PHP      []string      `json:"php"`
	Projects []ProjectLogs `json:"projects"`
}

// Discover expands the configured (or default) log globs and searches
// every project tree. Only existing regular files are returned.
func Discover(sources config.LogSourcesConfig, projects []config.Project) Locations {
	apache := sources.Apache
	if len(apache) == 0 {
		apache = DefaultApachePaths
	}
	php := sources.PHP
	if len(php) == 0 {
		php = DefaultPHPPaths
	}
	locations := Locations{Apache: expand(apache), PHP: expand(php)}
	for _, project := range projects {
		found := FindProjectLogs(project.Path)
		found.Project = project.Name
		if len(found.All()) > 0 {
			locations.Projects = append(locations.Projects, found)
		}
	}
	return locations
}

// skippedDirectories are not searched for logs.
var skippedDirectories = map[string]bool{"vendor": true, "node_modules": true, ".git": true}

// FindProjectLogs searches a project tree for PHP error logs anywhere
// below it, framework logs (Laravel storage/logs, Symfony var/log),
// application log directories, and the WordPress debug log.
func FindProjectLogs(root string) ProjectLogs {
	var found ProjectLogs
	filepath.WalkDir(root, func(current string, entry fs.DirEntry, err error) error {
		if err != nil {
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			if current != root && skippedDirectories[entry.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if entry.Type().IsRegular() && isErrorLog(entry.Name()) {
			found.PHPErrors = append(found.PHPErrors, current)
		}
		return nil
	})

	found.Framework = expand([]string{
		filepath.Join(root, "storage", "logs", "*.log"),
		filepath.Join(root, "var", "log", "*.log"),
	})
	for _, directory := range []string{"logs", "log", filepath.Join("tmp", "logs")} {
		found.Application = append(found.Application, expand([]string{filepath.Join(root, directory, "*.log")})...)
	}
	found.Application = slices.DeleteFunc(found.Application, func(path string) bool {
		return slices.Contains(found.Framework, path)
	})
	found.Debug = expand([]string{filepath.Join(root, "wp-content", "debug.log")})
	return found
}

func isErrorLog(name string) bool {
	lower := strings.ToLower(name)
	if !strings.HasSuffix(lower, ".log") {
		return false
	}
	if strings.HasPrefix(lower, "php") {
		return true
	}
	for _, word := range []string{"error", "exception", "fatal"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// expand globs patterns and keeps existing regular files, sorted and
// without duplicates.
func expand(patterns []string) []string {
	var paths []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, match := range matches {
			if info, err := os.Stat(match); err == nil && info.Mode().IsRegular() {
				paths = append(paths, match)
			}
		}
	}
	slices.Sort(paths)
	return slices.Compact(paths)
}
