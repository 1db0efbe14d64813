// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logparse

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

// Stats describes one log file.
type Stats struct {
	Path     string    `json:"path"`
	Exists   bool      `json:"exists"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified,omitzero"`
	Readable bool      `json:"readable"`
	Writable bool      `json:"writable"`
	Lines    int       `json:"lines"`
	Errors   int       `json:"errors"`
	Warnings int       `json:"warnings"`
}

// HumanSize renders Size in IEC units.
func (s Stats) HumanSize() string { return humanize.IBytes(uint64(s.Size)) }

// Stat counts the lines of path that mention errors and warnings. A
// missing file is not an error; Exists reports it.
func Stat(ctx context.Context, path string) (Stats, error) {
	stats := Stats{Path: path}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return stats, nil
	}
	if err != nil {
		return stats, err
	}
	stats.Exists = true
	stats.Size = info.Size()
	stats.Modified = info.ModTime()
	stats.Readable = unix.Access(path, unix.R_OK) == nil
	stats.Writable = unix.Access(path, unix.W_OK) == nil
	if !stats.Readable {
		return stats, nil
	}

	reader, err := Open(path)
	if err != nil {
		return stats, err
	}
	defer reader.Close()
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if stats.Lines%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}
		stats.Lines++
		lower := strings.ToLower(scanner.Text())
		if strings.Contains(lower, "error") || strings.Contains(lower, "fatal") {
			stats.Errors++
		} else if strings.Contains(lower, "warn") {
			stats.Warnings++
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("reading %s: %w", path, err)
	}
	return stats, nil
}

// Truncate empties a log in place so the writing process keeps its
// file handle. Permission failures say which file needs attention
// rather than escalating privileges.
func Truncate(path string) error {
	err := os.Truncate(path, 0)
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("clearing %s: %w (run as the log's owner or adjust its permissions)", path, err)
	}
	return err
}
