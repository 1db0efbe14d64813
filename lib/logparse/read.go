// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logparse

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Format names a log dialect.
type Format string

const (
	FormatApache Format = "apache"
	FormatPHP    Format = "php"
)

// ParseFormat accepts a format name; empty means detect.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(name)) {
	case "":
		return "", nil
	case FormatApache:
		return FormatApache, nil
	case FormatPHP:
		return FormatPHP, nil
	}
	return "", fmt.Errorf("unknown log format %q (want apache or php)", name)
}

// DetectFormat guesses the dialect of a file from its name and, failing
// that, from its first lines.
func DetectFormat(path string, firstLines []string) Format {
	lower := strings.ToLower(path)
	switch {
	case strings.Contains(lower, "apache") || strings.Contains(lower, "httpd"):
		return FormatApache
	case strings.Contains(lower, "php") || strings.Contains(lower, "laravel") ||
		strings.Contains(lower, "storage/logs") || strings.HasSuffix(lower, "debug.log"):
		return FormatPHP
	}
	for _, line := range firstLines {
		if strings.Contains(line, "PHP ") || monolog.MatchString(line) {
			return FormatPHP
		}
		if apacheFull.MatchString(line) {
			return FormatApache
		}
	}
	return FormatApache
}

// ReadOptions selects entries from a log.
type ReadOptions struct {
	// Lines is how many lines to take from the end of the file. Zero
	// means every line.
	Lines int

	// Severity keeps only entries of this severity.
	Severity string

	// Search keeps only entries whose raw text contains this substring,
	// case-insensitively.
	Search string

	// StackTraces attaches the "#0 ..." lines following a PHP entry.
	StackTraces bool

	// Now resolves timestamps that carry no year. Zero means the
	// current time.
	Now time.Time
}

// Open opens a log for reading, transparently decompressing .gz files.
func Open(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return file, nil
	}
	reader, err := gzip.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return gzipFile{Reader: reader, file: file}, nil
}

type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g gzipFile) Close() error {
	err := g.Reader.Close()
	if closeErr := g.file.Close(); err == nil {
		err = closeErr
	}
	return err
}

// ReadLines returns the last n lines of path, or all of them when n is
// zero.
func ReadLines(ctx context.Context, path string, n int) ([]string, error) {
	reader, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var lines []string
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for count := 0; scanner.Scan(); count++ {
		if count%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		lines = append(lines, scanner.Text())
		if n > 0 && len(lines) > 2*n {
			lines = append(lines[:0], lines[len(lines)-n:]...)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Read parses the tail of a log. An empty format is detected.
func Read(ctx context.Context, path string, format Format, options ReadOptions) ([]Entry, error) {
	lines, err := ReadLines(ctx, path, options.Lines)
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = DetectFormat(path, lines[:min(len(lines), 10)])
	}
	return ParseLines(lines, format, options), nil
}

// ParseLines parses lines in the given dialect and applies the
// filters of options.
func ParseLines(lines []string, format Format, options ReadOptions) []Entry {
	now := options.Now
	if now.IsZero() {
		now = time.Now()
	}
	search := strings.ToLower(options.Search)
	severity := strings.ToLower(options.Severity)

	var entries []Entry
	for index := 0; index < len(lines); index++ {
		var entry Entry
		var ok bool
		if format == FormatPHP {
			entry, ok = ParsePHP(lines[index], now)
			if ok && options.StackTraces {
				next := index + 1
				if next < len(lines) && strings.TrimSpace(lines[next]) == "Stack trace:" {
					next++
				}
				if next < len(lines) && traceFrame.MatchString(strings.TrimSpace(lines[next])) {
					trace, consumed := ParseStackTrace(lines, next)
					entry.Trace = &trace
					index = next + consumed - 1
				}
			}
		} else {
			entry, ok = ParseApache(lines[index])
		}
		if !ok {
			continue
		}
		if severity != "" && entry.Severity != severity {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(entry.Raw), search) {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}
