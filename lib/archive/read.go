// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
)

var (
	// ErrNotFound is returned by Preview when the member is absent.
	ErrNotFound = errors.New("file not found in archive")

	// ErrBinary is returned by Preview for members that are not text.
	ErrBinary = errors.New("file appears to be binary")

	// ErrUnsafePath is returned by Extract for entries that would land
	// outside the destination.
	ErrUnsafePath = errors.New("unsafe path in archive")
)

// Entry types reported by List.
const (
	EntryFile    = "file"
	EntryDir     = "dir"
	EntrySymlink = "symlink"
	EntryOther   = "other"
)

// Entry describes one archive member.
type Entry struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Size     int64       `json:"size"`
	Mode     os.FileMode `json:"mode"`
	ModTime  time.Time   `json:"mtime"`
	Linkname string      `json:"linkname,omitempty"`
}

func entryType(header *tar.Header) string {
	switch header.Typeflag {
	case tar.TypeReg:
		return EntryFile
	case tar.TypeDir:
		return EntryDir
	case tar.TypeSymlink:
		return EntrySymlink
	default:
		return EntryOther
	}
}

// Walk calls visit for every member of the archive at archivePath. The
// reader passed to visit yields the member's content and is only valid
// during the call.
func Walk(ctx context.Context, archivePath string, visit func(header *tar.Header, content io.Reader) error) error {
	compression, err := CompressionForName(archivePath)
	if err != nil {
		return err
	}
	file, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer file.Close()

	decompressor, err := compression.NewReader(bufio.NewReader(file))
	if err != nil {
		return fmt.Errorf("opening %s stream: %w", compression, err)
	}
	defer decompressor.Close()

	reader := tar.NewReader(decompressor)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		// Insecure names are still returned; Extract rejects them itself.
		if err != nil && !errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("reading %s: %w", filepath.Base(archivePath), err)
		}
		if err := visit(header, reader); err != nil {
			return err
		}
	}
}

// Check reads every member of an archive to the end, proving that the
// compressed stream and the tar structure are intact. It returns the
// number of members.
func Check(ctx context.Context, archivePath string) (int, error) {
	count := 0
	err := Walk(ctx, archivePath, func(_ *tar.Header, content io.Reader) error {
		count++
		_, err := io.Copy(io.Discard, content)
		return err
	})
	return count, err
}

// List returns the archive's members in archive order. A non-empty
// pattern keeps only names matching it (path.Match syntax).
func List(ctx context.Context, archivePath, pattern string) ([]Entry, error) {
	if pattern != "" {
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
	}
	var entries []Entry
	err := Walk(ctx, archivePath, func(header *tar.Header, _ io.Reader) error {
		if pattern != "" {
			if matched, _ := path.Match(pattern, strings.TrimSuffix(header.Name, "/")); !matched {
				return nil
			}
		}
		entries = append(entries, Entry{
			Name:     header.Name,
			Type:     entryType(header),
			Size:     header.Size,
			Mode:     header.FileInfo().Mode(),
			ModTime:  header.ModTime,
			Linkname: header.Linkname,
		})
		return nil
	})
	return entries, err
}

// ExtractOptions narrows and adjusts an extraction.
type ExtractOptions struct {
	// StripComponents drops leading path components from every entry
	// name, like tar --strip-components.
	StripComponents int

	// Paths, when non-empty, restricts extraction to entries whose
	// (stripped) name equals a path, lies under a directory path, or
	// matches a path.Match pattern.
	Paths []string

	// SkipUnsafe skips entries that would escape the destination
	// instead of failing the extraction.
	SkipUnsafe bool
}

// ExtractResult reports what Extract did.
type ExtractResult struct {
	Files       []string
	Directories int
	Skipped     []string
}

// Extract unpacks the archive into destination. Symlinks, hard links,
// and device nodes are skipped and reported in Skipped.
func Extract(ctx context.Context, archivePath, destination string, options ExtractOptions) (ExtractResult, error) {
	var result ExtractResult
	if err := os.MkdirAll(destination, 0700); err != nil {
		return result, fmt.Errorf("creating %s: %w", destination, err)
	}

	err := Walk(ctx, archivePath, func(header *tar.Header, content io.Reader) error {
		name, ok, err := entryName(header.Name, options.StripComponents)
		if err != nil {
			if options.SkipUnsafe {
				result.Skipped = append(result.Skipped, header.Name)
				return nil
			}
			return err
		}
		if !ok || !selected(name, options.Paths) {
			return nil
		}

		switch header.Typeflag {
		case tar.TypeDir, tar.TypeReg:
		default:
			result.Skipped = append(result.Skipped, header.Name)
			return nil
		}

		target, err := securejoin.SecureJoin(destination, name)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", header.Name, err)
		}

		if header.Typeflag == tar.TypeDir {
			if err := os.MkdirAll(target, header.FileInfo().Mode().Perm()|0700); err != nil {
				return fmt.Errorf("creating %s: %w", name, err)
			}
			result.Directories++
			return nil
		}

		if err := writeMember(target, header, content); err != nil {
			return fmt.Errorf("extracting %s: %w", name, err)
		}
		result.Files = append(result.Files, name)
		return nil
	})
	return result, err
}

// entryName cleans a member name and strips leading components. ok is
// false when nothing remains after stripping.
func entryName(raw string, strip int) (string, bool, error) {
	if path.IsAbs(raw) || filepath.IsAbs(raw) {
		return "", false, fmt.Errorf("%w: %s is absolute", ErrUnsafePath, raw)
	}
	for _, component := range strings.Split(raw, "/") {
		if component == ".." {
			return "", false, fmt.Errorf("%w: %s contains ..", ErrUnsafePath, raw)
		}
	}
	cleaned := path.Clean(raw)
	if cleaned == "." {
		return "", false, nil
	}
	components := strings.Split(cleaned, "/")
	if strip >= len(components) {
		return "", false, nil
	}
	return strings.Join(components[strip:], "/"), true, nil
}

func selected(name string, paths []string) bool {
	if len(paths) == 0 {
		return true
	}
	for _, wanted := range paths {
		wanted = strings.Trim(path.Clean("/"+wanted), "/")
		if name == wanted || strings.HasPrefix(name, wanted+"/") {
			return true
		}
		if matched, _ := path.Match(wanted, name); matched {
			return true
		}
	}
	return false
}

// writeMember writes content next to target and renames it into place,
// so an existing read-only file from an earlier archive in a chain is
// replaced rather than opened for writing.
func writeMember(target string, header *tar.Header, content io.Reader) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	file, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return err
	}
	temporary := file.Name()
	defer os.Remove(temporary)

	if _, err := io.Copy(file, content); err != nil {
		file.Close()
		return err
	}
	if err := file.Chmod(header.FileInfo().Mode().Perm()); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	if err := os.Chtimes(temporary, header.ModTime, header.ModTime); err != nil {
		return err
	}
	return os.Rename(temporary, target)
}

// previewSniffLength is how much of a member is checked for NUL bytes.
const previewSniffLength = 8 << 10

// Preview returns up to maxLines lines of a text member. When the
// member is longer, a trailer reports how many lines were left out.
func Preview(ctx context.Context, archivePath, member string, maxLines int) (string, error) {
	if maxLines <= 0 {
		maxLines = 100
	}
	member = strings.TrimSuffix(member, "/")
	var preview string
	found := false

	err := Walk(ctx, archivePath, func(header *tar.Header, content io.Reader) error {
		if found || strings.TrimSuffix(header.Name, "/") != member {
			return nil
		}
		found = true
		if header.Typeflag == tar.TypeDir {
			return fmt.Errorf("%s is a directory", member)
		}
		if header.Typeflag != tar.TypeReg {
			return fmt.Errorf("%s is not a regular file", member)
		}

		buffered := bufio.NewReaderSize(content, previewSniffLength)
		head, _ := buffered.Peek(previewSniffLength)
		if bytes.IndexByte(head, 0) >= 0 {
			return fmt.Errorf("%s: %w", member, ErrBinary)
		}

		var lines []string
		remaining := 0
		scanner := bufio.NewScanner(buffered)
		scanner.Buffer(make([]byte, 64<<10), 1<<20)
		for scanner.Scan() {
			if len(lines) < maxLines {
				lines = append(lines, scanner.Text())
			} else {
				remaining++
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading %s: %w", member, err)
		}
		preview = strings.Join(lines, "\n")
		if remaining > 0 {
			preview += fmt.Sprintf("\n\n... (%d more lines) ...", remaining)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%s: %w", member, ErrNotFound)
	}
	return preview, nil
}
