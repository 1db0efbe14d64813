// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/quartermaster-backup/quartermaster/lib/checksum"
	"github.com/quartermaster-backup/quartermaster/lib/testutil"
)

var projectFiles = map[string]string{
	"README.md":           "# app\n",
	"src/main.go":         "package main\n",
	"src/util/strings.go": "package util\n",
	".env":                "SECRET=1\n",
	"_scratch/tmp.txt":    "scratch\n",
	"node_modules/x.js":   "module.exports = 1\n",
	"dist/app.zip":        "PK",
}

func buildProject(t *testing.T, source, destination string, options BuildOptions) BuildResult {
	t.Helper()
	options.Source = source
	options.Destination = destination
	if options.Prefix == "" {
		options.Prefix = "app"
	}
	result, err := Build(context.Background(), options)
	if err != nil {
		t.Fatalf("Build(%s): %v", filepath.Base(destination), err)
	}
	return result
}

func entryNames(t *testing.T, archivePath string) []string {
	t.Helper()
	entries, err := List(context.Background(), archivePath, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.Type == EntryFile {
			names = append(names, entry.Name)
		}
	}
	sort.Strings(names)
	return names
}

func assertNames(t *testing.T, got []string, want ...string) {
	t.Helper()
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("entries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entries = %v, want %v", got, want)
		}
	}
}

func TestBuildFull(t *testing.T) {
	for _, compression := range []Compression{Gzip, Zstd, LZ4} {
		t.Run(string(compression), func(t *testing.T) {
			source := t.TempDir()
			testutil.WriteTree(t, source, projectFiles)
			destination := filepath.Join(t.TempDir(), "out", "app_full"+compression.TarExtension())

			result := buildProject(t, source, destination, BuildOptions{
				Compression: compression,
				Filter:      NewFilter([]string{"node_modules/"}, ModeDefault),
			})

			if result.FilesAdded != 4 || result.FilesSkipped != 0 {
				t.Errorf("added %d skipped %d, want 4 and 0", result.FilesAdded, result.FilesSkipped)
			}
			assertNames(t, entryNames(t, destination),
				"app/README.md", "app/src/main.go", "app/src/util/strings.go", "app/dist/app.zip")

			info, err := os.Stat(destination)
			if err != nil {
				t.Fatal(err)
			}
			if info.Mode().Perm() != 0600 {
				t.Errorf("archive mode = %v, want 0600", info.Mode().Perm())
			}
			if info.Size() != result.Size {
				t.Errorf("result size %d, file size %d", result.Size, info.Size())
			}
			if err := checksum.Verify(destination, result.Digest.String()); err != nil {
				t.Errorf("digest computed while writing does not match file: %v", err)
			}
			if len(result.Snapshot.Files) != 4 {
				t.Errorf("snapshot has %d files, want 4", len(result.Snapshot.Files))
			}
			if result.Snapshot.Archive != filepath.Base(destination) {
				t.Errorf("snapshot archive = %q", result.Snapshot.Archive)
			}
		})
	}
}

func TestBuildComplete(t *testing.T) {
	source := t.TempDir()
	testutil.WriteTree(t, source, projectFiles)
	destination := filepath.Join(t.TempDir(), "app_complete.tar.gz")

	buildProject(t, source, destination, BuildOptions{Filter: NewFilter(nil, ModeComplete)})

	assertNames(t, entryNames(t, destination),
		"app/README.md", "app/src/main.go", "app/src/util/strings.go",
		"app/.env", "app/_scratch/tmp.txt", "app/node_modules/x.js")
}

func TestBuildIncremental(t *testing.T) {
	source := t.TempDir()
	testutil.WriteTree(t, source, map[string]string{
		"a.txt":     "one",
		"b.txt":     "two",
		"dir/c.txt": "three",
	})
	testutil.Chtimes(t, source, time.Now().Add(-time.Hour))
	output := t.TempDir()

	full := buildProject(t, source, filepath.Join(output, "full.tar.gz"), BuildOptions{})

	// Same size and older mtime are skipped; a new file and a resized
	// file are added.
	testutil.WriteTree(t, source, map[string]string{"b.txt": "two!", "d.txt": "four"})

	incremental := buildProject(t, source, filepath.Join(output, "incr.tar.gz"), BuildOptions{Base: full.Snapshot})
	if incremental.FilesAdded != 2 || incremental.FilesSkipped != 2 {
		t.Errorf("added %d skipped %d, want 2 and 2", incremental.FilesAdded, incremental.FilesSkipped)
	}
	assertNames(t, entryNames(t, filepath.Join(output, "incr.tar.gz")), "app/b.txt", "app/d.txt")

	if len(incremental.Snapshot.Files) != 4 {
		t.Errorf("incremental snapshot indexes %d files, want 4", len(incremental.Snapshot.Files))
	}

	// Directories are always present so a chain restore recreates them.
	entries, err := List(context.Background(), filepath.Join(output, "incr.tar.gz"), "")
	if err != nil {
		t.Fatal(err)
	}
	foundDir := false
	for _, entry := range entries {
		if entry.Name == "app/dir/" && entry.Type == EntryDir {
			foundDir = true
		}
	}
	if !foundDir {
		t.Error("incremental archive is missing directory entry app/dir/")
	}
}

func TestBuildIncrementalCompareContent(t *testing.T) {
	source := t.TempDir()
	testutil.WriteTree(t, source, map[string]string{"a.txt": "aaaa", "b.txt": "bbbb"})
	old := time.Now().Add(-time.Hour)
	testutil.Chtimes(t, source, old)
	output := t.TempDir()

	full := buildProject(t, source, filepath.Join(output, "full.tar.gz"), BuildOptions{CompareContent: true})
	if len(full.Snapshot.Files["a.txt"].Fingerprint) == 0 {
		t.Fatal("full build with CompareContent recorded no fingerprint")
	}

	// Same size, same mtime, different content: only a content
	// comparison notices.
	if err := os.WriteFile(filepath.Join(source, "a.txt"), []byte("AAAA"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(filepath.Join(source, "a.txt"), old, old); err != nil {
		t.Fatal(err)
	}

	blind := buildProject(t, source, filepath.Join(output, "blind.tar.gz"), BuildOptions{Base: full.Snapshot})
	if blind.FilesAdded != 0 {
		t.Errorf("metadata-only incremental added %d files, want 0", blind.FilesAdded)
	}

	compared := buildProject(t, source, filepath.Join(output, "compared.tar.gz"),
		BuildOptions{Base: full.Snapshot, CompareContent: true})
	if compared.FilesAdded != 1 || compared.FilesSkipped != 1 {
		t.Errorf("added %d skipped %d, want 1 and 1", compared.FilesAdded, compared.FilesSkipped)
	}
	assertNames(t, entryNames(t, filepath.Join(output, "compared.tar.gz")), "app/a.txt")
}

func TestBuildCancelledLeavesNothing(t *testing.T) {
	source := t.TempDir()
	testutil.WriteTree(t, source, projectFiles)
	destination := filepath.Join(t.TempDir(), "app.tar.gz")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, BuildOptions{Source: source, Destination: destination})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Build error = %v, want context.Canceled", err)
	}
	if _, err := os.Stat(destination); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("cancelled build left %s behind", destination)
	}
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(destination), "*"))
	if len(matches) != 0 {
		t.Errorf("cancelled build left temp files: %v", matches)
	}
}

func TestBuildRejectsFileSource(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Build(context.Background(), BuildOptions{Source: file, Destination: file + ".tar.gz"}); err == nil {
		t.Fatal("Build accepted a regular file as source")
	}
}

func TestBuildSymlink(t *testing.T) {
	source := t.TempDir()
	testutil.WriteTree(t, source, map[string]string{"target.txt": "x"})
	if err := os.Symlink("target.txt", filepath.Join(source, "link")); err != nil {
		t.Fatal(err)
	}
	destination := filepath.Join(t.TempDir(), "app.tar.gz")
	buildProject(t, source, destination, BuildOptions{})

	entries, err := List(context.Background(), destination, "app/link")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Type != EntrySymlink || entries[0].Linkname != "target.txt" {
		t.Errorf("symlink entry = %+v", entries)
	}
}
