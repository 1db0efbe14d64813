// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

// writeArchive creates an archive file (and, when metadata is non-nil,
// its sidecar) under the item directory and returns its path.
func writeArchive(t *testing.T, c *Catalog, kind Kind, item string, name ArchiveName, content string, metadata *Metadata) string {
	t.Helper()
	directory := c.Layout.Dir(kind, item)
	if err := os.MkdirAll(directory, 0700); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(directory, name.String())
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	if metadata != nil {
		metadata.BackupName = name.String()
		metadata.ItemName = item
		metadata.ItemType = kind
		if metadata.Timestamp.IsZero() {
			metadata.Timestamp = Time{name.Time}
		}
		if err := WriteMetadata(SidecarPath(path), *metadata); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func at(hour int) time.Time {
	return time.Date(2026, 5, 10, hour, 0, 0, 0, time.Local)
}

func names(backups []Backup) []string {
	var result []string
	for _, backup := range backups {
		result = append(result, backup.Name())
	}
	return result
}

func TestList(t *testing.T) {
	c := New(t.TempDir(), nil)
	writeArchive(t, c, KindProject, "site", ArchiveName{Item: "site", Time: at(1), Type: TypeFull, Extension: ExtTarGzip}, "one", &Metadata{})
	writeArchive(t, c, KindProject, "site", ArchiveName{Item: "site", Time: at(3), Type: TypeIncremental, Extension: ExtTarGzip}, "three", &Metadata{BackupType: TypeIncremental})
	orphan := writeArchive(t, c, KindProject, "site", ArchiveName{Item: "site", Time: at(2), Type: TypeFull, Extension: ExtTarGzip}, "two!", nil)

	directory := c.Layout.Dir(KindProject, "site")
	os.WriteFile(filepath.Join(directory, ".site_snapshot.cbor"), []byte("x"), 0600)
	os.WriteFile(filepath.Join(directory, "notes.txt"), []byte("x"), 0600)
	if err := UpdateLatestLink(orphan, "latest.tar.gz"); err != nil {
		t.Fatal(err)
	}

	backups, err := c.List(KindProject, "site")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{
		"site_20260510_030000_incr.tar.gz",
		"site_20260510_020000_full.tar.gz",
		"site_20260510_010000_full.tar.gz",
	}
	if got := names(backups); !slices.Equal(got, want) {
		t.Fatalf("List = %v, want %v", got, want)
	}

	synthesized := backups[1]
	if synthesized.HasSidecar {
		t.Error("orphan archive reported a sidecar")
	}
	if synthesized.Metadata.BackupType != TypeFull || synthesized.Metadata.SizeBytes != 4 {
		t.Errorf("synthesized metadata = %+v", synthesized.Metadata)
	}
	if !synthesized.Time().Equal(at(2)) {
		t.Errorf("synthesized time = %s, want from name", synthesized.Time())
	}
}

func TestList_MissingItem(t *testing.T) {
	c := New(t.TempDir(), nil)
	backups, err := c.List(KindDatabase, "ghost")
	if err != nil || len(backups) != 0 {
		t.Errorf("List(missing) = %v, %v", backups, err)
	}
	items, err := c.Items(KindDatabase)
	if err != nil || len(items) != 0 {
		t.Errorf("Items(missing) = %v, %v", items, err)
	}
}

func TestLatestAndFind(t *testing.T) {
	c := New(t.TempDir(), nil)
	if _, err := c.Latest(KindProject, "site"); !errors.Is(err, ErrNoBackups) {
		t.Fatalf("Latest(empty) = %v, want ErrNoBackups", err)
	}

	writeArchive(t, c, KindProject, "site", ArchiveName{Item: "site", Time: at(1), Type: TypeFull, Extension: ExtTarGzip}, "a", &Metadata{BackupType: TypeFull})
	writeArchive(t, c, KindProject, "site", ArchiveName{Item: "site", Type: TypeComplete, Extension: ExtTarGzip}, "b",
		&Metadata{BackupType: TypeComplete, Timestamp: Time{at(5)}})

	latest, err := c.Latest(KindProject, "site")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Metadata.BackupType != TypeFull {
		t.Errorf("Latest returned %s, want the full archive", latest.Name())
	}

	found, err := c.Find(KindProject, "site", "site_complete.tar.gz")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found.Metadata.BackupType != TypeComplete {
		t.Errorf("Find metadata = %+v", found.Metadata)
	}
	if _, err := c.Find(KindProject, "site", "../../etc/passwd"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Find(traversal) = %v, want ErrInvalidName", err)
	}
	if _, err := c.Find(KindProject, "site", "site_20200101_000000_full.tar.gz"); !errors.Is(err, ErrNoBackups) {
		t.Errorf("Find(missing) = %v, want ErrNoBackups", err)
	}
}

func TestRefreshLatestLinks(t *testing.T) {
	c := New(t.TempDir(), nil)
	old := writeArchive(t, c, KindDatabase, "shop", ArchiveName{Item: "shop", Time: at(1), Type: TypeDump, Extension: ExtSQLGzip}, "a", &Metadata{BackupType: TypeDump})
	newest := writeArchive(t, c, KindDatabase, "shop", ArchiveName{Item: "shop", Time: at(2), Type: TypeDump, Extension: ExtSQLGzip}, "b", &Metadata{BackupType: TypeDump})
	if err := UpdateLatestLink(newest, "latest.sql.gz"); err != nil {
		t.Fatal(err)
	}

	backup, err := c.Stat(KindDatabase, "shop", newest)
	if err != nil {
		t.Fatal(err)
	}
	if err := Remove(backup); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := c.RefreshLatestLinks(KindDatabase, "shop"); err != nil {
		t.Fatalf("RefreshLatestLinks: %v", err)
	}

	link := filepath.Join(c.Layout.Dir(KindDatabase, "shop"), "latest.sql.gz")
	target, err := os.Readlink(link)
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != filepath.Base(old) {
		t.Errorf("latest -> %s, want %s", target, filepath.Base(old))
	}

	backup, _ = c.Stat(KindDatabase, "shop", old)
	Remove(backup)
	if err := c.RefreshLatestLinks(KindDatabase, "shop"); err != nil {
		t.Fatalf("RefreshLatestLinks: %v", err)
	}
	if _, err := os.Lstat(link); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("dangling latest link kept: %v", err)
	}
}

func TestHasBackupOn(t *testing.T) {
	c := New(t.TempDir(), nil)
	writeArchive(t, c, KindProject, "site", ArchiveName{Item: "site", Time: at(1), Type: TypeFull, Extension: ExtTarGzip}, "a", nil)

	tests := []struct {
		day        time.Time
		backupType BackupType
		want       bool
	}{
		{at(23), "", true},
		{at(23), TypeFull, true},
		{at(23), TypeIncremental, false},
		{at(23).AddDate(0, 0, 1), "", false},
	}
	for _, test := range tests {
		got, err := c.HasBackupOn(KindProject, "site", test.backupType, test.day)
		if err != nil {
			t.Fatal(err)
		}
		if got != test.want {
			t.Errorf("HasBackupOn(%s, %q) = %v, want %v", test.day.Format(time.DateOnly), test.backupType, got, test.want)
		}
	}
}

func TestTag(t *testing.T) {
	c := New(t.TempDir(), nil)
	path := writeArchive(t, c, KindProject, "site", ArchiveName{Item: "site", Time: at(1), Type: TypeFull, Extension: ExtTarGzip}, "a", nil)
	backup, err := c.Stat(KindProject, "site", path)
	if err != nil {
		t.Fatal(err)
	}

	importance := ImportanceCritical
	keep := true
	metadata, err := c.Tag(backup, TagUpdate{Tags: []string{"release", "stable", "release", " "}, Importance: &importance, KeepForever: &keep})
	if err != nil {
		t.Fatalf("Tag: %v", err)
	}
	if !slices.Equal(metadata.Tags, []string{"release", "stable"}) {
		t.Errorf("tags = %v", metadata.Tags)
	}
	if !metadata.KeepForever || !metadata.Pinned || metadata.Importance != ImportanceCritical {
		t.Errorf("metadata = %+v", metadata)
	}

	reread, err := c.Stat(KindProject, "site", path)
	if err != nil {
		t.Fatal(err)
	}
	if !reread.HasSidecar || !reread.Metadata.HasTag("stable") {
		t.Errorf("sidecar not persisted: %+v", reread)
	}
	info, err := os.Stat(reread.SidecarPath())
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("sidecar mode = %o, want 600", info.Mode().Perm())
	}

	bogus := "urgent"
	if _, err := c.Tag(reread, TagUpdate{Importance: &bogus}); err == nil {
		t.Error("Tag with invalid importance succeeded")
	}

	tagged, err := c.ListTagged("stable")
	if err != nil || len(tagged) != 1 {
		t.Errorf("ListTagged(stable) = %v, %v", names(tagged), err)
	}
	if tagged, _ := c.ListTagged("nightly"); len(tagged) != 0 {
		t.Errorf("ListTagged(nightly) = %v", names(tagged))
	}
	if tagged, _ := c.ListTagged(""); len(tagged) != 1 {
		t.Errorf("ListTagged(any) = %v", names(tagged))
	}
}

func TestBackfillChecksums(t *testing.T) {
	c := New(t.TempDir(), nil)
	withSum := writeArchive(t, c, KindProject, "site", ArchiveName{Item: "site", Time: at(1), Type: TypeFull, Extension: ExtTarGzip}, "a",
		&Metadata{ChecksumSHA256: "keep-me"})
	without := writeArchive(t, c, KindProject, "site", ArchiveName{Item: "site", Time: at(2), Type: TypeFull, Extension: ExtTarGzip}, "bb", &Metadata{})
	orphan := writeArchive(t, c, KindGit, "site", ArchiveName{Item: "site", Time: at(3), Type: TypeBundle, Extension: ExtBundle}, "ccc", nil)

	report, err := c.BackfillChecksums(context.Background(), "", "")
	if err != nil {
		t.Fatalf("BackfillChecksums: %v", err)
	}
	if report != (BackfillReport{Total: 3, Updated: 1, Created: 1}) {
		t.Errorf("report = %+v", report)
	}

	expect := func(path, content string) {
		t.Helper()
		metadata, err := ReadMetadata(SidecarPath(path))
		if err != nil {
			t.Fatal(err)
		}
		sum := sha256.Sum256([]byte(content))
		if metadata.ChecksumSHA256 != hex.EncodeToString(sum[:]) {
			t.Errorf("%s checksum = %q", filepath.Base(path), metadata.ChecksumSHA256)
		}
	}
	expect(without, "bb")
	expect(orphan, "ccc")

	untouched, _ := ReadMetadata(SidecarPath(withSum))
	if untouched.ChecksumSHA256 != "keep-me" {
		t.Errorf("existing checksum overwritten: %q", untouched.ChecksumSHA256)
	}
}

func TestUsage(t *testing.T) {
	c := New(t.TempDir(), nil)
	writeArchive(t, c, KindProject, "site", ArchiveName{Item: "site", Time: at(1), Type: TypeFull, Extension: ExtTarGzip}, "12345", nil)
	writeArchive(t, c, KindProject, "site", ArchiveName{Item: "site", Time: at(2), Type: TypeFull, Extension: ExtTarGzip}, "123", nil)
	writeArchive(t, c, KindDatabase, "shop", ArchiveName{Item: "shop", Time: at(1), Type: TypeDump, Extension: ExtSQLGzip}, "1", nil)

	usage, err := c.Usage()
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if usage.Count != 3 || usage.Bytes != 9 {
		t.Errorf("totals = %d/%d, want 3/9", usage.Count, usage.Bytes)
	}
	if got := usage.ByKind[KindProject]; got.Count != 2 || got.Bytes != 8 {
		t.Errorf("project usage = %+v", got)
	}
	if len(usage.Items) != 2 {
		t.Fatalf("items = %+v", usage.Items)
	}
	site := usage.Items[0]
	if !site.Oldest.Equal(at(1)) || !site.Newest.Equal(at(2)) {
		t.Errorf("site range = %s..%s", site.Oldest, site.Newest)
	}
	if usage.Disk == nil || usage.Disk.Total == 0 {
		t.Error("disk usage missing")
	}
}
