// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quartermaster-backup/quartermaster/lib/archive"
	"github.com/quartermaster-backup/quartermaster/lib/catalog"
	"github.com/quartermaster-backup/quartermaster/lib/checksum"
	"github.com/quartermaster-backup/quartermaster/lib/clock"
	"github.com/quartermaster-backup/quartermaster/lib/config"
	"github.com/quartermaster-backup/quartermaster/lib/notify"
	"github.com/quartermaster-backup/quartermaster/lib/testutil"
)

var start = time.Date(2026, time.March, 10, 14, 0, 0, 0, time.Local)

// recorder collects notifications.
type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(_ context.Context, event notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) Events() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

// sampleTree is a project source with files the default filter drops.
var sampleTree = map[string]string{
	"README.md":        "# site\n",
	"src/main.go":      "package main\n",
	"src/util.go":      "package main\n\nfunc util() {}\n",
	"debug.log":        "noise\n",
	".env":             "SECRET=1\n",
	"_build/output.js": "compiled\n",
}

// newEngine returns an engine with a fake clock over a temporary
// archive tree and one project, "site", populated from sampleTree.
func newEngine(t *testing.T) (*Engine, *clock.FakeClock) {
	t.Helper()
	projectDir := filepath.Join(t.TempDir(), "site")
	testutil.WriteTree(t, projectDir, sampleTree)

	cfg := config.Default()
	cfg.Backup.LocalBase = t.TempDir()
	cfg.Backup.GlobalExclude = []string{"*.log"}
	cfg.Backup.MinFreeMB = 0
	cfg.Backup.MinDatabaseMB = 0
	cfg.Projects = []config.Project{{
		Name:       "site",
		Path:       projectDir,
		Enabled:    true,
		Tags:       []string{"web"},
		Importance: catalog.ImportanceHigh,
	}}

	fake := clock.Fake(start)
	engine := New(cfg, nil)
	engine.Clock = fake
	return engine, fake
}

func projectPath(t *testing.T, e *Engine, name string) string {
	t.Helper()
	project, ok := e.Config.Project(name)
	if !ok {
		t.Fatalf("project %q not configured", name)
	}
	return project.Path
}

func TestBackupProjectFull(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	result, err := engine.BackupProject(ctx, "site", ProjectOptions{})
	if err != nil {
		t.Fatalf("BackupProject: %v", err)
	}
	if result.Status != StatusSuccess || result.BackupType != catalog.TypeFull {
		t.Fatalf("result = %+v, want successful full backup", result)
	}
	wantName := "site_" + start.Format(catalog.TimestampLayout) + "_full.tar.gz"
	if filepath.Base(result.Path) != wantName {
		t.Errorf("archive = %s, want %s", filepath.Base(result.Path), wantName)
	}
	if result.FilesAdded != 3 {
		t.Errorf("FilesAdded = %d, want 3", result.FilesAdded)
	}

	metadata, err := catalog.ReadMetadata(catalog.SidecarPath(result.Path))
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if len(metadata.ChecksumSHA256) != 64 || !strings.HasPrefix(metadata.Digest, "sha256:") {
		t.Errorf("checksums = %q / %q", metadata.ChecksumSHA256, metadata.Digest)
	}
	if metadata.SizeBytes != result.Size || metadata.Importance != catalog.ImportanceHigh || !metadata.HasTag("web") {
		t.Errorf("metadata = %+v", metadata)
	}

	link, err := os.Readlink(filepath.Join(filepath.Dir(result.Path), "latest.tar.gz"))
	if err != nil || link != wantName {
		t.Errorf("latest link = %q, %v; want %s", link, err, wantName)
	}
	if _, err := os.Stat(engine.Catalog.Layout.SnapshotPath("site")); err != nil {
		t.Errorf("snapshot not written: %v", err)
	}

	entries, err := engine.ListContents(ctx, "site", "", "")
	if err != nil {
		t.Fatalf("ListContents: %v", err)
	}
	names := make(map[string]bool)
	for _, entry := range entries {
		names[entry.Name] = true
	}
	for _, want := range []string{"site/README.md", "site/src/main.go"} {
		if !names[want] {
			t.Errorf("archive lacks %s", want)
		}
	}
	for _, unwanted := range []string{"site/.env", "site/debug.log", "site/_build/output.js"} {
		if names[unwanted] {
			t.Errorf("archive contains excluded %s", unwanted)
		}
	}

	if err := engine.Verify(ctx, result.Path); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestBackupProjectIncremental(t *testing.T) {
	engine, fake := newEngine(t)
	ctx := context.Background()
	source := projectPath(t, engine, "site")

	t.Run("falls back to full without snapshot", func(t *testing.T) {
		result, err := engine.BackupProject(ctx, "site", ProjectOptions{Incremental: true})
		if err != nil {
			t.Fatalf("BackupProject: %v", err)
		}
		if result.BackupType != catalog.TypeFull {
			t.Errorf("BackupType = %s, want full", result.BackupType)
		}
	})

	full, err := engine.Catalog.Latest(catalog.KindProject, "site")
	if err != nil {
		t.Fatal(err)
	}

	later := time.Now().Add(time.Hour)
	changed := filepath.Join(source, "src", "main.go")
	if err := os.WriteFile(changed, []byte("package main\n\nfunc main() {}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(changed, later, later); err != nil {
		t.Fatal(err)
	}
	fake.Advance(time.Hour)

	result, err := engine.BackupProject(ctx, "site", ProjectOptions{Incremental: true})
	if err != nil {
		t.Fatalf("incremental BackupProject: %v", err)
	}
	if result.BackupType != catalog.TypeIncremental {
		t.Fatalf("BackupType = %s, want incremental", result.BackupType)
	}
	if result.BaseBackup != full.Name() {
		t.Errorf("BaseBackup = %q, want %q", result.BaseBackup, full.Name())
	}
	if result.FilesAdded != 1 || result.FilesSkipped != 2 {
		t.Errorf("added/skipped = %d/%d, want 1/2", result.FilesAdded, result.FilesSkipped)
	}
	metadata, err := catalog.ReadMetadata(catalog.SidecarPath(result.Path))
	if err != nil {
		t.Fatal(err)
	}
	if metadata.BaseBackup != full.Name() {
		t.Errorf("sidecar base_backup = %q", metadata.BaseBackup)
	}

	t.Run("restore applies the chain", func(t *testing.T) {
		target := filepath.Join(t.TempDir(), "restored")
		restored, err := engine.RestoreProject(ctx, "site", filepath.Base(result.Path), target)
		if err != nil {
			t.Fatalf("RestoreProject: %v", err)
		}
		if len(restored.Backups) != 2 || restored.Backups[0] != full.Name() {
			t.Errorf("Backups = %v, want base first", restored.Backups)
		}
		got := testutil.ReadTree(t, target)
		want := map[string]string{
			"README.md":   sampleTree["README.md"],
			"src/main.go": "package main\n\nfunc main() {}\n",
			"src/util.go": sampleTree["src/util.go"],
		}
		if len(got) != len(want) {
			t.Errorf("restored tree = %v, want %v", got, want)
		}
		for name, content := range want {
			if got[name] != content {
				t.Errorf("%s = %q, want %q", name, got[name], content)
			}
		}
	})

	t.Run("preview reads unchanged files from the base", func(t *testing.T) {
		text, err := engine.PreviewFile(ctx, "site", filepath.Base(result.Path), "README.md", 10)
		if err != nil {
			t.Fatalf("PreviewFile: %v", err)
		}
		if !strings.Contains(text, "# site") {
			t.Errorf("preview = %q", text)
		}
		if _, err := engine.PreviewFile(ctx, "site", "", "missing.txt", 10); !errors.Is(err, archive.ErrNotFound) {
			t.Errorf("missing member error = %v, want ErrNotFound", err)
		}
	})
}

func TestBackupProjectComplete(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	if _, err := engine.BackupProject(ctx, "site", ProjectOptions{Complete: true}); err != nil {
		t.Fatalf("BackupProject: %v", err)
	}
	directory := engine.Catalog.Layout.Dir(catalog.KindProject, "site")
	complete := filepath.Join(directory, "site_complete.tar.gz")
	link, err := os.Readlink(filepath.Join(directory, "latest_complete.tar.gz"))
	if err != nil || link != "site_complete.tar.gz" {
		t.Errorf("latest_complete link = %q, %v", link, err)
	}
	entries, err := archive.List(ctx, complete, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	found := false
	for _, entry := range entries {
		if entry.Name == "site/.env" {
			found = true
		}
	}
	if !found {
		t.Error("complete archive lacks hidden files")
	}
	metadata, err := catalog.ReadMetadata(catalog.SidecarPath(complete))
	if err != nil || metadata.BackupType != catalog.TypeComplete {
		t.Errorf("complete sidecar = %+v, %v", metadata, err)
	}

	latest, err := engine.Catalog.Latest(catalog.KindProject, "site")
	if err != nil || latest.Metadata.BackupType != catalog.TypeFull {
		t.Errorf("Latest = %+v, %v; complete archive must not count", latest, err)
	}
}

func TestSkipIfExistsToday(t *testing.T) {
	engine, fake := newEngine(t)
	engine.Config.Backup.SkipIfExistsToday = true
	ctx := context.Background()

	if _, err := engine.BackupProject(ctx, "site", ProjectOptions{}); err != nil {
		t.Fatal(err)
	}
	fake.Advance(time.Hour)

	result, err := engine.BackupProject(ctx, "site", ProjectOptions{})
	if err != nil {
		t.Fatalf("second BackupProject: %v", err)
	}
	if result.Status != StatusSkipped {
		t.Errorf("Status = %s, want skipped", result.Status)
	}

	forced, err := engine.BackupProject(ctx, "site", ProjectOptions{Force: true})
	if err != nil || forced.Status != StatusSuccess {
		t.Errorf("forced backup = %+v, %v", forced, err)
	}

	fake.Advance(24 * time.Hour)
	next, err := engine.BackupProject(ctx, "site", ProjectOptions{})
	if err != nil || next.Status != StatusSuccess {
		t.Errorf("next-day backup = %+v, %v", next, err)
	}
}

func TestBackupProjectErrors(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		project string
		setup   func()
		want    error
	}{
		{name: "unknown", project: "nope", want: ErrUnknownItem},
		{name: "invalid name", project: "../etc", want: catalog.ErrInvalidName},
		{
			name:    "no space",
			project: "site",
			setup:   func() { engine.Config.Backup.MinFreeMB = 1 << 40 },
			want:    ErrInsufficientSpace,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if test.setup != nil {
				test.setup()
			}
			result, err := engine.BackupProject(ctx, test.project, ProjectOptions{})
			if !errors.Is(err, test.want) {
				t.Fatalf("error = %v, want %v", err, test.want)
			}
			if result.Status != StatusFailed || result.Error == "" {
				t.Errorf("result = %+v, want failed with error text", result)
			}
		})
	}

	backups, err := engine.Catalog.List(catalog.KindProject, "site")
	if err != nil || len(backups) != 0 {
		t.Errorf("failed backups left %d archives (%v)", len(backups), err)
	}
}

func TestBackupAllProjects(t *testing.T) {
	engine, _ := newEngine(t)
	engine.Config.Projects = append(engine.Config.Projects,
		config.Project{Name: "gone", Path: filepath.Join(t.TempDir(), "missing"), Enabled: true},
		config.Project{Name: "off", Path: t.TempDir(), Enabled: false},
	)
	notifications := &recorder{}
	engine.Notifier = notifications

	results, err := engine.BackupAllProjects(context.Background())
	if err == nil {
		t.Error("expected an error for the missing project")
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (disabled project excluded)", len(results))
	}
	if results[0].Item != "site" || results[0].Status != StatusSuccess {
		t.Errorf("site result = %+v", results[0])
	}
	if results[1].Item != "gone" || results[1].Status != StatusFailed {
		t.Errorf("gone result = %+v", results[1])
	}

	kinds := make(map[notify.EventKind]int)
	for _, event := range notifications.Events() {
		kinds[event.Kind]++
	}
	if kinds[notify.Success] != 1 || kinds[notify.Failure] != 1 {
		t.Errorf("notifications = %v, want one success and one failure", kinds)
	}
}

func TestVerify(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()
	result, err := engine.BackupProject(ctx, "site", ProjectOptions{})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("corrupt archive", func(t *testing.T) {
		data, err := os.ReadFile(result.Path)
		if err != nil {
			t.Fatal(err)
		}
		corrupt := filepath.Join(filepath.Dir(result.Path), "site_20200101_000000_full.tar.gz")
		data[len(data)/2] ^= 0xff
		if err := os.WriteFile(corrupt, data, 0600); err != nil {
			t.Fatal(err)
		}
		sidecar, err := os.ReadFile(catalog.SidecarPath(result.Path))
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(catalog.SidecarPath(corrupt), sidecar, 0600); err != nil {
			t.Fatal(err)
		}
		if err := engine.Verify(ctx, corrupt); !errors.Is(err, checksum.ErrMismatch) {
			t.Errorf("Verify corrupt = %v, want ErrMismatch", err)
		}
	})

	t.Run("missing sidecar", func(t *testing.T) {
		bare := filepath.Join(filepath.Dir(result.Path), "site_20200102_000000_full.tar.gz")
		if err := os.WriteFile(bare, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
		if err := engine.Verify(ctx, bare); !errors.Is(err, ErrNoChecksum) {
			t.Errorf("Verify = %v, want ErrNoChecksum", err)
		}
	})

	t.Run("all", func(t *testing.T) {
		report, err := engine.VerifyAll(ctx)
		if err == nil {
			t.Error("VerifyAll reported no failures")
		}
		valid := 0
		for _, entry := range report {
			if entry.Valid {
				valid++
			}
		}
		if len(report) != 3 || valid != 1 {
			t.Errorf("report = %+v, want 3 archives with 1 valid", report)
		}
	})
}

func TestVerifyAfterBackupBLAKE3(t *testing.T) {
	engine, _ := newEngine(t)
	engine.Config.Backup.Checksum = "blake3"
	engine.Config.Backup.VerifyAfterBackup = true

	result, err := engine.BackupProject(context.Background(), "site", ProjectOptions{})
	if err != nil {
		t.Fatalf("BackupProject: %v", err)
	}
	if !strings.HasPrefix(result.Digest, "blake3:") {
		t.Errorf("Digest = %s, want blake3", result.Digest)
	}
	metadata, err := catalog.ReadMetadata(catalog.SidecarPath(result.Path))
	if err != nil {
		t.Fatal(err)
	}
	sum, err := checksum.File(result.Path, checksum.SHA256)
	if err != nil {
		t.Fatal(err)
	}
	if metadata.ChecksumSHA256 != checksum.Hex(sum) {
		t.Errorf("checksum_sha256 = %s, want %s", metadata.ChecksumSHA256, checksum.Hex(sum))
	}
}

func TestStatus(t *testing.T) {
	engine, fake := newEngine(t)
	engine.Config.Databases = []config.Database{{Name: "shop", Engine: config.EngineSQLite, Enabled: true}}
	ctx := context.Background()

	if _, err := engine.BackupProject(ctx, "site", ProjectOptions{}); err != nil {
		t.Fatal(err)
	}
	fake.Advance(2 * time.Hour)

	statuses, err := engine.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("got %d statuses, want 2", len(statuses))
	}
	site, shop := statuses[0], statuses[1]
	if site.Count != 1 || site.Overdue || !site.Latest.Equal(start) {
		t.Errorf("site = %+v", site)
	}
	if shop.Count != 0 || !shop.Overdue {
		t.Errorf("shop = %+v, want overdue with no backups", shop)
	}

	fake.Advance(48 * time.Hour)
	statuses, err = engine.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !statuses[0].Overdue {
		t.Error("site not overdue two days after its last backup")
	}
}
