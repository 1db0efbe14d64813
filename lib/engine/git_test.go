// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quartermaster-backup/quartermaster/lib/catalog"
	"github.com/quartermaster-backup/quartermaster/lib/config"
	"github.com/quartermaster-backup/quartermaster/lib/gitrepo"
	"github.com/quartermaster-backup/quartermaster/lib/notify"
)

func gitCommand(t *testing.T, dir string, args ...string) string {
	t.Helper()
	command := exec.Command("git", append([]string{"-C", dir}, args...)...)
	command.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Test", "GIT_AUTHOR_EMAIL=test@test.local",
		"GIT_COMMITTER_NAME=Test", "GIT_COMMITTER_EMAIL=test@test.local",
	)
	output, err := command.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, output)
	}
	return strings.TrimSpace(string(output))
}

// gitEngine returns an engine whose "site" project is a git repository
// with one commit.
func gitEngine(t *testing.T) *Engine {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skipf("git not available: %v", err)
	}
	engine, _ := newEngine(t)
	dir := projectPath(t, engine, "site")
	gitCommand(t, dir, "init", "-q", "-b", "main")
	gitCommand(t, dir, "add", "-A")
	gitCommand(t, dir, "commit", "-q", "-m", "initial")
	return engine
}

func TestBackupGit(t *testing.T) {
	engine := gitEngine(t)
	ctx := context.Background()

	result, err := engine.BackupGit(ctx, "site")
	if err != nil {
		t.Fatalf("BackupGit: %v", err)
	}
	if result.Status != StatusSuccess || !strings.HasSuffix(result.Path, catalog.ExtBundle) {
		t.Fatalf("result = %+v", result)
	}
	if err := engine.Verify(ctx, result.Path); err != nil {
		t.Errorf("Verify: %v", err)
	}

	t.Run("clone", func(t *testing.T) {
		target := filepath.Join(t.TempDir(), "clone")
		if _, err := engine.RestoreGit(ctx, "site", "", target, GitClone); err != nil {
			t.Fatalf("RestoreGit clone: %v", err)
		}
		if _, err := os.Stat(filepath.Join(target, "README.md")); err != nil {
			t.Errorf("clone lacks README.md: %v", err)
		}
	})

	t.Run("fetch", func(t *testing.T) {
		target := t.TempDir()
		gitCommand(t, target, "init", "-q", "-b", "main")
		if _, err := engine.RestoreGit(ctx, "site", filepath.Base(result.Path), target, GitFetch); err != nil {
			t.Fatalf("RestoreGit fetch: %v", err)
		}
		if refs := gitCommand(t, target, "branch", "-r"); !strings.Contains(refs, gitrepo.BackupRemote+"/main") {
			t.Errorf("remote branches = %q", refs)
		}
	})

	t.Run("fetch into non-repository", func(t *testing.T) {
		_, err := engine.RestoreGit(ctx, "site", "", t.TempDir(), GitFetch)
		if !errors.Is(err, gitrepo.ErrNotRepository) {
			t.Errorf("error = %v, want ErrNotRepository", err)
		}
	})
}

func TestBackupGitSkipsNonRepository(t *testing.T) {
	engine, _ := newEngine(t)
	result, err := engine.BackupGit(context.Background(), "site")
	if err != nil {
		t.Fatalf("BackupGit: %v", err)
	}
	if result.Status != StatusSkipped {
		t.Errorf("Status = %s, want skipped", result.Status)
	}
}

func TestQuickSnapshot(t *testing.T) {
	engine := gitEngine(t)
	ctx := context.Background()
	notifications := &recorder{}
	engine.Notifier = notifications
	dir := projectPath(t, engine, "site")

	path := filepath.Join(t.TempDir(), "app.db")
	execSQL(t, path, "CREATE TABLE items (id INTEGER PRIMARY KEY);")
	engine.Config.Databases = []config.Database{
		{Name: "app", Engine: config.EngineSQLite, Path: path, Enabled: true},
		{Name: "broken", Engine: config.EngineSQLite, Path: filepath.Join(t.TempDir(), "missing.db"), Enabled: true},
	}
	engine.Config.Projects[0].Databases = []string{"app"}

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("wip\n"), 0644); err != nil {
		t.Fatal(err)
	}

	report, err := engine.QuickSnapshot(ctx, "site", "before refactor")
	if err != nil {
		t.Fatalf("QuickSnapshot: %v", err)
	}
	if report.Status != StatusSuccess || report.Commit == "" || len(report.Steps) != 3 {
		t.Fatalf("report = %+v", report)
	}
	if subject := gitCommand(t, dir, "log", "-1", "--format=%s"); subject != "before refactor" {
		t.Errorf("savepoint subject = %q", subject)
	}

	t.Run("partial", func(t *testing.T) {
		engine.Config.Projects[0].Databases = []string{"app", "broken"}
		report, err := engine.QuickSnapshot(ctx, "site", "")
		if err == nil {
			t.Fatal("expected an error from the broken database")
		}
		if report.Status != StatusPartial {
			t.Errorf("Status = %s, want partial", report.Status)
		}
		if report.Steps[0].Status != StatusSkipped {
			t.Errorf("savepoint on clean tree = %s, want skipped", report.Steps[0].Status)
		}
	})

	var snapshots []notify.Event
	for _, event := range notifications.Events() {
		if event.Kind == notify.Snapshot {
			snapshots = append(snapshots, event)
		}
	}
	if len(snapshots) != 2 || snapshots[0].Partial() || !snapshots[1].Partial() {
		t.Errorf("snapshot notifications = %+v", snapshots)
	}
}
