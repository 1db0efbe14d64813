// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/quartermaster-backup/quartermaster/lib/catalog"
	"github.com/quartermaster-backup/quartermaster/lib/config"
	"github.com/quartermaster-backup/quartermaster/lib/engine"
	"github.com/quartermaster-backup/quartermaster/lib/testutil"
)

func TestActionsSingleProjectUsesConfiguredOptions(t *testing.T) {
	projectDir := filepath.Join(t.TempDir(), "site")
	testutil.WriteTree(t, projectDir, map[string]string{
		"index.html": "<h1>hello</h1>\n",
		".env":       "SECRET=1\n",
	})
	cfg := config.Default()
	cfg.Backup.LocalBase = t.TempDir()
	cfg.Backup.MinFreeMB = 0
	cfg.Backup.MinDatabaseMB = 0
	cfg.Projects = []config.Project{{Name: "site", Path: projectDir, Enabled: true, Complete: true}}

	actions := &Actions{Engine: engine.New(cfg, nil)}
	outcome, err := actions.Execute(context.Background(), config.JobProjects, "site")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Succeeded != 1 || outcome.Failed != 0 {
		t.Errorf("Outcome = %+v, want one success", outcome)
	}

	directory := actions.Engine.Catalog.Layout.Dir(catalog.KindProject, "site")
	if _, err := os.Stat(filepath.Join(directory, "site_complete.tar.gz")); err != nil {
		t.Errorf("ad-hoc run ignored complete: true: %v", err)
	}
}
