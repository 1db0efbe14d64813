// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigDir(t *testing.T, files map[string]string) string {
	t.Helper()
	directory := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(directory, name), []byte(content), 0600); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	return directory
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Backup.Compression != "gzip" {
		t.Errorf("compression = %q, want gzip", cfg.Backup.Compression)
	}
	if cfg.Backup.Parallelism != 4 {
		t.Errorf("parallelism = %d, want 4", cfg.Backup.Parallelism)
	}
	if cfg.Retention.ProjectDays != 30 || cfg.Retention.DatabaseDays != 14 {
		t.Errorf("retention days = %d/%d, want 30/14", cfg.Retention.ProjectDays, cfg.Retention.DatabaseDays)
	}
	if cfg.Timeouts.MySQLDump != 3600 || cfg.Timeouts.MySQLRestore != 7200 || cfg.Timeouts.Verify != 300 {
		t.Errorf("timeouts = %+v", cfg.Timeouts)
	}
	if cfg.Retention.Tiers.Yearly.MaxAge.Std() != 1825*24*time.Hour {
		t.Errorf("yearly max_age = %s, want 1825d", cfg.Retention.Tiers.Yearly.MaxAge)
	}
	if cfg.Schedule.OverdueAfter.Std() != 24*time.Hour {
		t.Errorf("overdue_after = %s, want 24h", cfg.Schedule.OverdueAfter.Std())
	}
}

func TestLoad_RequiresEnvironment(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when QUARTERMASTER_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "QUARTERMASTER_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_RequiresSettings(t *testing.T) {
	directory := writeConfigDir(t, map[string]string{ProjectsFile: "projects: []\n"})

	if _, err := LoadDir(directory); err == nil {
		t.Fatal("LoadDir without settings.yaml succeeded")
	}
}

func TestLoadDir(t *testing.T) {
	t.Setenv("QM_TEST_ROOT", "/srv/code")
	directory := writeConfigDir(t, map[string]string{
		SettingsFile: `
backup:
  local_base: /data/backups
  sync_dir: ${QUARTERMASTER_BASE}-mirror
  compression: zstd
  parallelism: 2
  global_exclude: ["node_modules/", "*.log"]
mysql_defaults:
  host: db.internal
retention:
  database_days: 7
  tiers:
    enabled: true
    hourly: {keep: 12, max_age: 12h}
schedule:
  timezone: UTC
  overdue_after: 2d
  jobs:
    - {name: nightly, kind: projects, cron: "0 2 * * *"}
    - {name: dbs, kind: databases, cron: "@daily", enabled: false}
`,
		ProjectsFile: `
projects:
  - name: website
    path: ${QM_TEST_ROOT}/website
    exclude: [dist/]
    databases: [shop]
    tags: [production]
  - name: scratch
    path: ${MISSING_VAR:-/tmp}/scratch
    enabled: false
`,
		DatabasesFile: `
databases:
  - name: shop
    user: shop
    password: hunter2
  - name: notes
    engine: sqlite
    path: ${QUARTERMASTER_BASE}/notes.db
`,
	})

	cfg, err := LoadDir(directory)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Backup.Compression != "zstd" || cfg.Backup.Parallelism != 2 {
		t.Errorf("backup = %+v", cfg.Backup)
	}
	if cfg.Backup.Checksum != "sha256" {
		t.Errorf("checksum default lost: %q", cfg.Backup.Checksum)
	}
	if cfg.Backup.SyncDir != "/data/backups-mirror" {
		t.Errorf("sync_dir = %q, want /data/backups-mirror", cfg.Backup.SyncDir)
	}
	if cfg.Retention.DatabaseDays != 7 || cfg.Retention.ProjectDays != 30 {
		t.Errorf("retention days = %d/%d, want 30/7", cfg.Retention.ProjectDays, cfg.Retention.DatabaseDays)
	}
	if got := cfg.Retention.Tiers.Hourly; got.Keep != 12 || got.MaxAge.Std() != 12*time.Hour {
		t.Errorf("hourly tier = %+v", got)
	}
	if cfg.Schedule.OverdueAfter.Std() != 48*time.Hour {
		t.Errorf("overdue_after = %s, want 2d", cfg.Schedule.OverdueAfter)
	}
	if len(cfg.Schedule.Jobs) != 2 || !cfg.Schedule.Jobs[0].Enabled || cfg.Schedule.Jobs[1].Enabled {
		t.Errorf("jobs = %+v", cfg.Schedule.Jobs)
	}
	if cfg.Vault.KeyFile != filepath.Join(cfg.Dir, ".vault_key") {
		t.Errorf("vault key file = %q", cfg.Vault.KeyFile)
	}

	website, ok := cfg.Project("website")
	if !ok {
		t.Fatal("project website missing")
	}
	if website.Path != "/srv/code/website" || !website.Enabled {
		t.Errorf("website = %+v", website)
	}
	scratch, _ := cfg.Project("scratch")
	if scratch.Path != "/tmp/scratch" {
		t.Errorf("scratch path = %q, want /tmp/scratch", scratch.Path)
	}
	if got := cfg.EnabledProjects(); len(got) != 1 || got[0].Name != "website" {
		t.Errorf("EnabledProjects = %+v", got)
	}

	shop, _ := cfg.Database("shop")
	if shop.Engine != EngineMySQL || shop.Host != "db.internal" || shop.Port != 3306 || shop.User != "shop" {
		t.Errorf("shop = %+v", shop)
	}
	notes, _ := cfg.Database("notes")
	if notes.Path != "/data/backups/notes.db" {
		t.Errorf("notes path = %q", notes.Path)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad_identifier", func(c *Config) {
			c.Projects = []Project{{Name: "my project", Path: "/x", Enabled: true}}
		}, "invalid identifier"},
		{"duplicate_project", func(c *Config) {
			c.Projects = []Project{{Name: "a", Path: "/x"}, {Name: "a", Path: "/y"}}
		}, "duplicate project name"},
		{"unknown_compression", func(c *Config) { c.Backup.Compression = "bzip2" }, "backup.compression"},
		{"unknown_checksum", func(c *Config) { c.Backup.Checksum = "md5" }, "backup.checksum"},
		{"zero_parallelism", func(c *Config) { c.Backup.Parallelism = 0 }, "parallelism must be positive"},
		{"bad_cron", func(c *Config) {
			c.Schedule.Jobs = []Job{{Name: "j", Kind: JobProjects, Cron: "61 * * * *"}}
		}, "job j: cron"},
		{"bad_job_kind", func(c *Config) {
			c.Schedule.Jobs = []Job{{Name: "j", Kind: "coffee", Cron: "@daily"}}
		}, "kind must be one of"},
		{"empty_tiers", func(c *Config) {
			c.Retention.Tiers = TiersConfig{Enabled: true}
		}, "no tier keeps anything"},
		{"bad_mirror_kind", func(c *Config) {
			c.Mirror.Targets = []MirrorTarget{{Name: "t", Kind: "ftp"}}
		}, "kind must be one of"},
		{"sftp_without_known_hosts", func(c *Config) {
			c.Mirror.Targets = []MirrorTarget{{Name: "t", Kind: MirrorSFTP, Host: "h", User: "u", Path: "/p"}}
		}, "known_hosts is required"},
		{"unknown_project_database", func(c *Config) {
			c.Projects = []Project{{Name: "p", Path: "/x", Databases: []string{"nope"}}}
		}, "unknown database"},
		{"sqlite_without_path", func(c *Config) {
			c.Databases = []Database{{Name: "d", Engine: EngineSQLite}}
		}, "path is required for sqlite"},
		{"bad_timezone", func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }, "schedule.timezone"},
		{"duplication_ratio", func(c *Config) { c.Storage.HighDuplicationRatio = 1.5 }, "high_duplication_ratio"},
		{"disk_percent", func(c *Config) { c.Storage.DiskUsageCriticalPercent = 120 }, "disk_usage_critical_percent"},
		{"negative_log_lines", func(c *Config) { c.Logs.MaxLines = -1 }, "logs.max_lines"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate succeeded, want error containing %q", test.wantErr)
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("Validate = %q, want error containing %q", err, test.wantErr)
			}
		})
	}
}

func TestLoadDir_KeepUncategorized(t *testing.T) {
	tests := []struct {
		name      string
		retention string
		want      int
	}{
		{"unset", "retention:\n  project_days: 10\n", 3},
		{"zero", "retention:\n  keep_uncategorized: 0\n", 0},
		{"five", "retention:\n  keep_uncategorized: 5\n", 5},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			directory := writeConfigDir(t, map[string]string{SettingsFile: test.retention})
			cfg, err := LoadDir(directory)
			if err != nil {
				t.Fatalf("LoadDir: %v", err)
			}
			if cfg.Retention.KeepUncategorized != test.want {
				t.Errorf("keep_uncategorized = %d, want %d", cfg.Retention.KeepUncategorized, test.want)
			}
		})
	}
}

func TestValidate_ReportsAll(t *testing.T) {
	cfg := Default()
	cfg.Backup.Compression = "bzip2"
	cfg.Backup.Parallelism = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate succeeded")
	}
	if !strings.Contains(err.Error(), "compression") || !strings.Contains(err.Error(), "parallelism") {
		t.Errorf("Validate = %q, want both problems reported", err)
	}
}

func TestDefault_Validates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

type prefixSealer struct{}

func (prefixSealer) SealValue(value string) (string, error) {
	if value == "" || strings.HasPrefix(value, "enc:") {
		return value, nil
	}
	return "enc:" + value, nil
}

func TestSealPasswordsAndSave(t *testing.T) {
	directory := writeConfigDir(t, map[string]string{
		SettingsFile: "backup:\n  local_base: /data\n",
		DatabasesFile: `
databases:
  - name: a
    password: one
  - name: b
    password: enc:already
  - name: c
`,
	})
	cfg, err := LoadDir(directory)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	changed, err := cfg.SealPasswords(prefixSealer{})
	if err != nil {
		t.Fatalf("SealPasswords: %v", err)
	}
	if !changed {
		t.Fatal("SealPasswords reported no change")
	}
	if err := cfg.SaveDatabases(); err != nil {
		t.Fatalf("SaveDatabases: %v", err)
	}

	info, err := os.Stat(cfg.DatabasesPath())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		t.Errorf("databases.yaml mode = %o, want 600", mode)
	}

	reloaded, err := LoadDir(directory)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	want := map[string]string{"a": "enc:one", "b": "enc:already", "c": ""}
	for name, password := range want {
		database, _ := reloaded.Database(name)
		if database.Password != password {
			t.Errorf("%s password = %q, want %q", name, database.Password, password)
		}
	}

	changed, err = reloaded.SealPasswords(prefixSealer{})
	if err != nil || changed {
		t.Errorf("second SealPasswords = %v, %v; want no change", changed, err)
	}
}

func TestSetDatabasePassword(t *testing.T) {
	cfg := Default()
	cfg.Databases = []Database{{Name: "shop"}}
	if err := cfg.SetDatabasePassword("shop", "enc:x"); err != nil {
		t.Fatalf("SetDatabasePassword: %v", err)
	}
	if cfg.Databases[0].Password != "enc:x" {
		t.Errorf("password = %q", cfg.Databases[0].Password)
	}
	if err := cfg.SetDatabasePassword("missing", "enc:x"); err == nil {
		t.Error("SetDatabasePassword on unknown database succeeded")
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
		text  string
	}{
		{"7d", 7 * 24 * time.Hour, "7d"},
		{"36h", 36 * time.Hour, "36h0m0s"},
		{"90m", 90 * time.Minute, "1h30m0s"},
		{"48h", 48 * time.Hour, "2d"},
	}
	for _, test := range tests {
		got, err := ParseDuration(test.input)
		if err != nil {
			t.Errorf("ParseDuration(%q): %v", test.input, err)
			continue
		}
		if got != test.want {
			t.Errorf("ParseDuration(%q) = %s, want %s", test.input, got, test.want)
		}
		if text := Duration(got).String(); text != test.text {
			t.Errorf("Duration(%s).String() = %q, want %q", got, text, test.text)
		}
	}
	for _, bad := range []string{"", "seven days", "xd"} {
		if _, err := ParseDuration(bad); err == nil {
			t.Errorf("ParseDuration(%q) succeeded", bad)
		}
	}
}
