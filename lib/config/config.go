// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the configuration directory for [Load].
const EnvironmentVariable = "QUARTERMASTER_CONFIG"

// File names inside the configuration directory.
const (
	SettingsFile  = "settings.yaml"
	ProjectsFile  = "projects.yaml"
	DatabasesFile = "databases.yaml"
)

// Config is the complete Quartermaster configuration. The top-level
// sections mirror settings.yaml; Projects and Databases come from
// their own files.
type Config struct {
	// Dir is the directory the configuration was loaded from. Empty
	// for a Config built by Default.
	Dir string `yaml:"-"`

	Backup        BackupConfig        `yaml:"backup"`
	MySQL         MySQLDefaults       `yaml:"mysql_defaults"`
	Retention     RetentionConfig     `yaml:"retention"`
	Timeouts      TimeoutsConfig      `yaml:"timeouts"`
	Mirror        MirrorConfig        `yaml:"mirror"`
	Schedule      ScheduleConfig      `yaml:"schedule"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Logging       LoggingConfig       `yaml:"logging"`
	Vault         VaultConfig         `yaml:"vault"`
	Logs          LogSourcesConfig    `yaml:"logs"`
	Storage       StorageThresholds   `yaml:"storage_thresholds"`

	Projects  []Project  `yaml:"-"`
	Databases []Database `yaml:"-"`
}

type projectsDocument struct {
	Projects []Project `yaml:"projects"`
}

type databasesDocument struct {
	Databases []Database `yaml:"databases"`
}

// Default returns a configuration with every default applied. Load
// decodes settings.yaml on top of it, so any field the file omits
// keeps its default.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Backup: BackupConfig{
			LocalBase:     filepath.Join(homeDir, "backups", "quartermaster"),
			Compression:   "gzip",
			Checksum:      "sha256",
			Parallelism:   4,
			MinDatabaseMB: 1024,
		},
		MySQL: MySQLDefaults{
			Host: "localhost",
			Port: 3306,
			User: "root",
		},
		Retention: RetentionConfig{
			ProjectDays:       30,
			DatabaseDays:      14,
			GitDays:           30,
			PreserveTagged:    true,
			ImportantTags:     []string{"production", "release", "stable", "live", "deployed"},
			KeepUncategorized: 3,
			Tiers:             DefaultTiers(),
		},
		Timeouts: TimeoutsConfig{
			MySQLDump:    3600,
			MySQLRestore: 7200,
			GitBundle:    1800,
			GitClone:     1800,
			Verify:       300,
		},
		Schedule: ScheduleConfig{
			OverdueAfter: Duration(24 * hour),
			Timezone:     "UTC",
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Desktop: true,
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
			Compress:   true,
		},
		Logs: LogSourcesConfig{
			MaxLines: 50000,
		},
		Storage: StorageThresholds{
			DiskUsageCriticalPercent: 80,
			DedupSavingsMB:           500,
			MaxBackupCountWarning:    50,
			HighDuplicationRatio:     0.3,
		},
	}
}

// Load loads configuration from the directory named by
// QUARTERMASTER_CONFIG. There is no fallback: if the variable is unset
// this fails.
func Load() (*Config, error) {
	directory := os.Getenv(EnvironmentVariable)
	if directory == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to your configuration directory, or use --config flag", EnvironmentVariable)
	}
	return LoadDir(directory)
}

// LoadDir loads settings.yaml, projects.yaml, and databases.yaml from
// directory. Only settings.yaml is required.
func LoadDir(directory string) (*Config, error) {
	absolute, err := filepath.Abs(directory)
	if err != nil {
		return nil, fmt.Errorf("resolving config directory: %w", err)
	}

	cfg := Default()
	cfg.Dir = absolute

	if err := decodeFile(cfg.SettingsPath(), cfg, true); err != nil {
		return nil, err
	}

	var projects projectsDocument
	if err := decodeFile(cfg.ProjectsPath(), &projects, false); err != nil {
		return nil, err
	}
	cfg.Projects = projects.Projects

	var databases databasesDocument
	if err := decodeFile(cfg.DatabasesPath(), &databases, false); err != nil {
		return nil, err
	}
	cfg.Databases = databases.Databases

	if cfg.Vault.KeyFile == "" {
		cfg.Vault.KeyFile = filepath.Join(absolute, ".vault_key")
	}
	cfg.applyMySQLDefaults()
	cfg.expandVariables()

	return cfg, nil
}

func decodeFile(path string, target any, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// SettingsPath returns the path of settings.yaml.
func (c *Config) SettingsPath() string { return filepath.Join(c.Dir, SettingsFile) }

// ProjectsPath returns the path of projects.yaml.
func (c *Config) ProjectsPath() string { return filepath.Join(c.Dir, ProjectsFile) }

// DatabasesPath returns the path of databases.yaml.
func (c *Config) DatabasesPath() string { return filepath.Join(c.Dir, DatabasesFile) }

// Project returns the project called name.
func (c *Config) Project(name string) (Project, bool) {
	for _, project := range c.Projects {
		if project.Name == name {
			return project, true
		}
	}
	return Project{}, false
}

// Database returns the database called name.
func (c *Config) Database(name string) (Database, bool) {
	for _, database := range c.Databases {
		if database.Name == name {
			return database, true
		}
	}
	return Database{}, false
}

// EnabledProjects returns the projects with enabled set, in file order.
func (c *Config) EnabledProjects() []Project {
	var enabled []Project
	for _, project := range c.Projects {
		if project.Enabled {
			enabled = append(enabled, project)
		}
	}
	return enabled
}

// EnabledDatabases returns the databases with enabled set, in file order.
func (c *Config) EnabledDatabases() []Database {
	var enabled []Database
	for _, database := range c.Databases {
		if database.Enabled {
			enabled = append(enabled, database)
		}
	}
	return enabled
}

// applyMySQLDefaults fills connection fields that a MySQL database
// entry leaves empty from the mysql_defaults section.
func (c *Config) applyMySQLDefaults() {
	for index := range c.Databases {
		database := &c.Databases[index]
		if database.Engine != EngineMySQL {
			continue
		}
		if database.Host == "" {
			database.Host = c.MySQL.Host
		}
		if database.Port == 0 {
			database.Port = c.MySQL.Port
		}
		if database.User == "" {
			database.User = c.MySQL.User
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME":               os.Getenv("HOME"),
		"QUARTERMASTER_BASE": "",
	}

	c.Backup.LocalBase = expandVars(c.Backup.LocalBase, vars)
	vars["QUARTERMASTER_BASE"] = c.Backup.LocalBase

	c.Backup.SyncDir = expandVars(c.Backup.SyncDir, vars)
	c.Vault.KeyFile = expandVars(c.Vault.KeyFile, vars)
	for index := range c.Projects {
		c.Projects[index].Path = expandVars(c.Projects[index].Path, vars)
	}
	for index := range c.Databases {
		c.Databases[index].Path = expandVars(c.Databases[index].Path, vars)
	}
	for index := range c.Mirror.Targets {
		target := &c.Mirror.Targets[index]
		target.Path = expandVars(target.Path, vars)
		target.KeyFile = expandVars(target.KeyFile, vars)
		target.KnownHosts = expandVars(target.KnownHosts, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns. Provided vars
// win over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}
