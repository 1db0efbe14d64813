// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// BackupConfig is the backup section of settings.yaml.
type BackupConfig struct {
	// LocalBase is the root of the archive tree
	// (projects/, databases/, git/, logs/).
	LocalBase string `yaml:"local_base"`

	// SyncDir, when set, is a second directory that receives a copy of
	// every retained archive. It is mirrored like a local target and
	// retention runs there too.
	SyncDir string `yaml:"sync_dir"`

	// Compression is gzip, zstd, or lz4.
	Compression string `yaml:"compression"`

	// CompressionLevel is passed to the compressor. Zero selects the
	// compressor's default.
	CompressionLevel int `yaml:"compression_level"`

	// Checksum is the sidecar digest algorithm: sha256 or blake3.
	Checksum string `yaml:"checksum"`

	// Parallelism bounds concurrent item backups and mirror targets.
	Parallelism int `yaml:"parallelism"`

	// GlobalExclude is added to every project's exclude list.
	GlobalExclude []string `yaml:"global_exclude"`

	SkipIfExistsToday bool `yaml:"skip_if_exists_today"`
	VerifyAfterBackup bool `yaml:"verify_after_backup"`

	// CompareContent makes incremental builds compare BLAKE3
	// fingerprints in addition to mtime and size.
	CompareContent bool `yaml:"compare_content"`

	// MinFreeMB is headroom required on top of the estimated archive
	// size before a build starts.
	MinFreeMB int64 `yaml:"min_free_mb"`

	// MinDatabaseMB is the floor for a database dump's space estimate.
	MinDatabaseMB int64 `yaml:"min_database_mb"`
}

// MySQLDefaults supplies connection fields that a MySQL database entry
// leaves empty.
type MySQLDefaults struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`
}

// RetentionConfig is the retention section of settings.yaml.
type RetentionConfig struct {
	ProjectDays  int `yaml:"project_days"`
	DatabaseDays int `yaml:"database_days"`
	GitDays      int `yaml:"git_days"`

	// PreserveTagged keeps any backup carrying one of ImportantTags.
	PreserveTagged bool     `yaml:"preserve_tagged"`
	ImportantTags  []string `yaml:"important_tags"`

	// KeepUncategorized is how many of the newest backups outside
	// every tier survive tiered retention.
	KeepUncategorized int `yaml:"keep_uncategorized"`

	Tiers TiersConfig `yaml:"tiers"`
}

// TiersConfig configures tiered retention. When Enabled is false the
// age-based policy applies.
type TiersConfig struct {
	Enabled bool `yaml:"enabled"`
	Hourly  Tier `yaml:"hourly"`
	Daily   Tier `yaml:"daily"`
	Weekly  Tier `yaml:"weekly"`
	Monthly Tier `yaml:"monthly"`
	Yearly  Tier `yaml:"yearly"`
}

// Tier keeps up to Keep backups, one per bucket, no older than MaxAge.
type Tier struct {
	Keep   int      `yaml:"keep"`
	MaxAge Duration `yaml:"max_age"`
}

// DefaultTiers returns the default tier set (not enabled).
func DefaultTiers() TiersConfig {
	return TiersConfig{
		Hourly:  Tier{Keep: 24, MaxAge: Duration(24 * hour)},
		Daily:   Tier{Keep: 7, MaxAge: Duration(7 * day)},
		Weekly:  Tier{Keep: 4, MaxAge: Duration(28 * day)},
		Monthly: Tier{Keep: 12, MaxAge: Duration(360 * day)},
		Yearly:  Tier{Keep: 5, MaxAge: Duration(1825 * day)},
	}
}

// TimeoutsConfig holds external command timeouts in seconds.
type TimeoutsConfig struct {
	MySQLDump    int `yaml:"mysqldump"`
	MySQLRestore int `yaml:"mysql_restore"`
	GitBundle    int `yaml:"git_bundle"`
	GitClone     int `yaml:"git_clone"`
	Verify       int `yaml:"verify"`
}

// Seconds converts a timeout field to a duration.
func Seconds(value int) time.Duration { return time.Duration(value) * time.Second }

// Mirror target kinds.
const (
	MirrorLocal = "local"
	MirrorSFTP  = "sftp"
	MirrorS3    = "s3"
)

// MirrorConfig is the mirror section of settings.yaml.
type MirrorConfig struct {
	Targets []MirrorTarget `yaml:"targets"`

	// Prune removes target archives that no longer exist locally.
	Prune bool `yaml:"prune"`
}

// MirrorTarget describes one replication destination. Which fields
// apply depends on Kind.
type MirrorTarget struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	// Path is the root directory for local and sftp targets.
	Path string `yaml:"path,omitempty"`

	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	User       string `yaml:"user,omitempty"`
	KeyFile    string `yaml:"key_file,omitempty"`
	KnownHosts string `yaml:"known_hosts,omitempty"`

	Bucket    string `yaml:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	PathStyle bool   `yaml:"path_style,omitempty"`

	// AccessKeyID and SecretAccessKey are static S3 credentials. The
	// secret may be vault-sealed. When both are empty the default AWS
	// credential chain applies.
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
}

// Job kinds.
const (
	JobProjects  = "projects"
	JobDatabases = "databases"
	JobGit       = "git"
	JobRetention = "retention"
	JobMirror    = "mirror"
	JobVerify    = "verify"
)

// JobKinds lists every valid job kind.
var JobKinds = []string{JobProjects, JobDatabases, JobGit, JobRetention, JobMirror, JobVerify}

// ScheduleConfig is the schedule section of settings.yaml.
type ScheduleConfig struct {
	Jobs []Job `yaml:"jobs"`

	// OverdueAfter flags a job kind whose last successful run is older.
	OverdueAfter Duration `yaml:"overdue_after"`

	// Timezone is the IANA zone cron expressions are evaluated in.
	Timezone string `yaml:"timezone"`
}

// Location resolves Timezone. Empty means UTC.
func (s ScheduleConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	location, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone: %w", err)
	}
	return location, nil
}

// Job is one scheduled unit of work.
type Job struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Cron    string `yaml:"cron"`
	Enabled bool   `yaml:"enabled"`
}

// UnmarshalYAML decodes a job with Enabled defaulting to true.
func (j *Job) UnmarshalYAML(node *yaml.Node) error {
	type plain Job
	value := plain{Enabled: true}
	if err := node.Decode(&value); err != nil {
		return err
	}
	*j = Job(value)
	return nil
}

// NotificationsConfig is the notifications section of settings.yaml.
type NotificationsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Desktop sends notify-send messages in addition to log records.
	Desktop bool `yaml:"desktop"`
}

// MetricsConfig is the metrics section of settings.yaml.
type MetricsConfig struct {
	// Listen is the daemon's /metrics and /healthz address. Empty
	// disables the listener.
	Listen string `yaml:"listen"`
}

// LoggingConfig controls the rotating file log under
// <local_base>/logs.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

// VaultConfig is the vault section of settings.yaml.
type VaultConfig struct {
	// KeyFile holds the age identity. Default: <config dir>/.vault_key.
	KeyFile string `yaml:"key_file"`
}

// LogSourcesConfig is the logs section of settings.yaml: where the
// logs commands look for web server and PHP error logs.
type LogSourcesConfig struct {
	// Apache lists error log paths or globs. Empty uses the common
	// Debian, Red Hat, and XAMPP locations.
	Apache []string `yaml:"apache"`

	// PHP lists system PHP error log paths or globs. Empty uses the
	// common locations.
	PHP []string `yaml:"php"`

	// MaxLines caps how many trailing lines a full read parses.
	MaxLines int `yaml:"max_lines"`
}

// StorageThresholds is the storage_thresholds section of
// settings.yaml. It drives the recommendations of the storage report.
type StorageThresholds struct {
	DiskUsageCriticalPercent float64 `yaml:"disk_usage_critical_percent"`
	DedupSavingsMB           int     `yaml:"dedup_savings_threshold_mb"`
	MaxBackupCountWarning    int     `yaml:"max_backup_count_warning"`
	HighDuplicationRatio     float64 `yaml:"high_duplication_ratio"`
}
