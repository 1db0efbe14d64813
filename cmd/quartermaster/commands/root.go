// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/quartermaster-backup/quartermaster/cmd/quartermaster/cli"
	"github.com/quartermaster-backup/quartermaster/lib/config"
	"github.com/quartermaster-backup/quartermaster/lib/engine"
	"github.com/quartermaster-backup/quartermaster/lib/service"
)

// Root returns the top-level command.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "quartermaster",
		Summary: "Back up projects, databases, and git repositories",
		Description: `Quartermaster builds verified, checksummed archives of configured
projects and databases, enforces retention, and mirrors the archive
tree to other machines.

Configuration is read from the directory named by --config or the
QUARTERMASTER_CONFIG environment variable.`,
		Subcommands: []*cli.Command{
			backupCommand(),
			restoreCommand(),
			verifyCommand(),
			listCommand(),
			contentsCommand(),
			previewCommand(),
			tagCommand(),
			taggedCommand(),
			backfillCommand(),
			snapshotCommand(),
			retentionCommand(),
			mirrorCommand(),
			vaultCommand(),
			scheduleCommand(),
			runDueCommand(),
			statusCommand(),
			usageCommand(),
			storageCommand(),
			logsCommand(),
			versionCommand(),
		},
		Examples: []cli.Example{
			{Description: "Back up one project now", Command: "quartermaster backup project website --force"},
			{Description: "Run whatever the schedule says is due", Command: "quartermaster run-due"},
			{Description: "Restore the latest database dump", Command: "quartermaster restore database shop"},
		},
	}
}

// configParams is embedded by every command that needs configuration.
type configParams struct {
	ConfigDir string `json:"-" flag:"config" desc:"configuration directory (default $QUARTERMASTER_CONFIG)"`
}

func (p configParams) open() (*service.Service, error) {
	return service.Open(service.Options{ConfigDir: p.ConfigDir, Stderr: cli.Stderr})
}

// load reads the configuration without building any components, for
// commands that must work before a vault key exists.
func (p configParams) load() (*config.Config, error) {
	if p.ConfigDir != "" {
		return config.LoadDir(p.ConfigDir)
	}
	return config.Load()
}

// printResults writes a table of backup results.
func printResults(results []engine.Result) error {
	table := cli.NewTable("KIND", "ITEM", "STATUS", "TYPE", "SIZE", "DURATION", "DETAIL")
	for _, result := range results {
		detail := result.Message
		if result.Error != "" {
			detail = result.Error
		}
		size := "-"
		if result.Size > 0 {
			size = humanize.IBytes(uint64(result.Size))
		}
		table.Row(result.Kind, result.Item, cli.DefaultTheme.Status(string(result.Status)),
			orDash(string(result.BackupType)), size, result.Duration.Round(10*time.Millisecond), detail)
	}
	return table.Flush()
}

// failed converts an operation error whose details were already
// printed into a bare exit status.
func failed(err error) error {
	if err == nil {
		return nil
	}
	var usage *cli.UsageError
	if errors.As(err, &usage) {
		return err
	}
	return &cli.ExitError{Code: cli.ExitFailure}
}

func orDash(text string) string {
	if text == "" {
		return "-"
	}
	return text
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04") + " (" + humanize.Time(t) + ")"
}
