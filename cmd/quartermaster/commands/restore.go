// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/quartermaster-backup/quartermaster/cmd/quartermaster/cli"
	"github.com/quartermaster-backup/quartermaster/lib/engine"
)

func restoreCommand() *cli.Command {
	return &cli.Command{
		Name:    "restore",
		Summary: "Restore from archives",
		Description: `Restore a project, database, or git repository from an archive.

Without --file the latest archive is used. Incremental archives are
applied on top of their full base. An existing project directory is
moved aside to <path>_backup_<timestamp> before extraction.`,
		Subcommands: []*cli.Command{
			restoreProjectCommand(),
			restoreDatabaseCommand(),
			restoreGitCommand(),
			restoreFilesCommand(),
		},
	}
}

type restoreParams struct {
	configParams
	cli.JSONOutput
	File   string `json:"file" flag:"file" desc:"archive file name (default: latest)"`
	Target string `json:"target" flag:"target" desc:"restore into this directory instead of the configured path"`
}

func restoreProjectCommand() *cli.Command {
	var params restoreParams
	return &cli.Command{
		Name:    "project",
		Summary: "Restore a project directory",
		Usage:   "quartermaster restore project <name> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("project", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, 1, "quartermaster restore project <name>"); err != nil {
				return err
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()
			result, err := s.Engine.RestoreProject(ctx, args[0], params.File, params.Target)
			if err != nil {
				return err
			}
			return printRestore(&params.JSONOutput, result)
		},
	}
}

type restoreDatabaseParams struct {
	configParams
	cli.JSONOutput
	File string `json:"file" flag:"file" desc:"dump file name (default: latest)"`
}

func restoreDatabaseCommand() *cli.Command {
	var params restoreDatabaseParams
	return &cli.Command{
		Name:    "database",
		Summary: "Load a dump into its database",
		Usage:   "quartermaster restore database <name> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("database", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, 1, "quartermaster restore database <name>"); err != nil {
				return err
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()
			result, err := s.Engine.RestoreDatabase(ctx, args[0], params.File)
			if err != nil {
				return err
			}
			return printRestore(&params.JSONOutput, result)
		},
	}
}

type restoreGitParams struct {
	restoreParams
	Mode string `json:"mode" flag:"mode" desc:"clone into a fresh directory or fetch into an existing repository" default:"clone"`
}

func restoreGitCommand() *cli.Command {
	var params restoreGitParams
	return &cli.Command{
		Name:    "git",
		Summary: "Clone or fetch from a git bundle",
		Usage:   "quartermaster restore git <name> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("git", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, 1, "quartermaster restore git <name>"); err != nil {
				return err
			}
			mode := engine.GitRestoreMode(params.Mode)
			if mode != engine.GitClone && mode != engine.GitFetch {
				return cli.Validation("--mode must be %s or %s", engine.GitClone, engine.GitFetch)
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()
			result, err := s.Engine.RestoreGit(ctx, args[0], params.File, params.Target, mode)
			if err != nil {
				return err
			}
			return printRestore(&params.JSONOutput, result)
		},
	}
}

func restoreFilesCommand() *cli.Command {
	var params restoreParams
	return &cli.Command{
		Name:    "files",
		Summary: "Extract selected paths from a project archive",
		Usage:   "quartermaster restore files <name> <path>... --target DIR [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("files", &params) },
		Examples: []cli.Example{
			{Description: "Recover one config file", Command: "quartermaster restore files website config/app.yaml --target /tmp/recovered"},
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 2, -1, "quartermaster restore files <name> <path>..."); err != nil {
				return err
			}
			if params.Target == "" {
				return cli.Validation("--target is required")
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()
			result, err := s.Engine.RestoreFiles(ctx, args[0], params.File, args[1:], params.Target)
			if err != nil {
				return err
			}
			return printRestore(&params.JSONOutput, result)
		},
	}
}

func printRestore(output *cli.JSONOutput, result engine.RestoreResult) error {
	if done, err := output.EmitJSON(result); done {
		return err
	}
	for _, backup := range result.Backups {
		fmt.Fprintf(cli.Stdout, "applied %s\n", backup)
	}
	if result.MovedTo != "" {
		fmt.Fprintf(cli.Stdout, "previous contents moved to %s\n", result.MovedTo)
	}
	for _, skipped := range result.Skipped {
		fmt.Fprintf(cli.Stdout, "%s %s\n", cli.DefaultTheme.Status("skipped"), skipped)
	}
	fmt.Fprintf(cli.Stdout, "restored %d entries to %s\n", result.Files, result.Target)
	return nil
}
