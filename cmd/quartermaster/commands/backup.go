// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"

	"github.com/spf13/pflag"

	"github.com/quartermaster-backup/quartermaster/cmd/quartermaster/cli"
	"github.com/quartermaster-backup/quartermaster/lib/engine"
	"github.com/quartermaster-backup/quartermaster/lib/service"
)

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:    "backup",
		Summary: "Build new archives",
		Subcommands: []*cli.Command{
			backupProjectCommand(),
			backupItemCommand("database", "Dump one database", func(ctx context.Context, s *service.Service, name string) (engine.Result, error) {
				return s.Engine.BackupDatabase(ctx, name)
			}),
			backupItemCommand("git", "Bundle one project's git repository", func(ctx context.Context, s *service.Service, name string) (engine.Result, error) {
				return s.Engine.BackupGit(ctx, name)
			}),
			backupAllCommand(),
		},
	}
}

type backupProjectParams struct {
	configParams
	cli.JSONOutput
	Incremental bool `json:"incremental" flag:"incremental,i" desc:"archive only files changed since the last full backup"`
	Complete    bool `json:"complete" flag:"complete" desc:"also rebuild the complete archive including hidden paths"`
	Force       bool `json:"force" flag:"force,f" desc:"back up even if an archive from today exists"`
}

func backupProjectCommand() *cli.Command {
	var params backupProjectParams
	return &cli.Command{
		Name:    "project",
		Summary: "Archive one project",
		Usage:   "quartermaster backup project <name> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("project", &params) },
		Examples: []cli.Example{
			{Description: "Incremental archive of website", Command: "quartermaster backup project website --incremental"},
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, 1, "quartermaster backup project <name>"); err != nil {
				return err
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()

			result, err := s.Engine.BackupProject(ctx, args[0], engine.ProjectOptions{
				Incremental: params.Incremental,
				Complete:    params.Complete,
				Force:       params.Force,
			})
			return emitResult(&params.JSONOutput, result, err)
		},
	}
}

type backupItemParams struct {
	configParams
	cli.JSONOutput
}

func backupItemCommand(name, summary string, run func(context.Context, *service.Service, string) (engine.Result, error)) *cli.Command {
	var params backupItemParams
	return &cli.Command{
		Name:    name,
		Summary: summary,
		Usage:   "quartermaster backup " + name + " <name> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams(name, &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, 1, "quartermaster backup "+name+" <name>"); err != nil {
				return err
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()
			result, err := run(ctx, s, args[0])
			return emitResult(&params.JSONOutput, result, err)
		},
	}
}

// emitResult prints one backup result. Errors that produced no result,
// such as an unknown item name, are returned as they are.
func emitResult(output *cli.JSONOutput, result engine.Result, err error) error {
	if result.Status == "" {
		return err
	}
	if done, jsonErr := output.EmitJSON(result); done {
		return errors.Join(jsonErr, failed(err))
	}
	if printErr := printResults([]engine.Result{result}); printErr != nil {
		return printErr
	}
	return failed(err)
}

type backupAllParams struct {
	configParams
	cli.JSONOutput
	Kinds []string `json:"kinds" flag:"kind" desc:"restrict to projects, databases, or git (repeatable)" default:"projects,databases,git"`
}

func backupAllCommand() *cli.Command {
	var params backupAllParams
	return &cli.Command{
		Name:    "all",
		Summary: "Back up every enabled item",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("all", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, 0, "quartermaster backup all [--kind K]"); err != nil {
				return err
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()

			var results []engine.Result
			var errs []error
			for _, kind := range params.Kinds {
				var batch []engine.Result
				var batchErr error
				switch kind {
				case "projects", "project":
					batch, batchErr = s.Engine.BackupAllProjects(ctx)
				case "databases", "database":
					batch, batchErr = s.Engine.BackupAllDatabases(ctx)
				case "git":
					batch, batchErr = s.Engine.BackupAllGit(ctx)
				default:
					return cli.Validation("unknown kind %q (want projects, databases, or git)", kind)
				}
				results = append(results, batch...)
				errs = append(errs, batchErr)
			}
			err = errors.Join(errs...)

			if done, jsonErr := params.EmitJSON(results); done {
				return errors.Join(jsonErr, failed(err))
			}
			if printErr := printResults(results); printErr != nil {
				return printErr
			}
			return failed(err)
		},
	}
}
