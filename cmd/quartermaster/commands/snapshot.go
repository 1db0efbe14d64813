// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/quartermaster-backup/quartermaster/cmd/quartermaster/cli"
	"github.com/quartermaster-backup/quartermaster/lib/engine"
)

type snapshotParams struct {
	configParams
	cli.JSONOutput
	Message string `json:"message" flag:"message,m" desc:"savepoint commit message"`
}

func snapshotCommand() *cli.Command {
	var params snapshotParams
	return &cli.Command{
		Name:    "snapshot",
		Summary: "Commit a git savepoint and back up a project with its databases",
		Usage:   "quartermaster snapshot <project> [flags]",
		Description: `Snapshot takes a quick, complete restore point of one project:

  1. commits all changes as a git savepoint (when the project is a repository)
  2. archives the project, ignoring skip_if_exists_today
  3. dumps every database the project lists

Steps run in order and continue past failures.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("snapshot", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, 1, "quartermaster snapshot <project>"); err != nil {
				return err
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.Engine.QuickSnapshot(ctx, args[0], params.Message)
			if len(report.Steps) == 0 {
				return err
			}
			if report.Status != engine.StatusSuccess {
				err = errors.Join(err, &cli.ExitError{Code: cli.ExitFailure})
			}
			if done, jsonErr := params.EmitJSON(report); done {
				return errors.Join(jsonErr, failed(err))
			}

			table := cli.NewTable("STEP", "STATUS", "DETAIL")
			for _, step := range report.Steps {
				detail := step.Message
				if step.Error != "" {
					detail = step.Error
				}
				table.Row(step.Name, cli.DefaultTheme.Status(string(step.Status)), detail)
			}
			if flushErr := table.Flush(); flushErr != nil {
				return flushErr
			}
			fmt.Fprintf(cli.Stdout, "%s: %s (%d/%d steps)\n", report.Project,
				cli.DefaultTheme.Status(string(report.Status)), report.Succeeded(), len(report.Steps))
			return failed(err)
		},
	}
}
