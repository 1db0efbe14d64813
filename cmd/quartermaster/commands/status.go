// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/quartermaster-backup/quartermaster/cmd/quartermaster/cli"
	"github.com/quartermaster-backup/quartermaster/lib/engine"
	"github.com/quartermaster-backup/quartermaster/lib/scheduler"
	"github.com/quartermaster-backup/quartermaster/lib/version"
)

type statusParams struct {
	configParams
	cli.JSONOutput
}

type statusReport struct {
	Items       []engine.ItemStatus `json:"items"`
	OverdueJobs []string            `json:"overdue_jobs"`
}

func statusCommand() *cli.Command {
	var params statusParams
	return &cli.Command{
		Name:    "status",
		Summary: "Show the backup state of every project and database",
		Usage:   "quartermaster status [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("status", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, 0, "quartermaster status"); err != nil {
				return err
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()

			var report statusReport
			report.Items, err = s.Engine.Status(ctx)
			if jobs, jobsErr := s.Jobs(); len(jobs) > 0 {
				state, stateErr := scheduler.LoadState(s.Catalog.Layout.StatePath())
				if stateErr == nil {
					report.OverdueJobs = scheduler.Overdue(jobs, state, s.Clock.Now(), s.Config.Schedule.OverdueAfter.Std())
				}
				err = errors.Join(err, jobsErr, stateErr)
			} else {
				err = errors.Join(err, jobsErr)
			}

			if done, jsonErr := params.EmitJSON(report); done {
				return errors.Join(jsonErr, err)
			}
			theme := cli.DefaultTheme
			table := cli.NewTable("KIND", "ITEM", "STATE", "LATEST", "ARCHIVES", "SIZE", "GIT")
			for _, item := range report.Items {
				state := "ok"
				switch {
				case !item.Enabled:
					state = "disabled"
				case item.Latest.IsZero():
					state = "missing"
				case item.Overdue:
					state = "overdue"
				}
				git := "-"
				if item.Git != nil {
					git = item.Git.Branch
					if item.Git.Dirty {
						git += fmt.Sprintf(" (%d changes)", item.Git.Changes)
					}
				}
				table.Row(item.Kind, item.Item, theme.Status(state), formatTime(item.Latest),
					item.Count, humanize.IBytes(uint64(item.Bytes)), git)
			}
			if flushErr := table.Flush(); flushErr != nil {
				return flushErr
			}
			if len(report.OverdueJobs) > 0 {
				fmt.Fprintf(cli.Stdout, "\n%s %v\n", theme.Status("overdue"), report.OverdueJobs)
			}
			return err
		},
	}
}

type usageParams struct {
	configParams
	cli.JSONOutput
}

func usageCommand() *cli.Command {
	var params usageParams
	return &cli.Command{
		Name:    "usage",
		Aliases: []string{"du"},
		Summary: "Show disk usage of the archive tree",
		Usage:   "quartermaster usage [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("usage", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, 0, "quartermaster usage"); err != nil {
				return err
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()

			usage, err := s.Catalog.Usage()
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(usage); done {
				return err
			}
			table := cli.NewTable("KIND", "ITEM", "ARCHIVES", "SIZE", "OLDEST", "NEWEST")
			for _, item := range usage.Items {
				table.Row(item.Kind, item.Item, item.Count, item.HumanSize(),
					humanize.Time(item.Oldest), humanize.Time(item.Newest))
			}
			if err := table.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cli.Stdout, "\n%d archives, %s", usage.Count, usage.HumanSize())
			if disk := usage.Disk; disk != nil {
				fmt.Fprintf(cli.Stdout, " (disk %.0f%% used, %s available)",
					disk.UsedPercent(), humanize.IBytes(disk.Available))
			}
			fmt.Fprintln(cli.Stdout)
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(ctx context.Context, args []string) error {
			fmt.Fprintln(cli.Stdout, "quartermaster", version.Full())
			return nil
		},
	}
}
