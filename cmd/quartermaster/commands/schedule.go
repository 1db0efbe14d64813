// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/pflag"

	"github.com/quartermaster-backup/quartermaster/cmd/quartermaster/cli"
	"github.com/quartermaster-backup/quartermaster/lib/cron"
	"github.com/quartermaster-backup/quartermaster/lib/scheduler"
	"github.com/quartermaster-backup/quartermaster/lib/service"
)

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:    "schedule",
		Summary: "Inspect scheduled jobs and cron expressions",
		Subcommands: []*cli.Command{
			scheduleListCommand(),
			scheduleDueCommand(),
			scheduleHistoryCommand(),
			scheduleDescribeCommand(),
			scheduleTemplatesCommand(),
		},
	}
}

type jobEntry struct {
	Name        string    `json:"name"`
	Kind        string    `json:"kind"`
	Schedule    string    `json:"schedule"`
	Description string    `json:"description"`
	Enabled     bool      `json:"enabled"`
	LastRun     time.Time `json:"last_run,omitzero"`
	NextRun     time.Time `json:"next_run,omitzero"`
	Due         bool      `json:"due"`
}

// jobEntries describes jobs against the persisted last-run state.
func jobEntries(s *service.Service) ([]jobEntry, error) {
	jobs, jobsErr := s.Jobs()
	state, err := scheduler.LoadState(s.Catalog.Layout.StatePath())
	if err != nil {
		return nil, errors.Join(jobsErr, err)
	}
	now := s.Clock.Now()
	entries := make([]jobEntry, 0, len(jobs))
	for _, job := range jobs {
		entry := jobEntry{
			Name:        job.Name,
			Kind:        job.Kind,
			Schedule:    job.Schedule.String(),
			Description: cron.Describe(job.Schedule.String()),
			Enabled:     job.Enabled,
			LastRun:     state.LastRun(job.Name),
		}
		if job.Enabled {
			entry.Due = job.Schedule.Due(entry.LastRun, now)
			if entry.LastRun.IsZero() {
				entry.NextRun = now
			} else if next, err := job.Schedule.Next(entry.LastRun); err == nil {
				entry.NextRun = next
			}
		}
		entries = append(entries, entry)
	}
	return entries, jobsErr
}

type scheduleListParams struct {
	configParams
	cli.JSONOutput
}

func scheduleListCommand() *cli.Command {
	var params scheduleListParams
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Summary: "List jobs with their last and next run",
		Usage:   "quartermaster schedule list [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("list", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, 0, "quartermaster schedule list"); err != nil {
				return err
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()

			entries, err := jobEntries(s)
			if done, jsonErr := params.EmitJSON(entries); done {
				return errors.Join(jsonErr, err)
			}
			if len(entries) == 0 && err == nil {
				fmt.Fprintln(cli.Stdout, "no jobs configured")
				return nil
			}
			table := cli.NewTable("JOB", "KIND", "SCHEDULE", "LAST RUN", "NEXT RUN", "")
			for _, entry := range entries {
				next, flag := "-", ""
				switch {
				case !entry.Enabled:
					flag = cli.DefaultTheme.Dim("disabled")
				case entry.Due:
					next, flag = "now", cli.DefaultTheme.Status("due")
				case !entry.NextRun.IsZero():
					next = entry.NextRun.Local().Format("2006-01-02 15:04")
				}
				table.Row(entry.Name, entry.Kind, entry.Description, formatTime(entry.LastRun), next, flag)
			}
			return errors.Join(table.Flush(), err)
		},
	}
}

func scheduleDueCommand() *cli.Command {
	var params scheduleListParams
	return &cli.Command{
		Name:    "due",
		Summary: "List the jobs run-due would start now",
		Usage:   "quartermaster schedule due [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("due", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, 0, "quartermaster schedule due"); err != nil {
				return err
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()

			entries, err := jobEntries(s)
			due := slices.DeleteFunc(entries, func(entry jobEntry) bool { return !entry.Due })
			if done, jsonErr := params.EmitJSON(due); done {
				return errors.Join(jsonErr, err)
			}
			if len(due) == 0 {
				fmt.Fprintln(cli.Stdout, "nothing due")
			}
			for _, entry := range due {
				fmt.Fprintf(cli.Stdout, "%s (%s, last run %s)\n", entry.Name, entry.Kind, formatTime(entry.LastRun))
			}
			return err
		},
	}
}

type scheduleHistoryParams struct {
	configParams
	cli.JSONOutput
	Limit int `json:"limit" flag:"limit,n" desc:"number of tasks to show" default:"20"`
}

func scheduleHistoryCommand() *cli.Command {
	var params scheduleHistoryParams
	return &cli.Command{
		Name:    "history",
		Summary: "Show recently recorded tasks",
		Usage:   "quartermaster schedule history [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("history", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, 0, "quartermaster schedule history"); err != nil {
				return err
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()
			store, err := s.OpenHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(ctx, params.Limit)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(entries); done {
				return err
			}
			table := cli.NewTable("CREATED", "JOB", "KIND", "TARGET", "STATUS", "DURATION", "DETAIL")
			for _, entry := range entries {
				duration := "-"
				if !entry.Started.IsZero() && !entry.Completed.IsZero() {
					duration = entry.Completed.Sub(entry.Started).Round(time.Second).String()
				}
				detail := entry.Message
				if entry.Error != "" {
					detail = entry.Error
				}
				table.Row(entry.Created.Local().Format("2006-01-02 15:04"), orDash(entry.Job), entry.Kind,
					orDash(entry.Target), cli.DefaultTheme.Status(entry.Status), duration, detail)
			}
			return table.Flush()
		},
	}
}

func scheduleDescribeCommand() *cli.Command {
	var params cli.JSONOutput
	return &cli.Command{
		Name:    "describe",
		Summary: "Explain a cron expression and show its next runs",
		Usage:   "quartermaster schedule describe <expression>",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("describe", &params) },
		Examples: []cli.Example{
			{Description: "Check a twice-daily schedule", Command: `quartermaster schedule describe "0 2,14 * * *"`},
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, 1, "quartermaster schedule describe <expression>"); err != nil {
				return err
			}
			expression := args[0]
			if template, ok := cron.LookupTemplate(expression); ok {
				expression = template.Expression
			}
			schedule, err := cron.Parse(expression)
			if err != nil {
				return cli.Validation("%v", err)
			}
			var upcoming []time.Time
			at := time.Now()
			for range 5 {
				if at, err = schedule.Next(at); err != nil {
					break
				}
				upcoming = append(upcoming, at)
			}
			description := cron.Describe(expression)
			if done, err := params.EmitJSON(map[string]any{
				"expression":  expression,
				"description": description,
				"next":        upcoming,
			}); done {
				return err
			}
			fmt.Fprintf(cli.Stdout, "%s: %s\n", expression, description)
			for _, t := range upcoming {
				fmt.Fprintf(cli.Stdout, "  %s\n", t.Format("Mon 2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func scheduleTemplatesCommand() *cli.Command {
	var params cli.JSONOutput
	return &cli.Command{
		Name:    "templates",
		Summary: "List named schedule presets",
		Usage:   "quartermaster schedule templates",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("templates", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, 0, "quartermaster schedule templates"); err != nil {
				return err
			}
			if done, err := params.EmitJSON(cron.Templates); done {
				return err
			}
			table := cli.NewTable("NAME", "EXPRESSION", "DESCRIPTION")
			for _, template := range cron.Templates {
				table.Row(template.Name, template.Expression, template.Description)
			}
			return table.Flush()
		},
	}
}

type runDueParams struct {
	configParams
	cli.JSONOutput
	DryRun bool `json:"dry_run" flag:"dry-run,n" desc:"list the due jobs without running them"`
}

func runDueCommand() *cli.Command {
	var params runDueParams
	return &cli.Command{
		Name:    "run-due",
		Summary: "Run every job whose schedule says it is due",
		Usage:   "quartermaster run-due [flags]",
		Description: `Run-due is meant for a cron entry or systemd timer: it runs the due
jobs once, records them in the task history, and exits non-zero when
any task failed.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("run-due", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, 0, "quartermaster run-due"); err != nil {
				return err
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()
			store, err := s.OpenHistory()
			if err != nil {
				return err
			}
			defer store.Close()
			orchestrator, err := s.Orchestrator(store)
			if err != nil {
				return err
			}

			if params.DryRun {
				jobs, err := orchestrator.Due()
				if err != nil {
					return err
				}
				names := make([]string, 0, len(jobs))
				for _, job := range jobs {
					names = append(names, job.Name)
				}
				if done, err := params.EmitJSON(names); done {
					return err
				}
				if len(names) == 0 {
					fmt.Fprintln(cli.Stdout, "nothing due")
				}
				for _, name := range names {
					fmt.Fprintln(cli.Stdout, name)
				}
				return nil
			}

			tasks, err := orchestrator.RunDue(ctx)
			if done, jsonErr := params.EmitJSON(tasks); done {
				return errors.Join(jsonErr, failed(err))
			}
			if len(tasks) == 0 && err == nil {
				fmt.Fprintln(cli.Stdout, "nothing due")
				return nil
			}
			table := cli.NewTable("JOB", "KIND", "STATUS", "DURATION", "DETAIL")
			for _, task := range tasks {
				detail := task.Message
				if task.Error != "" {
					detail = task.Error
				}
				table.Row(task.Job, task.Kind, cli.DefaultTheme.Status(string(task.Status)),
					task.Completed.Sub(task.Started).Round(time.Second), detail)
			}
			if flushErr := table.Flush(); flushErr != nil {
				return flushErr
			}
			return failed(err)
		},
	}
}
