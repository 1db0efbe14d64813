// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/quartermaster-backup/quartermaster/cmd/quartermaster/cli"
	"github.com/quartermaster-backup/quartermaster/lib/atomicfile"
	"github.com/quartermaster-backup/quartermaster/lib/config"
	"github.com/quartermaster-backup/quartermaster/lib/logparse"
)

func logsCommand() *cli.Command {
	return &cli.Command{
		Name:    "logs",
		Summary: "Inspect Apache and PHP error logs",
		Description: `Reads the error logs of the web stack serving the backed-up projects.
Apache logs come from the logs.apache globs of settings.yaml, PHP logs
from logs.php, and every project tree is searched for PHP, framework,
and debug logs. Compressed rotations (.gz) are read transparently.`,
		Subcommands: []*cli.Command{
			logsSourcesCommand(),
			logsShowCommand(),
			logsStatsCommand(),
			logsTailCommand(),
			logsSummaryCommand(),
			logsExportCommand(),
			logsReportCommand(),
			logsClearCommand(),
		},
	}
}

// filterParams select entries from one log.
type filterParams struct {
	Format   string `json:"format" flag:"format" desc:"apache or php (default: detect)"`
	Severity string `json:"severity" flag:"severity" desc:"only entries of this severity"`
	Search   string `json:"search" flag:"search" desc:"only entries containing this text"`
	Traces   bool   `json:"traces" flag:"traces" desc:"attach PHP stack traces to their entries"`
}

func (p filterParams) read(ctx context.Context, path string, lines int) ([]logparse.Entry, error) {
	format, err := logparse.ParseFormat(p.Format)
	if err != nil {
		return nil, cli.Validation("%v", err)
	}
	return logparse.Read(ctx, path, format, logparse.ReadOptions{
		Lines:       lines,
		Severity:    p.Severity,
		Search:      p.Search,
		StackTraces: p.Traces,
	})
}

// discoveredLogs lists every PHP log known from configuration: the
// system PHP logs and the logs inside each project.
func discoveredLogs(cfg *config.Config) []string {
	locations := logparse.Discover(cfg.Logs, cfg.Projects)
	paths := locations.PHP
	for _, project := range locations.Projects {
		paths = append(paths, project.All()...)
	}
	return paths
}

type logsSourcesParams struct {
	configParams
	cli.JSONOutput
}

func logsSourcesCommand() *cli.Command {
	var params logsSourcesParams
	return &cli.Command{
		Name:    "sources",
		Summary: "List the logs found on this host and in each project",
		Usage:   "quartermaster logs sources [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("sources", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, 0, "quartermaster logs sources"); err != nil {
				return err
			}
			cfg, err := params.load()
			if err != nil {
				return err
			}
			locations := logparse.Discover(cfg.Logs, cfg.Projects)
			if done, err := params.EmitJSON(locations); done {
				return err
			}
			table := cli.NewTable("SOURCE", "KIND", "PATH")
			for _, path := range locations.Apache {
				table.Row("system", "apache", path)
			}
			for _, path := range locations.PHP {
				table.Row("system", "php", path)
			}
			for _, project := range locations.Projects {
				for _, group := range []struct {
					kind  string
					paths []string
				}{
					{"php", project.PHPErrors},
					{"framework", project.Framework},
					{"application", project.Application},
					{"debug", project.Debug},
				} {
					for _, path := range group.paths {
						table.Row(project.Project, group.kind, path)
					}
				}
			}
			return table.Flush()
		},
	}
}

type logsShowParams struct {
	filterParams
	cli.JSONOutput
	Lines int `json:"lines" flag:"lines,n" desc:"parse only the last N lines" default:"100"`
}

func logsShowCommand() *cli.Command {
	var params logsShowParams
	return &cli.Command{
		Name:    "show",
		Summary: "Show parsed entries from the end of a log",
		Usage:   "quartermaster logs show <path> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("show", &params) },
		Examples: []cli.Example{
			{Description: "Show recent fatal PHP errors", Command: "quartermaster logs show /var/log/php_errors.log --severity fatal"},
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, 1, "quartermaster logs show <path>"); err != nil {
				return err
			}
			entries, err := params.read(ctx, args[0], params.Lines)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(entries); done {
				return err
			}
			theme := cli.DefaultTheme
			for _, entry := range entries {
				fmt.Fprintf(cli.Stdout, "%s %s %s\n", theme.Dim(orDash(entry.Timestamp)),
					theme.Status(entry.Severity), entry.Message)
				if entry.File != "" {
					fmt.Fprintf(cli.Stdout, "    %s\n", theme.Dim(fmt.Sprintf("%s:%d", entry.File, entry.Line)))
				}
				if entry.Trace != nil {
					for _, frame := range entry.Trace.Frames {
						fmt.Fprintf(cli.Stdout, "    #%d %s\n", frame.Number, frame.Content)
					}
				}
			}
			return nil
		},
	}
}

type logsStatsParams struct {
	cli.JSONOutput
}

func logsStatsCommand() *cli.Command {
	var params logsStatsParams
	return &cli.Command{
		Name:    "stats",
		Summary: "Show size and error counts of logs",
		Usage:   "quartermaster logs stats <path>... [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("stats", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, -1, "quartermaster logs stats <path>..."); err != nil {
				return err
			}
			var all []logparse.Stats
			var errs []error
			for _, path := range args {
				stats, err := logparse.Stat(ctx, path)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				all = append(all, stats)
			}
			if done, err := params.EmitJSON(all); done {
				return errors.Join(append(errs, err)...)
			}
			table := cli.NewTable("PATH", "SIZE", "LINES", "ERRORS", "WARNINGS", "ACCESS", "MODIFIED")
			for _, stats := range all {
				if !stats.Exists {
					table.Row(stats.Path, "-", "-", "-", "-", cli.DefaultTheme.Status("missing"), "-")
					continue
				}
				table.Row(stats.Path, stats.HumanSize(), stats.Lines, stats.Errors, stats.Warnings,
					access(stats), humanize.Time(stats.Modified))
			}
			if err := table.Flush(); err != nil {
				return err
			}
			return errors.Join(errs...)
		},
	}
}

func access(stats logparse.Stats) string {
	switch {
	case stats.Readable && stats.Writable:
		return "rw"
	case stats.Readable:
		return "r"
	case stats.Writable:
		return "w"
	}
	return "none"
}

type logsTailParams struct {
	Lines  int  `json:"lines" flag:"lines,n" desc:"number of lines to print" default:"20"`
	Follow bool `json:"follow" flag:"follow,f" desc:"keep printing lines as they are appended"`
}

func logsTailCommand() *cli.Command {
	var params logsTailParams
	return &cli.Command{
		Name:    "tail",
		Summary: "Print the last lines of a log",
		Usage:   "quartermaster logs tail <path> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("tail", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, 1, "quartermaster logs tail <path>"); err != nil {
				return err
			}
			if params.Lines < 0 {
				return cli.Validation("--lines must not be negative")
			}
			if params.Lines > 0 {
				lines, err := logparse.ReadLines(ctx, args[0], params.Lines)
				if err != nil {
					return err
				}
				for _, line := range lines {
					fmt.Fprintln(cli.Stdout, line)
				}
			}
			if !params.Follow {
				return nil
			}
			return logparse.Follow(ctx, args[0], func(line string) error {
				_, err := fmt.Fprintln(cli.Stdout, line)
				return err
			})
		},
	}
}

// windowParams bound a summary to recent entries.
type windowParams struct {
	configParams
	Hours int `json:"hours" flag:"hours" desc:"only entries from the last N hours" default:"24"`
}

// summarize parses paths, or every discovered PHP log when none are
// given, and summarises entries newer than the window.
func (p windowParams) summarize(ctx context.Context, paths []string) (logparse.Report, error) {
	if p.Hours <= 0 {
		return logparse.Report{}, cli.Validation("--hours must be positive")
	}
	cfg, err := p.load()
	if err != nil {
		return logparse.Report{}, err
	}
	if len(paths) == 0 {
		paths = discoveredLogs(cfg)
	}
	now := time.Now()
	report := logparse.Report{Generated: now, Since: now.Add(-time.Duration(p.Hours) * time.Hour)}
	for _, path := range paths {
		source := logparse.SourceSummary{Path: path}
		entries, err := logparse.Read(ctx, path, logparse.FormatPHP, logparse.ReadOptions{Lines: cfg.Logs.MaxLines, Now: now})
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			source.Error = err.Error()
		} else {
			source.Summary = logparse.Summarize(entries, report.Since)
		}
		report.Sources = append(report.Sources, source)
	}
	return report, nil
}

type logsSummaryParams struct {
	windowParams
	cli.JSONOutput
}

func logsSummaryCommand() *cli.Command {
	var params logsSummaryParams
	return &cli.Command{
		Name:    "summary",
		Summary: "Count recent PHP errors per log",
		Usage:   "quartermaster logs summary [path...] [flags]",
		Description: `Summarises PHP error logs over a time window. Without paths, every
PHP log found by "logs sources" is summarised.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("summary", &params) },
		Run: func(ctx context.Context, args []string) error {
			report, err := params.summarize(ctx, args)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(report); done {
				return err
			}
			theme := cli.DefaultTheme
			table := cli.NewTable("LOG", "TOTAL", "FATAL", "ERRORS", "WARNINGS", "NOTICES", "DEPRECATED", "EXCEPTIONS")
			for _, source := range report.Sources {
				if source.Error != "" {
					table.Row(source.Path, theme.Status("failed"), "-", "-", "-", "-", "-", source.Error)
					continue
				}
				summary := source.Summary
				table.Row(source.Path, summary.Total, summary.Fatal, summary.Errors, summary.Warnings,
					summary.Notices, summary.Deprecated, summary.Exceptions)
			}
			if err := table.Flush(); err != nil {
				return err
			}
			for _, source := range report.Sources {
				if len(source.Summary.MostCommon) == 0 {
					continue
				}
				fmt.Fprintf(cli.Stdout, "\n%s\n", theme.Heading(source.Path))
				for _, common := range source.Summary.MostCommon {
					fmt.Fprintf(cli.Stdout, "  %5d  %s\n", common.Count, common.Message)
				}
			}
			return nil
		},
	}
}

// outputParams direct a rendered document to stdout or a file.
type outputParams struct {
	Output string `json:"output" flag:"output,o" desc:"write to this file instead of stdout"`
}

func (p outputParams) write(render func(io.Writer) error) error {
	if p.Output == "" {
		return render(cli.Stdout)
	}
	if err := atomicfile.WriteFrom(p.Output, 0o644, render); err != nil {
		return err
	}
	fmt.Fprintf(cli.Stderr, "wrote %s\n", p.Output)
	return nil
}

type logsExportParams struct {
	configParams
	filterParams
	outputParams
	To    string `json:"to" flag:"to" desc:"json, csv, or txt" default:"json"`
	Lines int    `json:"lines" flag:"lines,n" desc:"parse only the last N lines (default logs.max_lines)"`
}

func logsExportCommand() *cli.Command {
	var params logsExportParams
	return &cli.Command{
		Name:    "export",
		Summary: "Export parsed entries as JSON, CSV, or text",
		Usage:   "quartermaster logs export <path> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("export", &params) },
		Examples: []cli.Example{
			{Description: "Export errors to a spreadsheet", Command: "quartermaster logs export /var/log/apache2/error.log --severity error --to csv -o errors.csv"},
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, 1, "quartermaster logs export <path>"); err != nil {
				return err
			}
			switch params.To {
			case logparse.ExportJSON, logparse.ExportCSV, logparse.ExportText:
			default:
				return cli.Validation("--to must be json, csv, or txt")
			}
			lines := params.Lines
			if lines == 0 {
				cfg, err := params.load()
				if err != nil {
					return err
				}
				lines = cfg.Logs.MaxLines
			}
			entries, err := params.read(ctx, args[0], lines)
			if err != nil {
				return err
			}
			return params.write(func(w io.Writer) error {
				return logparse.Export(w, entries, params.To)
			})
		},
	}
}

type logsReportParams struct {
	windowParams
	outputParams
	To string `json:"to" flag:"to" desc:"html, json, or txt" default:"html"`
}

func logsReportCommand() *cli.Command {
	var params logsReportParams
	return &cli.Command{
		Name:    "report",
		Summary: "Render a report of recent PHP errors",
		Usage:   "quartermaster logs report [path...] [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("report", &params) },
		Examples: []cli.Example{
			{Description: "Write last week's report as HTML", Command: "quartermaster logs report --hours 168 -o report.html"},
		},
		Run: func(ctx context.Context, args []string) error {
			switch params.To {
			case logparse.ExportHTML, logparse.ExportJSON, logparse.ExportText:
			default:
				return cli.Validation("--to must be html, json, or txt")
			}
			report, err := params.summarize(ctx, args)
			if err != nil {
				return err
			}
			return params.write(func(w io.Writer) error {
				return logparse.WriteReport(w, report, params.To)
			})
		},
	}
}

type logsClearParams struct {
	Yes bool `json:"yes" flag:"yes,y" desc:"confirm emptying the logs"`
}

func logsClearCommand() *cli.Command {
	var params logsClearParams
	return &cli.Command{
		Name:    "clear",
		Summary: "Empty logs in place",
		Usage:   "quartermaster logs clear <path>... --yes",
		Description: `Truncates each log to zero bytes without replacing the file, so the
web server keeps writing to it. Nothing is escalated: a log you may
not write is reported and left alone.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("clear", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, -1, "quartermaster logs clear <path>... --yes"); err != nil {
				return err
			}
			if !params.Yes {
				return cli.Validation("refusing to clear logs without --yes")
			}
			var errs []error
			for _, path := range args {
				if err := logparse.Truncate(path); err != nil {
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(cli.Stdout, "cleared %s\n", path)
			}
			return errors.Join(errs...)
		},
	}
}
