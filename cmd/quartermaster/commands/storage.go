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
	"github.com/quartermaster-backup/quartermaster/lib/catalog"
	"github.com/quartermaster-backup/quartermaster/lib/retention"
)

func storageCommand() *cli.Command {
	return &cli.Command{
		Name:    "storage",
		Summary: "Analyse how the archive tree uses disk space",
		Subcommands: []*cli.Command{
			storageTimelineCommand(),
			storageDuplicatesCommand(),
			storageReportCommand(),
		},
	}
}

type storageTimelineParams struct {
	configParams
	cli.JSONOutput
	Days int `json:"days" flag:"days" desc:"number of days to cover" default:"30"`
}

func storageTimelineCommand() *cli.Command {
	var params storageTimelineParams
	return &cli.Command{
		Name:    "timeline",
		Summary: "Show how the archive tree grew day by day",
		Usage:   "quartermaster storage timeline [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("timeline", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, 0, "quartermaster storage timeline"); err != nil {
				return err
			}
			if params.Days < 0 {
				return cli.Validation("--days must not be negative")
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()

			points, err := s.Catalog.Timeline(params.Days, s.Clock.Now())
			if done, jsonErr := params.EmitJSON(points); done {
				return errors.Join(jsonErr, err)
			}
			table := cli.NewTable("DATE", "ARCHIVES", "SIZE", "PROJECTS", "DATABASES", "GIT")
			for _, point := range points {
				table.Row(point.Date, point.Count, humanize.IBytes(uint64(point.Bytes)),
					kindSize(point.ByKind, catalog.KindProject),
					kindSize(point.ByKind, catalog.KindDatabase),
					kindSize(point.ByKind, catalog.KindGit))
			}
			if flushErr := table.Flush(); flushErr != nil {
				return flushErr
			}
			return err
		},
	}
}

func kindSize(byKind map[catalog.Kind]catalog.KindUsage, kind catalog.Kind) string {
	usage, ok := byKind[kind]
	if !ok {
		return "-"
	}
	return humanize.IBytes(uint64(usage.Bytes))
}

type storageDuplicatesParams struct {
	configParams
	cli.JSONOutput
}

func storageDuplicatesCommand() *cli.Command {
	var params storageDuplicatesParams
	return &cli.Command{
		Name:    "duplicates",
		Summary: "Find items whose archives repeat the same content",
		Usage:   "quartermaster storage duplicates [flags]",
		Description: `Groups each item's archives by recorded checksum. Archives without a
checksum are matched on size alone and marked "size" in the BASIS
column. Items above storage_thresholds.high_duplication_ratio are
flagged.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("duplicates", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, 0, "quartermaster storage duplicates"); err != nil {
				return err
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.Catalog.Duplication(s.Config.Storage.HighDuplicationRatio)
			if done, jsonErr := params.EmitJSON(report); done {
				return errors.Join(jsonErr, err)
			}
			threshold := s.Config.Storage.HighDuplicationRatio
			table := cli.NewTable("KIND", "ITEM", "ARCHIVES", "DISTINCT", "DUPLICATES", "RATIO", "REDUNDANT", "BASIS")
			for _, item := range report.Items {
				ratio := fmt.Sprintf("%.0f%%", item.Ratio*100)
				if item.Ratio > threshold {
					ratio += " " + cli.DefaultTheme.Status(retention.LevelHigh)
				}
				basis := "checksum"
				if !item.ByChecksum {
					basis = "size"
				}
				table.Row(item.Kind, item.Item, item.Count, item.Distinct, item.Duplicates, ratio,
					humanize.IBytes(uint64(item.Redundant)), basis)
			}
			if flushErr := table.Flush(); flushErr != nil {
				return flushErr
			}
			fmt.Fprintf(cli.Stdout, "\n%s held in duplicate archives, %d items above %.0f%%\n",
				report.HumanRedundant(), len(report.High), threshold*100)
			return err
		},
	}
}

type storageReportParams struct {
	configParams
	cli.JSONOutput
}

func storageReportCommand() *cli.Command {
	var params storageReportParams
	return &cli.Command{
		Name:    "report",
		Summary: "Recommend cleanups from usage, retention, and duplication",
		Usage:   "quartermaster storage report [flags]",
		Description: `Plans retention for every item without deleting anything, lists the
archives that would go, and judges disk usage, reclaimable space,
duplication, and archive counts against storage_thresholds.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("report", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, 0, "quartermaster storage report"); err != nil {
				return err
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.Retention.StorageReport(ctx, s.Config.Storage)
			if done, jsonErr := params.EmitJSON(report); done {
				return errors.Join(jsonErr, err)
			}
			theme := cli.DefaultTheme
			fmt.Fprintf(cli.Stdout, "%s\n", theme.Heading("Usage"))
			fmt.Fprintf(cli.Stdout, "%d archives, %s", report.Usage.Count, report.Usage.HumanSize())
			if disk := report.Usage.Disk; disk != nil {
				fmt.Fprintf(cli.Stdout, " (disk %.0f%% used)", disk.UsedPercent())
			}
			fmt.Fprintln(cli.Stdout)

			fmt.Fprintf(cli.Stdout, "\n%s\n", theme.Heading("Cleanup candidates"))
			if len(report.Candidates) == 0 {
				fmt.Fprintln(cli.Stdout, "none")
			} else {
				table := cli.NewTable("KIND", "ITEM", "ARCHIVE", "TIER", "SIZE")
				for _, candidate := range report.Candidates {
					table.Row(candidate.Kind, candidate.Item, candidate.Name, orDash(candidate.Tier),
						humanize.IBytes(uint64(candidate.Size)))
				}
				if flushErr := table.Flush(); flushErr != nil {
					return flushErr
				}
				fmt.Fprintf(cli.Stdout, "%s reclaimable\n", humanize.IBytes(uint64(report.CandidateBytes)))
			}

			fmt.Fprintf(cli.Stdout, "\n%s\n", theme.Heading("Recommendations"))
			if len(report.Recommendations) == 0 {
				fmt.Fprintln(cli.Stdout, "none")
			}
			for _, recommendation := range report.Recommendations {
				fmt.Fprintf(cli.Stdout, "%s %s\n", theme.Status(recommendation.Level), recommendation.Message)
			}
			return err
		},
	}
}
