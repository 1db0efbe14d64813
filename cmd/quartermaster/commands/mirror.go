// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/quartermaster-backup/quartermaster/cmd/quartermaster/cli"
	"github.com/quartermaster-backup/quartermaster/lib/config"
	"github.com/quartermaster-backup/quartermaster/lib/mirror"
	"github.com/quartermaster-backup/quartermaster/lib/service"
)

func mirrorCommand() *cli.Command {
	return &cli.Command{
		Name:    "mirror",
		Summary: "Copy the archive tree to sync_dir and mirror targets",
		Subcommands: []*cli.Command{
			mirrorSyncCommand(),
			mirrorTargetsCommand(),
		},
	}
}

type mirrorSyncParams struct {
	configParams
	cli.JSONOutput
	Targets []string `json:"targets" flag:"target,t" desc:"only sync the named targets (repeatable)"`
	Prune   bool     `json:"prune" flag:"prune" desc:"remove files that no longer exist locally"`
}

func mirrorSyncCommand() *cli.Command {
	var params mirrorSyncParams
	return &cli.Command{
		Name:    "sync",
		Summary: "Copy new and changed archives to every target",
		Usage:   "quartermaster mirror sync [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("sync", &params) },
		Examples: []cli.Example{
			{Description: "Sync only the offsite bucket", Command: "quartermaster mirror sync --target offsite"},
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, 0, "quartermaster mirror sync"); err != nil {
				return err
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()

			opened, openErr := s.OpenTargets(ctx)
			defer func() {
				for _, target := range opened {
					target.Close()
				}
			}()
			targets := opened
			if len(params.Targets) > 0 {
				var selected []mirror.Target
				for _, target := range targets {
					if slices.Contains(params.Targets, target.Name()) {
						selected = append(selected, target)
					}
				}
				for _, name := range params.Targets {
					if !slices.ContainsFunc(selected, func(t mirror.Target) bool { return t.Name() == name }) {
						openErr = errors.Join(openErr, fmt.Errorf("mirror target %q is not configured or unavailable", name))
					}
				}
				targets = selected
			}
			if len(targets) == 0 {
				if openErr != nil {
					return openErr
				}
				return cli.Validation("no mirror targets configured (set backup.sync_dir or mirror.targets)")
			}

			if params.Prune {
				s.Mirror.Prune = true
			}
			reports, err := s.Mirror.SyncAll(ctx, targets)
			err = errors.Join(openErr, err)

			if done, jsonErr := params.EmitJSON(reports); done {
				return errors.Join(jsonErr, failed(err))
			}
			table := cli.NewTable("TARGET", "COPIED", "UNCHANGED", "SIDECARS", "PRUNED", "BYTES", "FAILED", "DURATION")
			for _, report := range reports {
				table.Row(report.Target, report.Copied, report.Unchanged, report.Sidecars, report.Pruned,
					humanize.IBytes(uint64(report.Bytes)), len(report.Failed), report.Duration.Round(time.Millisecond))
			}
			if flushErr := table.Flush(); flushErr != nil {
				return flushErr
			}
			if err != nil {
				fmt.Fprintf(cli.Stderr, "error: %v\n", err)
			}
			return failed(err)
		},
	}
}

type mirrorTargetsParams struct {
	configParams
	cli.JSONOutput
}

type targetEntry struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Location string `json:"location"`
}

func mirrorTargetsCommand() *cli.Command {
	var params mirrorTargetsParams
	return &cli.Command{
		Name:    "targets",
		Summary: "List configured mirror targets",
		Usage:   "quartermaster mirror targets [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("targets", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, 0, "quartermaster mirror targets"); err != nil {
				return err
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()

			var entries []targetEntry
			if dir := s.Config.Backup.SyncDir; dir != "" {
				entries = append(entries, targetEntry{Name: service.SyncDirTarget, Kind: config.MirrorLocal, Location: dir})
			}
			for _, target := range s.Config.Mirror.Targets {
				entry := targetEntry{Name: target.Name, Kind: target.Kind}
				switch target.Kind {
				case config.MirrorSFTP:
					entry.Location = fmt.Sprintf("%s@%s:%s", target.User, target.Host, target.Path)
				case config.MirrorS3:
					entry.Location = "s3://" + target.Bucket + "/" + target.Prefix
				default:
					entry.Location = target.Path
				}
				entries = append(entries, entry)
			}
			if done, err := params.EmitJSON(entries); done {
				return err
			}
			table := cli.NewTable("NAME", "KIND", "LOCATION")
			for _, entry := range entries {
				table.Row(entry.Name, entry.Kind, entry.Location)
			}
			return table.Flush()
		},
	}
}
