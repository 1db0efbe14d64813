// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/quartermaster-backup/quartermaster/cmd/quartermaster/cli"
	"github.com/quartermaster-backup/quartermaster/lib/catalog"
)

type tagParams struct {
	configParams
	cli.JSONOutput
	Tags        []string `json:"tags" flag:"tag,t" desc:"tag to add (repeatable)"`
	Importance  string   `json:"importance" flag:"importance" desc:"critical, high, normal, or low"`
	KeepForever string   `json:"keep_forever" flag:"keep-forever" desc:"true exempts the archive from retention, false releases it"`
	Description string   `json:"description" flag:"description" desc:"replace the archive description"`
}

func tagCommand() *cli.Command {
	var params tagParams
	return &cli.Command{
		Name:    "tag",
		Summary: "Tag an archive or change its importance",
		Usage:   "quartermaster tag <kind> <item> <archive> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("tag", &params) },
		Examples: []cli.Example{
			{Description: "Keep a release archive forever", Command: "quartermaster tag project website website_20260301_020000.tar.gz --tag release --keep-forever=true"},
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 3, 3, "quartermaster tag <kind> <item> <archive>"); err != nil {
				return err
			}
			kind, err := catalog.ParseKind(args[0])
			if err != nil {
				return cli.Validation("%v", err)
			}
			update := catalog.TagUpdate{Tags: params.Tags}
			if params.Importance != "" {
				update.Importance = &params.Importance
			}
			if params.KeepForever != "" {
				keep, err := strconv.ParseBool(params.KeepForever)
				if err != nil {
					return cli.Validation("--keep-forever: %v", err)
				}
				update.KeepForever = &keep
			}
			if params.Description != "" {
				update.Description = &params.Description
			}
			if len(update.Tags) == 0 && update.Importance == nil && update.KeepForever == nil && update.Description == nil {
				return cli.Validation("nothing to change: give --tag, --importance, --keep-forever, or --description")
			}

			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()
			backup, err := s.Catalog.Find(kind, args[1], args[2])
			if err != nil {
				return err
			}
			metadata, err := s.Catalog.Tag(backup, update)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(metadata); done {
				return err
			}
			fmt.Fprintf(cli.Stdout, "%s: tags %v, importance %s, keep forever %t\n",
				backup.Name(), metadata.Tags, metadata.Importance, metadata.KeepForever)
			return nil
		},
	}
}

type taggedParams struct {
	configParams
	cli.JSONOutput
}

func taggedCommand() *cli.Command {
	var params taggedParams
	return &cli.Command{
		Name:    "tagged",
		Summary: "List tagged, important, or pinned archives",
		Usage:   "quartermaster tagged [tag] [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("tagged", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, 1, "quartermaster tagged [tag]"); err != nil {
				return err
			}
			tag := ""
			if len(args) == 1 {
				tag = args[0]
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()
			backups, listErr := s.Catalog.ListTagged(tag)
			entries := entriesOf(backups)
			if done, err := params.EmitJSON(entries); done {
				return errors.Join(err, listErr)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cli.Stdout, "no tagged archives")
				return listErr
			}
			return errors.Join(printEntries(entries), listErr)
		},
	}
}

type backfillParams struct {
	configParams
	cli.JSONOutput
}

func backfillCommand() *cli.Command {
	var params backfillParams
	return &cli.Command{
		Name:    "backfill",
		Summary: "Add missing checksums and sidecars to older archives",
		Usage:   "quartermaster backfill [kind [item]] [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("backfill", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, 2, "quartermaster backfill [kind [item]]"); err != nil {
				return err
			}
			var kind catalog.Kind
			var item string
			if len(args) > 0 {
				parsed, err := catalog.ParseKind(args[0])
				if err != nil {
					return cli.Validation("%v", err)
				}
				kind = parsed
			}
			if len(args) == 2 {
				item = args[1]
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.Catalog.BackfillChecksums(ctx, kind, item)
			if done, jsonErr := params.EmitJSON(report); done {
				return errors.Join(jsonErr, err)
			}
			fmt.Fprintf(cli.Stdout, "%d archives: %d checksums added, %d sidecars created, %d failed\n",
				report.Total, report.Updated, report.Created, report.Failed)
			return err
		},
	}
}
