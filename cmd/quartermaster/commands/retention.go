// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/quartermaster-backup/quartermaster/cmd/quartermaster/cli"
	"github.com/quartermaster-backup/quartermaster/lib/catalog"
	"github.com/quartermaster-backup/quartermaster/lib/retention"
)

func retentionCommand() *cli.Command {
	return &cli.Command{
		Name:    "retention",
		Summary: "Apply and inspect retention policies",
		Subcommands: []*cli.Command{
			retentionApplyCommand(),
			retentionStatusCommand(),
			retentionSuggestCommand(),
		},
	}
}

// kindItemArgs parses the optional [kind [item]] positional pair.
func kindItemArgs(args []string, usage string) (catalog.Kind, string, error) {
	if err := cli.RequireArgs(args, 0, 2, usage); err != nil {
		return "", "", err
	}
	var kind catalog.Kind
	var item string
	if len(args) > 0 {
		parsed, err := catalog.ParseKind(args[0])
		if err != nil {
			return "", "", cli.Validation("%v", err)
		}
		kind = parsed
	}
	if len(args) == 2 {
		item = args[1]
	}
	return kind, item, nil
}

type retentionApplyParams struct {
	configParams
	cli.JSONOutput
	DryRun bool `json:"dry_run" flag:"dry-run,n" desc:"show what would be deleted without deleting"`
}

func retentionApplyCommand() *cli.Command {
	var params retentionApplyParams
	return &cli.Command{
		Name:    "apply",
		Summary: "Delete archives that fall outside the retention policy",
		Usage:   "quartermaster retention apply [kind [item]] [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("apply", &params) },
		Examples: []cli.Example{
			{Description: "Preview cleanup for every item", Command: "quartermaster retention apply --dry-run"},
		},
		Run: func(ctx context.Context, args []string) error {
			kind, item, err := kindItemArgs(args, "quartermaster retention apply [kind [item]]")
			if err != nil {
				return err
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()

			var results []retention.Result
			switch {
			case kind == "":
				results, err = s.Retention.EnforceAll(ctx, params.DryRun)
			case item == "":
				items, itemsErr := s.Catalog.Items(kind)
				if itemsErr != nil {
					return itemsErr
				}
				for _, name := range items {
					result, enforceErr := s.Retention.Enforce(ctx, kind, name, params.DryRun)
					results = append(results, result)
					err = errors.Join(err, enforceErr)
				}
			default:
				var result retention.Result
				result, err = s.Retention.Enforce(ctx, kind, item, params.DryRun)
				results = append(results, result)
			}

			if done, jsonErr := params.EmitJSON(results); done {
				return errors.Join(jsonErr, failed(err))
			}
			verb := "deleted"
			if params.DryRun {
				verb = "would delete"
			}
			table := cli.NewTable("KIND", "ITEM", "TOTAL", "KEEP", strings.ToUpper(verb), "EXEMPT", "SPACE")
			var freed int64
			for _, result := range results {
				table.Row(result.Kind, result.Item, result.Plan.Total, len(result.Plan.Keep),
					len(result.Plan.Delete), result.Plan.Exempt, result.Plan.HumanSpace())
				freed += result.Plan.SpaceToRecover
				for _, name := range result.Report.Failed {
					fmt.Fprintf(cli.Stderr, "failed to delete %s\n", name)
				}
			}
			if flushErr := table.Flush(); flushErr != nil {
				return flushErr
			}
			fmt.Fprintf(cli.Stdout, "%s %s in total\n", verb, humanize.IBytes(uint64(freed)))
			return failed(err)
		},
	}
}

type retentionStatusParams struct {
	configParams
	cli.JSONOutput
}

func retentionStatusCommand() *cli.Command {
	var params retentionStatusParams
	return &cli.Command{
		Name:    "status",
		Summary: "Show tier coverage and upcoming expiries",
		Usage:   "quartermaster retention status [kind [item]] [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("status", &params) },
		Run: func(ctx context.Context, args []string) error {
			kind, item, err := kindItemArgs(args, "quartermaster retention status [kind [item]]")
			if err != nil {
				return err
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()

			kinds := catalog.Kinds
			if kind != "" {
				kinds = []catalog.Kind{kind}
			}
			var statuses []retention.Status
			for _, k := range kinds {
				items := []string{item}
				if item == "" {
					if items, err = s.Catalog.Items(k); err != nil {
						return err
					}
				}
				for _, name := range items {
					status, statusErr := s.Retention.Status(k, name)
					if statusErr != nil {
						err = errors.Join(err, statusErr)
						continue
					}
					statuses = append(statuses, status)
				}
			}

			if done, jsonErr := params.EmitJSON(statuses); done {
				return errors.Join(jsonErr, err)
			}
			table := cli.NewTable("KIND", "ITEM", "POLICY", "ARCHIVES", "SIZE", "PRESERVED", "EXPIRING", "NEXT EXPIRY")
			for _, status := range statuses {
				next := "-"
				if !status.NextExpiry.IsZero() {
					next = humanize.Time(status.NextExpiry)
				}
				table.Row(status.Kind, status.Item, status.Policy, status.Total,
					humanize.IBytes(uint64(status.TotalBytes)), status.Preserved, status.Expiring, next)
			}
			return errors.Join(table.Flush(), err)
		},
	}
}

type retentionSuggestParams struct {
	configParams
	cli.JSONOutput
}

func retentionSuggestCommand() *cli.Command {
	var params retentionSuggestParams
	return &cli.Command{
		Name:    "suggest",
		Summary: "Propose retention tiers from an item's backup frequency",
		Usage:   "quartermaster retention suggest <kind> <item> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("suggest", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 2, 2, "quartermaster retention suggest <kind> <item>"); err != nil {
				return err
			}
			kind, err := catalog.ParseKind(args[0])
			if err != nil {
				return cli.Validation("%v", err)
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()

			backups, err := s.Catalog.List(kind, args[1])
			if err != nil {
				return err
			}
			suggestion := retention.SuggestTiers(backups, s.Clock.Now())
			if done, err := params.EmitJSON(suggestion); done {
				return err
			}

			fmt.Fprintf(cli.Stdout, "%s/%s: %s backups (every %s on average)\n\n", kind, args[1],
				suggestion.Frequency, suggestion.AverageInterval.Round(time.Minute))
			table := cli.NewTable("TIER", "KEEP", "MAX AGE")
			for _, tier := range suggestion.Tiers {
				maxAge := "-"
				if tier.MaxAge > 0 {
					maxAge = fmt.Sprintf("%dd", int(tier.MaxAge.Hours()/24))
				}
				table.Row(tier.Name, tier.Keep, maxAge)
			}
			if err := table.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cli.Stdout, "\n%d archives (%s) now, %d (%s) under these tiers, saving %s\n",
				suggestion.CurrentCount, humanize.IBytes(uint64(suggestion.CurrentBytes)),
				suggestion.ProposedCount, humanize.IBytes(uint64(suggestion.ProposedBytes)),
				humanize.IBytes(uint64(suggestion.Savings)))
			return nil
		},
	}
}
