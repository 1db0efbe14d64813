// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/quartermaster-backup/quartermaster/cmd/quartermaster/cli"
	"github.com/quartermaster-backup/quartermaster/lib/catalog"
	"github.com/quartermaster-backup/quartermaster/lib/engine"
)

type verifyParams struct {
	configParams
	cli.JSONOutput
	All bool `json:"all" flag:"all" desc:"verify every archive of every item"`
}

func verifyCommand() *cli.Command {
	var params verifyParams
	return &cli.Command{
		Name:    "verify",
		Summary: "Check archives against their recorded checksums",
		Usage:   "quartermaster verify <archive-path>... | --all",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("verify", &params) },
		Run: func(ctx context.Context, args []string) error {
			if params.All == (len(args) > 0) {
				return cli.Validation("give archive paths or --all")
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()

			var report []engine.Verification
			if params.All {
				report, err = s.Engine.VerifyAll(ctx)
			} else {
				for _, path := range args {
					entry := engine.Verification{Path: path, Valid: true}
					if verifyErr := s.Engine.Verify(ctx, path); verifyErr != nil {
						entry.Valid, entry.Error = false, verifyErr.Error()
						err = errors.Join(err, verifyErr)
					}
					report = append(report, entry)
				}
			}

			if done, jsonErr := params.EmitJSON(report); done {
				return errors.Join(jsonErr, failed(err))
			}
			table := cli.NewTable("STATUS", "ARCHIVE", "DETAIL")
			valid := 0
			for _, entry := range report {
				status := "valid"
				if !entry.Valid {
					status = "invalid"
				} else {
					valid++
				}
				table.Row(cli.DefaultTheme.Status(status), entry.Path, entry.Error)
			}
			if flushErr := table.Flush(); flushErr != nil {
				return flushErr
			}
			fmt.Fprintf(cli.Stdout, "%d of %d archives valid\n", valid, len(report))
			return failed(err)
		},
	}
}

// backupEntry is the listing form of a catalog backup.
type backupEntry struct {
	Name        string    `json:"name"`
	Kind        string    `json:"kind"`
	Item        string    `json:"item"`
	Type        string    `json:"type"`
	Size        int64     `json:"size"`
	Created     time.Time `json:"created"`
	Tags        []string  `json:"tags,omitempty"`
	Importance  string    `json:"importance,omitempty"`
	KeepForever bool      `json:"keep_forever,omitempty"`
	Checksummed bool      `json:"checksummed"`
	Path        string    `json:"path"`
}

func entriesOf(backups []catalog.Backup) []backupEntry {
	entries := make([]backupEntry, 0, len(backups))
	for _, backup := range backups {
		entries = append(entries, backupEntry{
			Name:        backup.Name(),
			Kind:        string(backup.Kind),
			Item:        backup.Item,
			Type:        string(backup.Metadata.BackupType),
			Size:        backup.Size,
			Created:     backup.Time(),
			Tags:        backup.Metadata.Tags,
			Importance:  backup.Metadata.Importance,
			KeepForever: backup.Metadata.KeepForever,
			Checksummed: backup.Metadata.ChecksumSHA256 != "",
			Path:        backup.Path,
		})
	}
	return entries
}

func printEntries(entries []backupEntry) error {
	table := cli.NewTable("ITEM", "ARCHIVE", "TYPE", "SIZE", "CREATED", "TAGS")
	for _, entry := range entries {
		tags := strings.Join(entry.Tags, ",")
		if entry.KeepForever {
			tags = strings.TrimPrefix(tags+",keep-forever", ",")
		}
		table.Row(entry.Kind+"/"+entry.Item, entry.Name, orDash(entry.Type),
			humanize.IBytes(uint64(entry.Size)), entry.Created.Local().Format("2006-01-02 15:04"), orDash(tags))
	}
	return table.Flush()
}

type listParams struct {
	configParams
	cli.JSONOutput
}

func listCommand() *cli.Command {
	var params listParams
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Summary: "List archives",
		Usage:   "quartermaster list [kind [item]] [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("list", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, 2, "quartermaster list [kind [item]]"); err != nil {
				return err
			}
			kinds := catalog.Kinds
			if len(args) > 0 {
				kind, err := catalog.ParseKind(args[0])
				if err != nil {
					return cli.Validation("%v", err)
				}
				kinds = []catalog.Kind{kind}
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()

			var backups []catalog.Backup
			for _, kind := range kinds {
				var found []catalog.Backup
				if len(args) == 2 {
					found, err = s.Catalog.List(kind, args[1])
				} else {
					found, err = s.Catalog.All(kind)
				}
				if err != nil {
					return err
				}
				backups = append(backups, found...)
			}

			entries := entriesOf(backups)
			if done, err := params.EmitJSON(entries); done {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cli.Stdout, "no archives")
				return nil
			}
			return printEntries(entries)
		},
	}
}

type contentsParams struct {
	configParams
	cli.JSONOutput
	File    string `json:"file" flag:"file" desc:"archive file name (default: latest)"`
	Pattern string `json:"pattern" flag:"pattern" desc:"only entries whose path matches this glob"`
}

func contentsCommand() *cli.Command {
	var params contentsParams
	return &cli.Command{
		Name:    "contents",
		Summary: "List the files inside a project archive",
		Usage:   "quartermaster contents <project> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("contents", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, 1, "quartermaster contents <project>"); err != nil {
				return err
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()
			entries, err := s.Engine.ListContents(ctx, args[0], params.File, params.Pattern)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(entries); done {
				return err
			}
			table := cli.NewTable("MODE", "SIZE", "MODIFIED", "PATH")
			for _, entry := range entries {
				name := entry.Name
				if entry.Linkname != "" {
					name += " -> " + entry.Linkname
				}
				table.Row(entry.Mode, humanize.IBytes(uint64(entry.Size)), entry.ModTime.Local().Format("2006-01-02 15:04"), name)
			}
			return table.Flush()
		},
	}
}

type previewParams struct {
	configParams
	File  string `json:"file" flag:"file" desc:"archive file name (default: latest)"`
	Lines int    `json:"lines" flag:"lines,n" desc:"maximum lines to show" default:"50"`
	Color bool   `json:"color" flag:"color" desc:"syntax-highlight by file extension for a 256-color terminal"`
}

func previewCommand() *cli.Command {
	var params previewParams
	return &cli.Command{
		Name:    "preview",
		Summary: "Print the start of a file inside a project archive",
		Usage:   "quartermaster preview <project> <path> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("preview", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 2, 2, "quartermaster preview <project> <path>"); err != nil {
				return err
			}
			s, err := params.open()
			if err != nil {
				return err
			}
			defer s.Close()
			text, err := s.Engine.PreviewFile(ctx, args[0], params.File, args[1], params.Lines)
			if err != nil {
				return err
			}
			if !strings.HasSuffix(text, "\n") {
				text += "\n"
			}
			if params.Color {
				language := strings.TrimPrefix(filepath.Ext(args[1]), ".")
				var highlighted strings.Builder
				if err := quick.Highlight(&highlighted, text, language, "terminal256", "monokai"); err == nil {
					text = highlighted.String()
				}
			}
			_, err = fmt.Fprint(cli.Stdout, text)
			return err
		},
	}
}
