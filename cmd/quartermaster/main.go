// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Quartermaster is the command-line interface for the backup engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/quartermaster-backup/quartermaster/cmd/quartermaster/cli"
	"github.com/quartermaster-backup/quartermaster/cmd/quartermaster/commands"
	"github.com/quartermaster-backup/quartermaster/lib/process"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own report return an ExitError
		// carrying the status; no extra "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		var usage *cli.UsageError
		if errors.As(err, &usage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", usage)
			os.Exit(cli.ExitUsage)
		}
		process.Fatal(err)
	}
}

func run() error {
	ctx, cancel := process.SignalContext(context.Background())
	defer cancel()
	return commands.Root().Execute(ctx, os.Args[1:])
}
