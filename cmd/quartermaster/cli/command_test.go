// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

// captureOutput redirects Stdout and Stderr for the test.
func captureOutput(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	savedOut, savedErr := Stdout, Stderr
	Stdout, Stderr = &stdout, &stderr
	t.Cleanup(func() { Stdout, Stderr = savedOut, savedErr })
	return &stdout, &stderr
}

func TestExecute_Dispatch(t *testing.T) {
	captureOutput(t)
	var called string
	var received []string

	root := &Command{
		Name: "quartermaster",
		Subcommands: []*Command{
			{
				Name: "backup",
				Subcommands: []*Command{{
					Name: "project",
					Run: func(_ context.Context, args []string) error {
						called, received = "backup project", args
						return nil
					},
				}},
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Run: func(context.Context, []string) error {
					called = "list"
					return nil
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"backup", "project", "site"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "backup project" || len(received) != 1 || received[0] != "site" {
		t.Errorf("called %q with %v", called, received)
	}

	if err := root.Execute(context.Background(), []string{"ls"}); err != nil || called != "list" {
		t.Errorf("alias dispatch: called %q, err %v", called, err)
	}
}

func TestExecute_UnknownCommandSuggests(t *testing.T) {
	captureOutput(t)
	root := &Command{
		Name: "quartermaster",
		Subcommands: []*Command{
			{Name: "backup", Run: func(context.Context, []string) error { return nil }},
			{Name: "restore", Run: func(context.Context, []string) error { return nil }},
		},
	}

	err := root.Execute(context.Background(), []string{"bakup"})
	var usage *UsageError
	if !errors.As(err, &usage) {
		t.Fatalf("error = %v, want UsageError", err)
	}
	if !strings.Contains(err.Error(), `did you mean "backup"`) {
		t.Errorf("error = %q", err)
	}
}

func TestExecute_Flags(t *testing.T) {
	captureOutput(t)
	var params struct {
		DryRun bool `flag:"dry-run" desc:"report only"`
	}
	var positional []string
	command := &Command{
		Name:  "apply",
		Flags: func() *pflag.FlagSet { return FlagsFromParams("apply", &params) },
		Run: func(_ context.Context, args []string) error {
			positional = args
			return nil
		},
	}

	if err := command.Execute(context.Background(), []string{"--dry-run", "projects"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !params.DryRun || len(positional) != 1 || positional[0] != "projects" {
		t.Errorf("dry-run %v, args %v", params.DryRun, positional)
	}

	err := command.Execute(context.Background(), []string{"--dry-rn"})
	if err == nil || !strings.Contains(err.Error(), "did you mean --dry-run") {
		t.Errorf("misspelled flag error = %v", err)
	}
}

func TestExecute_HelpAndMissingSubcommand(t *testing.T) {
	_, stderr := captureOutput(t)
	root := &Command{
		Name:        "quartermaster",
		Description: "Back up projects and databases.",
		Subcommands: []*Command{{Name: "verify", Summary: "Check archive checksums"}},
		Examples:    []Example{{Description: "Verify everything", Command: "quartermaster verify --all"}},
	}

	if err := root.Execute(context.Background(), []string{"--help"}); err != nil {
		t.Fatalf("help: %v", err)
	}
	help := stderr.String()
	for _, want := range []string{"Back up projects", "verify", "Check archive checksums", "# Verify everything"} {
		if !strings.Contains(help, want) {
			t.Errorf("help missing %q:\n%s", want, help)
		}
	}

	if err := root.Execute(context.Background(), nil); err == nil {
		t.Error("expected an error without a subcommand")
	}
}

func TestRequireArgs(t *testing.T) {
	if err := RequireArgs([]string{"a"}, 1, 1, "x <name>"); err != nil {
		t.Errorf("exact count: %v", err)
	}
	if err := RequireArgs(nil, 1, 1, "x <name>"); err == nil {
		t.Error("accepted missing argument")
	}
	if err := RequireArgs([]string{"a", "b", "c"}, 1, -1, "x <name>..."); err != nil {
		t.Errorf("unbounded: %v", err)
	}
}

func TestEmitJSON(t *testing.T) {
	stdout, _ := captureOutput(t)
	output := JSONOutput{}
	if done, _ := output.EmitJSON([]string(nil)); done {
		t.Fatal("emitted without --json")
	}
	output.OutputJSON = true
	if done, err := output.EmitJSON([]string(nil)); !done || err != nil {
		t.Fatalf("EmitJSON = %v, %v", done, err)
	}
	if got := strings.TrimSpace(stdout.String()); got != "[]" {
		t.Errorf("nil slice encoded as %q", got)
	}
}
