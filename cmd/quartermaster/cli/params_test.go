// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"slices"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestBindFlags(t *testing.T) {
	type params struct {
		JSONOutput
		Kind     string        `flag:"kind,k" desc:"item kind" default:"project"`
		Force    bool          `flag:"force" desc:"ignore existing backups"`
		Lines    int           `flag:"lines" default:"50"`
		Limit    int64         `flag:"limit"`
		Ratio    float64       `flag:"ratio" default:"0.5"`
		Timeout  time.Duration `flag:"timeout" default:"30s"`
		Tags     []string      `flag:"tag"`
		Untagged string
	}

	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}
	if p.Kind != "project" || p.Lines != 50 || p.Ratio != 0.5 || p.Timeout != 30*time.Second {
		t.Errorf("defaults not applied: %+v", p)
	}

	err := flagSet.Parse([]string{"-k", "database", "--force", "--limit", "7", "--tag", "release", "--tag", "stable", "--json"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Kind != "database" || !p.Force || p.Limit != 7 || !p.OutputJSON {
		t.Errorf("parsed = %+v", p)
	}
	if !slices.Equal(p.Tags, []string{"release", "stable"}) {
		t.Errorf("Tags = %v", p.Tags)
	}
	if flagSet.Lookup("Untagged") != nil || flagSet.Lookup("untagged") != nil {
		t.Error("untagged field was bound")
	}
}

func TestBindFlags_Invalid(t *testing.T) {
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(struct{}{}, flagSet); err == nil {
		t.Error("accepted a non-pointer")
	}

	var unsupported struct {
		Size uint8 `flag:"size"`
	}
	if err := BindFlags(&unsupported, flagSet); err == nil {
		t.Error("accepted an unsupported field type")
	}

	var badDefault struct {
		Count int `flag:"count" default:"many"`
	}
	if err := BindFlags(&badDefault, flagSet); err == nil {
		t.Error("accepted an unparseable default")
	}
}
