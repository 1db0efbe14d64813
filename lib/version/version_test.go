// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	saved := GitCommit
	t.Cleanup(func() { GitCommit, GitDirty = saved, "false" })

	GitCommit, GitDirty = "abc1234", "true"
	if got := Info(); !strings.Contains(got, "abc1234-dirty") || !strings.HasPrefix(got, Version) {
		t.Errorf("Info() = %q", got)
	}
	if full := Full(); !strings.Contains(full, "Go: ") {
		t.Errorf("Full() = %q", full)
	}
}
