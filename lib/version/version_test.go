// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"bytes"
	"strings"
	"testing"
)

func TestInfoMarksDirtyBuilds(t *testing.T) {
	defer func(commit, dirty string) { GitCommit, GitDirty = commit, dirty }(GitCommit, GitDirty)
	GitCommit, GitDirty = "abc1234", "true"

	if info := Info(); !strings.Contains(info, "abc1234-dirty") {
		t.Errorf("Info() = %q, want the dirty marker", info)
	}
	GitDirty = "false"
	if info := Info(); strings.Contains(info, "dirty") {
		t.Errorf("Info() = %q for a clean build", info)
	}
}

func TestFullNamesProtocol(t *testing.T) {
	if full := Full(); !strings.Contains(full, "Auth protocol: 6") {
		t.Errorf("Full() = %q", full)
	}
}

func TestPrint(t *testing.T) {
	var out bytes.Buffer
	Print(&out, "authbridge")
	if !strings.HasPrefix(out.String(), "authbridge "+Version) {
		t.Errorf("Print wrote %q", out.String())
	}
}
