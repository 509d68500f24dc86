// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/bureau-foundation/authbridge/protocol"
)

// Set via -ldflags at build time. While GitCommit keeps its placeholder
// the VCS stamp embedded by the go command is used instead.
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// shortCommitLength matches git rev-parse --short.
const shortCommitLength = 7

// Info returns the one-line form, "0.1.0-dev (abc1234-dirty, <time>)".
func Info() string {
	revision, dirty := commit()
	if dirty {
		revision += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", Version, revision, BuildTime)
}

// Full returns Info plus the toolchain, platform, and protocol version.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s\n  Auth protocol: %d",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH, protocol.Current)
}

// Print writes "name Full" to w, for --version.
func Print(w io.Writer, name string) {
	fmt.Fprintf(w, "%s %s\n", name, Full())
}

func commit() (revision string, dirty bool) {
	if GitCommit != "unknown" {
		return GitCommit, GitDirty == "true"
	}
	build, ok := debug.ReadBuildInfo()
	if !ok {
		return GitCommit, false
	}
	revision = GitCommit
	for _, setting := range build.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value[:min(len(setting.Value), shortCommitLength)]
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return revision, dirty
}
