// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the authbridge
// binaries.
//
// [GitCommit], [GitDirty], [BuildTime], and [Version] are injected at
// build time with -ldflags -X and keep their placeholder values in
// development builds and tests:
//
//	go build -ldflags "-X github.com/bureau-foundation/authbridge/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// [Info] is the one-line form printed by --version. [Full] adds the Go
// toolchain, the platform, and the auth protocol version the module
// binary speaks, which is what a host operator needs when a module
// negotiates lower than expected.
package version
