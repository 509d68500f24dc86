// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command tree of the authbridge host CLI: flag
// parsing with pflag, subcommand dispatch, help output, typo
// suggestions, and --json output.
package cli
