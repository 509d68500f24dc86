// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// ExitCode maps the error returned by a binary's run function to its
// exit status. Interruption by a signal (a canceled context) is 130,
// as a shell reports SIGINT.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

// Report writes "error: err" to w unless err is nil or an interruption.
func Report(w io.Writer, err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(w, "error: %v\n", err)
	}
}

// Exit reports err on stderr and exits with ExitCode(err).
func Exit(err error) {
	Report(os.Stderr, err)
	os.Exit(ExitCode(err))
}
