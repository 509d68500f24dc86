// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// authbridge is a terminal host for an authentication module. It opens
// the module named by the configuration, logs in (answering custom UI
// pages as terminal prompts), and prints what the module reports.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/authbridge/lib/process"
)

func main() {
	process.Exit(run())
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return newRoot(ctx, os.Stdin, os.Stdout, os.Stderr).Execute(os.Args[1:])
}

// terminal carries the streams commands read and write.
type terminal struct {
	in     io.Reader
	out    io.Writer
	stderr io.Writer
}
