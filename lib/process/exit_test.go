// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errors.New("boom"), 1},
		{fmt.Errorf("login: %w", context.Canceled), 130},
	}
	for _, test := range tests {
		if got := ExitCode(test.err); got != test.want {
			t.Errorf("ExitCode(%v) = %d, want %d", test.err, got, test.want)
		}
	}
}

func TestReport(t *testing.T) {
	var out bytes.Buffer
	Report(&out, errors.New("no origin configured"))
	if out.String() != "error: no origin configured\n" {
		t.Errorf("Report wrote %q", out.String())
	}

	out.Reset()
	Report(&out, context.Canceled)
	Report(&out, nil)
	if out.Len() != 0 {
		t.Errorf("Report wrote %q for an interruption", out.String())
	}
}
