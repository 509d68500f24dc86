// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize bounds HTTP response body reads at 1 MB. Identity
// service responses are small JSON documents; the bound only guards
// against a misbehaving server.
const MaxResponseSize int64 = 1 << 20

// ReadResponse reads a response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a response body (up to MaxResponseSize bytes)
// and JSON-decodes it into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// ErrorBody reads an error response body for use in a diagnostic
// message. Read errors are ignored: a partial body is still useful.
func ErrorBody(body io.Reader) string {
	data, _ := ReadResponse(body)
	return string(data)
}
