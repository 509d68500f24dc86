// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/authbridge/channel"
	"github.com/bureau-foundation/authbridge/lib/codec"
)

// ErrClosed is the transport error: the channel closed while a call
// was outstanding, or the Conn was already closed.
var ErrClosed = channel.ErrClosed

// Error codes produced by this package. Handlers define their own.
const (
	CodeUnknownMethod = "unknown_method"
	CodeInternal      = "internal"
	CodeBadRequest    = "bad_request"
)

// Frame types.
const (
	frameCall     = "call"
	frameResult   = "result"
	frameCallback = "callback"
)

type frame struct {
	Type   string             `cbor:"type"`
	ID     uint64             `cbor:"id,omitempty"`
	Method string             `cbor:"method,omitempty"`
	Args   []codec.RawMessage `cbor:"args,omitempty"`
	Data   codec.RawMessage   `cbor:"data,omitempty"`
	Error  *Error             `cbor:"error,omitempty"`
	Meta   map[string]string  `cbor:"meta,omitempty"`
}

// Error is an application error returned by a remote handler.
type Error struct {
	Code    string `cbor:"code"`
	Message string `cbor:"message,omitempty"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf returns an *Error with a formatted message.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrorCode returns the code of an *Error in err's chain, or "".
func ErrorCode(err error) string {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	return ""
}

// Args are the encoded positional arguments of an incoming call.
type Args []codec.RawMessage

// Len returns the number of arguments the caller sent.
func (a Args) Len() int { return len(a) }

// Decode decodes argument i into v. An argument the caller omitted
// leaves v unchanged, so optional trailing arguments keep their zero
// or default values.
func (a Args) Decode(i int, v any) error {
	if i >= len(a) {
		return nil
	}
	if err := codec.Unmarshal(a[i], v); err != nil {
		return Errorf(CodeBadRequest, "argument %d: %v", i, err)
	}
	return nil
}

func encodeArgs(args []any) ([]codec.RawMessage, error) {
	encoded := make([]codec.RawMessage, 0, len(args))
	for index, arg := range args {
		data, err := codec.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("encoding argument %d: %w", index, err)
		}
		encoded = append(encoded, data)
	}
	return encoded, nil
}
