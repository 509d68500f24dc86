// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides connection and HTTP I/O helpers shared by the
// channel transport and the identity service client.
//
// [IsExpectedCloseError] classifies errors that occur when the peer of a
// stream or websocket port goes away during normal teardown, so that
// read loops can exit quietly instead of logging them as failures.
//
// [ReadResponse], [DecodeResponse], and [ErrorBody] bound every HTTP
// response body read at [MaxResponseSize].
package netutil
