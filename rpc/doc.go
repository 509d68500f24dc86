// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rpc turns a [channel.Port] into typed remote calls and pushed
// callbacks.
//
// Both ends of a channel hold a [Conn]. Each outbound [Conn.Call] is
// tagged with a per-connection, monotonically increasing id; results
// are matched back by id, so replies may arrive in any order. Incoming
// calls are dispatched to the [HandlerFunc] registered with
// [Conn.Handle], each in its own goroutine.
//
// Callbacks are the push direction: [Conn.Invoke] sends a named payload
// that the peer delivers to the [CallbackFunc] registered with
// [Conn.RegisterCallback]. Callbacks are delivered synchronously on the
// read loop, so one producer's pushes arrive in the order they were
// sent.
//
// Two error families reach callers of Call, and they never overlap:
//
//   - transport: the port closed with the call outstanding. These wrap
//     [ErrClosed] (which is [channel.ErrClosed]).
//   - application: the remote handler returned an error. These are
//     [*Error] values carrying a code and message.
//
// Every frame is a CBOR map:
//
//	{type: "call", id, method, args: [..], meta}
//	{type: "result", id, data | error: {code, message}}
//	{type: "callback", method, data}
//
// meta carries W3C trace context so module-side spans join the host's
// trace.
package rpc
