// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package channel establishes the private message pipe between a host
// application and an isolated authentication module.
//
// A [Port] is an ordered, bidirectional, message-boundary-preserving
// endpoint. [Opener.Open] chooses how the module is isolated from the
// origin's scheme:
//
//   - mem://name runs a registered [ServeFunc] in its own goroutine.
//     Ports are Go values.
//   - exec:///path/to/module?arg=... starts a child process (optionally
//     inside a bubblewrap sandbox) with a SOCK_SEQPACKET bootstrap
//     socket on fd 3. The data pipe is a fresh SOCK_STREAM socketpair
//     whose module end crosses the bootstrap socket via SCM_RIGHTS.
//   - ws:// and wss:// dial a remote module. The upgraded websocket
//     connection itself is the port.
//
// Every scheme runs the same handshake: the module sends exactly one
// ready frame, the host answers with exactly one init_port frame that
// carries (or, for websockets, designates) the module's endpoint. After
// that only RPC frames flow. If ready does not arrive within
// [Opener.HandshakeTimeout] the isolated context is destroyed and Open
// returns [ErrHandshakeTimeout].
//
// The module side of each scheme is [Opener.Modules] (memory),
// [ServeFD] (process), and [WebSocketHandler] (websocket).
//
// Stream ports frame messages as a sequence of CBOR byte strings.
package channel
