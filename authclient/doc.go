// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package authclient is the host-side facade over an authentication
// module.
//
// A [Helper] is created with the module's origin and does nothing
// until its first method call, which opens the channel, negotiates the
// protocol version, and subscribes to the module's status streams.
// Concurrent first calls share that initialization. A failed
// initialization is retried by the next call.
//
// Every method is gated on the negotiated version through
// [protocol.Supports]. A method the module is too old for returns its
// default (false, nil, "", or a configured fallback origin) without
// calling through. With no origin configured, every method returns its
// default and no channel is ever opened.
//
// The helper caches the accumulated login status and the current UI
// page in a [Snapshot] that readers load atomically. Modules at
// version 2 and above push both streams; for older modules the login
// status is derived from the results of Login and Logout.
package authclient
