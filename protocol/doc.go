// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol negotiates the capability level between a host and
// an authentication module.
//
// The host asks once per channel, right after the RPC connection comes
// up, via the getProtocolVersion method. Anything short of a usable
// answer (an error, a timeout, a module too old to know the method)
// yields version 1, which every module supports. The result is fixed
// for the channel's lifetime.
//
// Versions are strictly additive: a capability introduced at version N
// is present at every version >= N. [MinimumVersion] is the static
// table; callers gate with [Supports] and fall back to the documented
// default below the minimum.
package protocol
