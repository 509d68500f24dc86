// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox wraps the authentication module process in a
// bubblewrap (bwrap) namespace when the host opens an exec:// origin
// with sandboxing enabled.
//
// The module needs little: its own binary, the system libraries and CA
// certificates to reach the identity service over HTTPS, and whatever
// session store path the configuration binds in. Everything else on the
// host filesystem is invisible. The network namespace is shared, since
// the module talks to the identity service; PID, IPC, UTS, cgroup and
// user namespaces are unshared.
//
// [BwrapBuilder] translates [BwrapOptions] into bwrap arguments.
// [DetectCapabilities] probes the host so that a missing bwrap can be
// reported before the channel handshake times out.
//
// The bootstrap socket is inherited as fd 3 through bwrap unchanged;
// bwrap passes inherited descriptors to the child.
package sandbox
