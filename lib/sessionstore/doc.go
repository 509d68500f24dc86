// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessionstore persists the module's session material (session
// token, connection key, user id) between runs so a background login can
// discover an existing session without user interaction.
//
// Three backends implement [Store]:
//
//   - [Memory]: process-local, used by in-process modules and tests.
//   - [File]: one CBOR file written atomically with mode 0600,
//     optionally sealed to age recipients.
//   - [Redis]: one key under a configurable prefix, optionally expiring.
//
// [New] selects a backend from [config.SessionStoreConfig].
package sessionstore
