// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package authschema defines the values that cross the host/module
// boundary: the authenticated identity snapshot, the two status
// streams, guardian-consent registration input, and the error codes
// the login state machine surfaces.
//
// Fields use json tags so the same types serve CBOR frames (which read
// json tags) and the CLI's JSON output.
//
// [LoginStatus] is a partial update: a nil field means "unchanged".
// Consumers fold updates into their view with [LoginStatus.Merge].
// [LoginUIStatus] is the opposite: every emission replaces the
// previous one whole, and its [Page] discriminant selects which fields
// are meaningful.
package authschema
