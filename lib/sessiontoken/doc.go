// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessiontoken handles the session tokens issued by the identity
// service and the refresh schedule that keeps them alive.
//
// # Wire format
//
// A session token is a compact JWT signed with EdDSA (Ed25519). The
// auth module treats it as opaque apart from one field: the registered
// exp claim, which [ParseExpiry] reads without verifying the signature.
// A token that does not parse, or parses without exp, reports -1 and is
// always considered expired.
//
// Verification ([Verify]) and minting ([Mint]) belong to the identity
// service; they live here so the in-memory identity service used in
// tests and local development issues tokens with the same shape as the
// real one.
//
// # Refresh
//
// A [Refresher] holds at most one pending timer. Each Schedule call
// cancels the previous timer before arming the next one at
//
//	max(expiry - now - lead, 0)
//
// where lead defaults to [DefaultLead]. The refresh itself (remote
// session replacement, swapping the cached token, persisting it) is the
// caller's concern; the Refresher only decides when.
//
// # Logging
//
// Tokens never appear in logs. [Fingerprint] gives a short BLAKE3 digest
// that identifies a token across log lines without revealing it.
package sessiontoken
