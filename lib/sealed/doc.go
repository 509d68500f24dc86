// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption for session material at rest.
// It wraps filippo.io/age for the operations the file session store
// needs: generate x25519 keypairs, encrypt to one or more recipients,
// decrypt with an identity, and load identities from an age key file.
//
// Ciphertext is the raw binary age format; the file store writes it
// directly to disk.
//
// Key exports:
//
//   - [GenerateKeypair] -- new age x25519 keypair
//   - [Seal] / [Open] -- encrypt to recipients, decrypt with an identity
//   - [LoadIdentity] -- parse the first identity from an age key file
//   - [ParseRecipient] -- recipient validation for configuration
package sealed
