// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessiontoken

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// GenerateKeypair creates a new Ed25519 keypair for token signing.
func GenerateKeypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generating Ed25519 keypair: %w", err)
	}
	return public, private, nil
}
