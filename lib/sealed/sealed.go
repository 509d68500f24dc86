// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
)

// Keypair is an age x25519 keypair in its string encodings.
type Keypair struct {
	// Identity is the secret key in AGE-SECRET-KEY-1... format. Never
	// log it.
	Identity string

	// Recipient is the public key in age1... format.
	Recipient string
}

// GenerateKeypair generates a new age x25519 keypair.
func GenerateKeypair() (Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return Keypair{}, fmt.Errorf("generating age keypair: %w", err)
	}
	return Keypair{
		Identity:  identity.String(),
		Recipient: identity.Recipient().String(),
	}, nil
}

// Seal encrypts plaintext to every recipient in recipientKeys (age1...
// strings). At least one recipient is required.
func Seal(plaintext []byte, recipientKeys []string) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, errors.New("at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := ParseRecipient(key)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return ciphertext.Bytes(), nil
}

// Open decrypts ciphertext produced by Seal with identity.
func Open(ciphertext []byte, identity age.Identity) ([]byte, error) {
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	return plaintext, nil
}

// ParseIdentity parses an AGE-SECRET-KEY-1... string.
func ParseIdentity(key string) (age.Identity, error) {
	identity, err := age.ParseX25519Identity(key)
	if err != nil {
		return nil, fmt.Errorf("invalid age identity: %w", err)
	}
	return identity, nil
}

// ParseRecipient parses an age1... public key.
func ParseRecipient(key string) (age.Recipient, error) {
	recipient, err := age.ParseX25519Recipient(key)
	if err != nil {
		return nil, fmt.Errorf("invalid age recipient %q: %w", key, err)
	}
	return recipient, nil
}

// LoadIdentity reads an age key file (as written by age-keygen) and
// returns its first identity. Comment lines are ignored.
func LoadIdentity(path string) (age.Identity, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening identity file: %w", err)
	}
	defer file.Close()

	identities, err := age.ParseIdentities(file)
	if err != nil {
		return nil, fmt.Errorf("parsing identity file %s: %w", path, err)
	}
	return identities[0], nil
}
