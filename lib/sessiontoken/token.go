// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessiontoken

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// Errors returned by Verify.
var (
	ErrInvalidToken = errors.New("sessiontoken: invalid token")
	ErrTokenExpired = errors.New("sessiontoken: token has expired")
)

// Claims is the payload of a session token.
type Claims = jwt.RegisteredClaims

// MintOptions describes a token to mint.
type MintOptions struct {
	// Subject is the user id.
	Subject string

	// Issuer names the identity service.
	Issuer string

	IssuedAt time.Time
	TTL      time.Duration
}

// unverified parses without checking signatures or time claims.
var unverified = jwt.NewParser()

// Mint signs a new session token. Each token gets a fresh random ID
// (the jti claim) so it can be revoked individually.
func Mint(privateKey ed25519.PrivateKey, options MintOptions) (string, error) {
	if options.TTL <= 0 {
		return "", fmt.Errorf("sessiontoken: TTL must be positive, got %s", options.TTL)
	}
	claims := Claims{
		ID:        uuid.NewString(),
		Subject:   options.Subject,
		Issuer:    options.Issuer,
		IssuedAt:  jwt.NewNumericDate(options.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(options.IssuedAt.Add(options.TTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(privateKey)
	if err != nil {
		return "", fmt.Errorf("sessiontoken: signing: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of token at now and returns its
// claims.
func Verify(publicKey ed25519.PublicKey, token string, now time.Time) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return publicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	switch {
	case err == nil:
		return &claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
}

// Expiry returns the expiry embedded in token. The signature is not
// checked. ok is false when token does not parse or carries no expiry.
func Expiry(token string) (expiry time.Time, ok bool) {
	if token == "" {
		return time.Time{}, false
	}
	var claims Claims
	if _, _, err := unverified.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// ParseExpiry returns the expiry embedded in token as Unix milliseconds,
// or -1 when there is none.
func ParseExpiry(token string) int64 {
	expiry, ok := Expiry(token)
	if !ok {
		return -1
	}
	return expiry.UnixMilli()
}

// Valid reports whether token carries an expiry later than now.
func Valid(token string, now time.Time) bool {
	expiry := ParseExpiry(token)
	return expiry >= 0 && expiry > now.UnixMilli()
}

// TokenID returns the jti claim of token without verifying it.
func TokenID(token string) string {
	var claims Claims
	if _, _, err := unverified.ParseUnverified(token, &claims); err != nil {
		return ""
	}
	return claims.ID
}

// Fingerprint returns a short digest of token for log lines. The empty
// token has the empty fingerprint.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := blake3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}
