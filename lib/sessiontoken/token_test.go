// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessiontoken

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

var issuedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func testKeypair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	public, private, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	return public, private
}

func mintToken(t *testing.T, private ed25519.PrivateKey, ttl time.Duration) string {
	t.Helper()
	token, err := Mint(private, MintOptions{Subject: "user-1", Issuer: "identity.test", IssuedAt: issuedAt, TTL: ttl})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	return token
}

func TestMintAndVerify(t *testing.T) {
	public, private := testKeypair(t)
	token := mintToken(t, private, 30*24*time.Hour)

	claims, err := Verify(public, token, issuedAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("Subject = %q, want user-1", claims.Subject)
	}
	if claims.Issuer != "identity.test" {
		t.Errorf("Issuer = %q, want identity.test", claims.Issuer)
	}
	if claims.ID == "" || claims.ID != TokenID(token) {
		t.Errorf("ID = %q, TokenID = %q", claims.ID, TokenID(token))
	}
}

func TestMintGivesEachTokenItsOwnID(t *testing.T) {
	_, private := testKeypair(t)
	first := mintToken(t, private, time.Hour)
	second := mintToken(t, private, time.Hour)
	if TokenID(first) == TokenID(second) {
		t.Fatalf("two tokens share ID %q", TokenID(first))
	}
}

func TestMintRejectsNonPositiveTTL(t *testing.T) {
	_, private := testKeypair(t)
	if _, err := Mint(private, MintOptions{Subject: "user-1", IssuedAt: issuedAt}); err == nil {
		t.Fatal("Mint with zero TTL succeeded")
	}
}

func TestVerifyExpired(t *testing.T) {
	public, private := testKeypair(t)
	token := mintToken(t, private, time.Hour)

	_, err := Verify(public, token, issuedAt.Add(2*time.Hour))
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Verify after expiry = %v, want ErrTokenExpired", err)
	}
}

func TestVerifyWrongKey(t *testing.T) {
	_, private := testKeypair(t)
	otherPublic, _ := testKeypair(t)
	token := mintToken(t, private, time.Hour)

	_, err := Verify(otherPublic, token, issuedAt)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Verify with wrong key = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyTamperedPayload(t *testing.T) {
	public, private := testKeypair(t)
	token := mintToken(t, private, time.Hour)

	parts := strings.Split(token, ".")
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	tampered := strings.Replace(string(payload), "user-1", "user-2", 1)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(tampered))

	if _, err := Verify(public, strings.Join(parts, "."), issuedAt); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Verify tampered = %v, want ErrInvalidToken", err)
	}
	// Expiry extraction does not care about the signature.
	if ParseExpiry(strings.Join(parts, ".")) != issuedAt.Add(time.Hour).UnixMilli() {
		t.Fatal("ParseExpiry changed after payload edit")
	}
}

func TestParseExpiry(t *testing.T) {
	_, private := testKeypair(t)

	unsignedNoExpiry := strings.Join([]string{
		base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`)),
		base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"user-1"}`)),
		"",
	}, ".")
	stringExpiry := strings.Join([]string{
		base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`)),
		base64.RawURLEncoding.EncodeToString([]byte(`{"exp":"tomorrow"}`)),
		"",
	}, ".")

	tests := []struct {
		name  string
		token string
		want  int64
	}{
		{"minted", mintToken(t, private, 90*time.Minute), issuedAt.Add(90 * time.Minute).UnixMilli()},
		{"empty", "", -1},
		{"garbage", "not-a-token", -1},
		{"two segments", "abc.def", -1},
		{"no exp claim", unsignedNoExpiry, -1},
		{"exp not a number", stringExpiry, -1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := ParseExpiry(test.token); got != test.want {
				t.Fatalf("ParseExpiry = %d, want %d", got, test.want)
			}
		})
	}
}

func TestValid(t *testing.T) {
	_, private := testKeypair(t)
	token := mintToken(t, private, time.Hour)

	if !Valid(token, issuedAt) {
		t.Error("fresh token reported invalid")
	}
	if Valid(token, issuedAt.Add(time.Hour)) {
		t.Error("token valid at its own expiry")
	}
	if Valid("garbage", issuedAt) {
		t.Error("unparsable token reported valid")
	}
}

func TestFingerprint(t *testing.T) {
	_, private := testKeypair(t)
	token := mintToken(t, private, time.Hour)

	fingerprint := Fingerprint(token)
	if len(fingerprint) != 16 {
		t.Fatalf("Fingerprint length = %d, want 16", len(fingerprint))
	}
	if strings.Contains(token, fingerprint) {
		t.Fatal("fingerprint is a substring of the token")
	}
	if Fingerprint(token) != fingerprint {
		t.Fatal("Fingerprint is not deterministic")
	}
	if Fingerprint(mintToken(t, private, time.Hour)) == fingerprint {
		t.Fatal("different tokens share a fingerprint")
	}
	if Fingerprint("") != "" {
		t.Fatal("empty token has a fingerprint")
	}
}
