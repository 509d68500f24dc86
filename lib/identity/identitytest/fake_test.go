// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identitytest

import (
	"context"
	"testing"
	"time"

	"github.com/bureau-foundation/authbridge/lib/authschema"
	"github.com/bureau-foundation/authbridge/lib/clock"
	"github.com/bureau-foundation/authbridge/lib/identity"
)

func newTestFake(t *testing.T, fakeClock clock.Clock) *Fake {
	t.Helper()
	fake, err := NewFake(FakeOptions{Clock: fakeClock, SessionTTL: 24 * time.Hour})
	if err != nil {
		t.Fatalf("NewFake: %v", err)
	}
	return fake
}

func TestValidateAddress(t *testing.T) {
	fake := newTestFake(t, nil)
	tests := []struct {
		address     string
		addressType authschema.AddressType
		want        bool
	}{
		{"a@b.com", authschema.AddressEmail, true},
		{"a@", authschema.AddressEmail, false},
		{"", authschema.AddressEmail, false},
		{"+15551234567", authschema.AddressSMS, true},
		{"15551234567", authschema.AddressSMS, false},
		{"+1 555 1234", authschema.AddressSMS, false},
	}
	for _, test := range tests {
		got, err := fake.ValidateAddress(context.Background(), test.address, test.addressType)
		if err != nil {
			t.Fatalf("ValidateAddress(%q): %v", test.address, err)
		}
		if got != test.want {
			t.Errorf("ValidateAddress(%q, %s) = %v, want %v", test.address, test.addressType, got, test.want)
		}
	}
	if fake.Calls(MethodValidateAddress) != len(tests) {
		t.Errorf("Calls = %d, want %d", fake.Calls(MethodValidateAddress), len(tests))
	}
}

func TestSessionExpires(t *testing.T) {
	fakeClock := clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	fake := newTestFake(t, fakeClock)
	user := fake.AddUser("a@b.com", authschema.AuthData{DisplayName: "Ada"})

	session, err := fake.IssueSession(user.UserID)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if _, err := fake.User(context.Background(), session.Token); err != nil {
		t.Fatalf("User with fresh session: %v", err)
	}

	fakeClock.Advance(25 * time.Hour)
	_, err = fake.User(context.Background(), session.Token)
	if identity.ErrorCode(err) != authschema.ErrorSessionExpired {
		t.Fatalf("User after expiry = %v, want %s", err, authschema.ErrorSessionExpired)
	}
	_, err = fake.ReplaceSession(context.Background(), session.Token)
	if identity.ErrorCode(err) != authschema.ErrorSessionExpired {
		t.Fatalf("ReplaceSession after expiry = %v, want %s", err, authschema.ErrorSessionExpired)
	}
}

func TestChallengeSurvivesWrongCode(t *testing.T) {
	fake := newTestFake(t, nil)
	ctx := context.Background()

	challenge, err := fake.Login(ctx, "+15551234567", authschema.AddressSMS)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if fake.CodesSent("+15551234567") != 1 {
		t.Fatalf("CodesSent = %d", fake.CodesSent("+15551234567"))
	}
	for range 3 {
		if _, err := fake.CompleteLogin(ctx, challenge.ID, "999999"); identity.ErrorCode(err) != authschema.ErrorInvalidCode {
			t.Fatalf("wrong code = %v", err)
		}
	}
	session, err := fake.CompleteLogin(ctx, challenge.ID, DefaultCode)
	if err != nil {
		t.Fatalf("CompleteLogin: %v", err)
	}
	user, err := fake.User(ctx, session.Token)
	if err != nil || user.PhoneNumber != "+15551234567" {
		t.Fatalf("User = %+v, %v", user, err)
	}

	// A used challenge is gone.
	if _, err := fake.CompleteLogin(ctx, challenge.ID, DefaultCode); identity.ErrorCode(err) != authschema.ErrorInvalidCode {
		t.Fatalf("reused challenge = %v", err)
	}
}

func TestQueuedFailures(t *testing.T) {
	fake := newTestFake(t, nil)
	ctx := context.Background()
	user := fake.AddUser("a@b.com", authschema.AuthData{})
	session, err := fake.IssueSession(user.UserID)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	fake.FailRecordKeys(authschema.ErrorInvalidKey)
	if _, err := fake.CreatePublicRecordKey(ctx, session.Token); identity.ErrorCode(err) != authschema.ErrorInvalidKey {
		t.Fatalf("first CreatePublicRecordKey = %v", err)
	}
	if _, err := fake.CreatePublicRecordKey(ctx, session.Token); err != nil {
		t.Fatalf("second CreatePublicRecordKey: %v", err)
	}

	fake.FailReplacements("server_busy")
	if _, err := fake.ReplaceSession(ctx, session.Token); identity.ErrorCode(err) != "server_busy" {
		t.Fatalf("ReplaceSession = %v", err)
	}
	if fake.Revoked(session.Token) {
		t.Fatal("failed replacement revoked the token")
	}
	if got := fake.TotalCalls(); got != 3 {
		t.Fatalf("TotalCalls = %d, want 3", got)
	}
}
