// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"

	"github.com/bureau-foundation/authbridge/lib/authschema"
)

// Service is the remote identity service.
type Service interface {
	// ValidateAddress reports whether address is acceptable in format
	// for addressType. It sends nothing to the address.
	ValidateAddress(ctx context.Context, address string, addressType authschema.AddressType) (bool, error)

	// Login sends a verification code to address.
	Login(ctx context.Context, address string, addressType authschema.AddressType) (Challenge, error)

	// CompleteLogin exchanges a verification code for a session.
	CompleteLogin(ctx context.Context, challengeID, code string) (Session, error)

	// User returns the identity behind a session token.
	User(ctx context.Context, token string) (authschema.AuthData, error)

	// ReplaceSession exchanges a live session token for a fresh one.
	ReplaceSession(ctx context.Context, token string) (Session, error)

	// RevokeSession invalidates a session token.
	RevokeSession(ctx context.Context, token string) error

	// RequestOAuthLogin starts an authorization exchange whose URL the
	// user opens in an external surface.
	RequestOAuthLogin(ctx context.Context) (OAuthRequest, error)

	// CompleteOAuthLogin finishes the exchange once the surface has
	// closed. It fails with ErrorNotCompleted if the user never
	// approved it.
	CompleteOAuthLogin(ctx context.Context, requestID string) (Session, error)

	// RegisterGuardianConsent creates an account through the
	// guardian-consent provider.
	RegisterGuardianConsent(ctx context.Context, info authschema.RegistrationInfo) (Registration, error)

	// CreatePublicRecordKey issues a key for publishing public records.
	CreatePublicRecordKey(ctx context.Context, token string) (string, error)
}

// Session is a session token and the connection key issued with it.
type Session struct {
	Token         string `json:"token"`
	ConnectionKey string `json:"connectionKey"`
}

// Challenge identifies a verification code that has been sent.
type Challenge struct {
	ID string `json:"challengeId"`
}

// OAuthRequest is a pending authorization exchange.
type OAuthRequest struct {
	ID               string `json:"requestId"`
	AuthorizationURL string `json:"authorizationUrl"`
}

// Registration is the result of a guardian-consent sign-up.
type Registration struct {
	Session

	// UpdatePasswordURL is where the new user sets a password.
	UpdatePasswordURL string `json:"updatePasswordUrl"`
}
