// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authclient

import (
	"context"

	"github.com/bureau-foundation/authbridge/lib/authschema"
	"github.com/bureau-foundation/authbridge/protocol"
)

// IsLoggedIn reports whether the module holds an unexpired session.
func (h *Helper) IsLoggedIn(ctx context.Context) (bool, error) {
	return invoke(ctx, h, protocol.IsLoggedIn, false)
}

// Authenticate runs an interactive login. It is Login(ctx, false).
func (h *Helper) Authenticate(ctx context.Context) (*authschema.AuthData, error) {
	return h.Login(ctx, false)
}

// Login returns the identity, logging in first if needed. A background
// login never shows UI and returns nil when no session can be found.
// A canceled login also returns nil with no error.
func (h *Helper) Login(ctx context.Context, background bool) (*authschema.AuthData, error) {
	data, err := invoke[*authschema.AuthData](ctx, h, protocol.Login, nil, background)
	if err != nil {
		return nil, err
	}
	if h.Enabled() && h.derivesStatus() {
		h.publish(func(snapshot *Snapshot) {
			snapshot.Status = snapshot.Status.Merge(authschema.LoginStatus{
				IsLoading:   authschema.Bool(false),
				IsLoggingIn: authschema.Bool(false),
				AuthData:    data,
			})
		}, true, false)
	}
	return data, nil
}

// Logout drops the module's session.
func (h *Helper) Logout(ctx context.Context) error {
	if _, err := invoke[any](ctx, h, protocol.Logout, nil); err != nil {
		return err
	}
	if h.Enabled() && h.derivesStatus() {
		h.publish(func(snapshot *Snapshot) {
			snapshot.Status = snapshot.Status.Merge(authschema.LoginStatus{
				Reset:       true,
				IsLoading:   authschema.Bool(false),
				IsLoggingIn: authschema.Bool(false),
			})
		}, true, false)
	}
	return nil
}

// AuthToken returns the session token, "" when logged out.
func (h *Helper) AuthToken(ctx context.Context) (string, error) {
	return invoke(ctx, h, protocol.GetAuthToken, "")
}

// ConnectionKey returns the key issued with the session token.
func (h *Helper) ConnectionKey(ctx context.Context) (string, error) {
	return invoke(ctx, h, protocol.GetConnectionKey, "")
}

// CreatePublicRecordKey issues a key for publishing records. The
// module logs in again, once, if the session is rejected.
func (h *Helper) CreatePublicRecordKey(ctx context.Context) (string, error) {
	return invoke(ctx, h, protocol.CreatePublicRecordKey, "")
}

func (h *Helper) OpenAccountPage(ctx context.Context) error {
	_, err := invoke[any](ctx, h, protocol.OpenAccountPage, nil)
	return err
}

// SetUseCustomUI chooses between the custom UI and the external login
// page for subsequent attempts.
func (h *Helper) SetUseCustomUI(ctx context.Context, enabled bool) error {
	_, err := invoke[any](ctx, h, protocol.SetUseCustomUI, nil, enabled)
	return err
}

func (h *Helper) ProvideEmailAddress(ctx context.Context, email string, acceptedTerms bool) error {
	_, err := invoke[any](ctx, h, protocol.ProvideEmailAddress, nil, email, acceptedTerms)
	return err
}

func (h *Helper) ProvideSMSNumber(ctx context.Context, number string, acceptedTerms bool) error {
	_, err := invoke[any](ctx, h, protocol.ProvideSmsNumber, nil, number, acceptedTerms)
	return err
}

func (h *Helper) ProvideCode(ctx context.Context, code string) error {
	_, err := invoke[any](ctx, h, protocol.ProvideCode, nil, code)
	return err
}

func (h *Helper) ProvideHasAccount(ctx context.Context, hasAccount bool) error {
	_, err := invoke[any](ctx, h, protocol.ProvideHasAccount, nil, hasAccount)
	return err
}

func (h *Helper) ProvideRegistration(ctx context.Context, info authschema.RegistrationInfo) error {
	_, err := invoke[any](ctx, h, protocol.ProvidePrivoSignUpInfo, nil, info)
	return err
}

// CancelLogin cancels the running attempt, or dismisses the page left
// up after one.
func (h *Helper) CancelLogin(ctx context.Context) error {
	_, err := invoke[any](ctx, h, protocol.CancelLogin, nil)
	return err
}

// RecordsOrigin returns the records service origin, falling back to
// the configured one for modules that cannot report it.
func (h *Helper) RecordsOrigin(ctx context.Context) (string, error) {
	return h.origin(ctx, protocol.GetRecordsOrigin, h.host.RecordsOrigin)
}

func (h *Helper) WebsocketOrigin(ctx context.Context) (string, error) {
	return h.origin(ctx, protocol.GetWebsocketOrigin, h.host.WebsocketOrigin)
}

func (h *Helper) WebsocketProtocol(ctx context.Context) (string, error) {
	return h.origin(ctx, protocol.GetWebsocketProtocol, h.host.WebsocketProtocol)
}

// PolicyURLs returns the legal documents to link to, empty for modules
// below version 6.
func (h *Helper) PolicyURLs(ctx context.Context) (authschema.PolicyURLs, error) {
	return invoke(ctx, h, protocol.GetPolicyURLs, authschema.PolicyURLs{})
}

// origin returns what the module reports for capability, or fallback
// when it reports nothing.
func (h *Helper) origin(ctx context.Context, capability protocol.Capability, fallback string) (string, error) {
	value, err := invoke(ctx, h, capability, "")
	if err == nil && value == "" {
		value = fallback
	}
	return value, err
}
