// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authhandler

import (
	"context"
	"errors"

	"github.com/bureau-foundation/authbridge/lib/authschema"
	"github.com/bureau-foundation/authbridge/lib/identity"
)

// CreatePublicRecordKey issues a key for publishing records under the
// session. A session error forces a logout and an interactive login,
// then the request is retried once; a second failure is returned.
func (h *Handler) CreatePublicRecordKey(ctx context.Context) (string, error) {
	key, err := h.createPublicRecordKey(ctx)
	code := identity.ErrorCode(err)
	if err == nil || !authschema.IsSessionError(code) {
		return key, err
	}

	h.logger.Info("session rejected while creating record key, logging in again", "code", code)
	h.Logout(ctx)
	data, err := h.Login(ctx, false)
	if err != nil {
		return "", err
	}
	if data == nil {
		return "", identity.Errorf(authschema.ErrorNotLoggedIn, "login was canceled")
	}
	return h.createPublicRecordKey(ctx)
}

func (h *Handler) createPublicRecordKey(ctx context.Context) (string, error) {
	token := h.Token()
	if token == "" {
		return "", identity.Errorf(authschema.ErrorNotLoggedIn, "no session")
	}
	return h.identity.CreatePublicRecordKey(ctx, token)
}

// OpenAccountPage shows the account page outside the host.
func (h *Handler) OpenAccountPage(ctx context.Context) error {
	if h.surfaces == nil || h.config.AccountPageURL == "" {
		return errors.New("no account page configured")
	}
	return h.surfaces.Show(ctx, h.config.AccountPageURL)
}

// PolicyURLs returns the legal documents the host should link to.
func (h *Handler) PolicyURLs() authschema.PolicyURLs {
	return authschema.PolicyURLs{
		TermsOfServiceURL: h.config.TermsOfServiceURL,
		PrivacyPolicyURL:  h.config.PrivacyPolicyURL,
	}
}
