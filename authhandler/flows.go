// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authhandler

import (
	"context"

	"github.com/bureau-foundation/authbridge/lib/authschema"
	"github.com/bureau-foundation/authbridge/lib/identity"
	"github.com/bureau-foundation/authbridge/lib/surface"
)

// page returns a status for p carrying the legal echo fields and, if
// code is set, the error.
func (h *Handler) page(p authschema.Page, code string) authschema.LoginUIStatus {
	status := authschema.LoginUIStatus{
		Page:              p,
		SiteName:          h.config.SiteName,
		TermsOfServiceURL: h.config.TermsOfServiceURL,
		PrivacyPolicyURL:  h.config.PrivacyPolicyURL,
	}
	if p == authschema.PageEnterAddress {
		status.SupportsSMS = h.config.EnableSMS
	}
	if code != "" {
		status.ErrorCode = code
		status.ErrorMessage = authschema.ErrorMessage(code)
	}
	return status
}

// remoteRejection returns the code to show for a failed remote call,
// or "" when the failure is not something the user can act on.
func remoteRejection(err error) string {
	code := identity.ErrorCode(err)
	if code == identity.CodeInternal {
		return ""
	}
	return code
}

// addressFlow is AwaitingAddress and AwaitingVerificationCode.
func (h *Handler) addressFlow(ctx context.Context, current *attempt) (flowOutcome, error) {
	errorCode := ""
	for {
		h.expect(current, awaitingAddress)
		if !h.showPage(current, h.page(authschema.PageEnterAddress, errorCode)) {
			return flowOutcome{}, errCanceled
		}
		input, err := await(ctx, h, current, current.addresses)
		if err != nil {
			return flowOutcome{}, err
		}

		errorCode, err = h.checkAddress(ctx, input)
		if current.isCanceled() {
			return flowOutcome{}, errCanceled
		}
		if err != nil {
			current.logger.Warn("address validation failed", "error", err)
			return flowOutcome{}, loginFailed()
		}
		if errorCode != "" {
			continue
		}

		challenge, err := h.identity.Login(ctx, input.address, input.addressType)
		if current.isCanceled() {
			return flowOutcome{}, errCanceled
		}
		if err != nil {
			if errorCode = remoteRejection(err); errorCode != "" {
				current.logger.Info("address rejected", "code", errorCode)
				continue
			}
			current.logger.Warn("sending verification code failed", "error", err)
			return flowOutcome{}, loginFailed()
		}

		session, code, err := h.verificationFlow(ctx, current, input, challenge)
		if err != nil {
			return flowOutcome{}, err
		}
		if code != "" {
			// Rejected for a reason a new address may fix.
			errorCode = code
			continue
		}
		return flowOutcome{session: session}, nil
	}
}

// verificationFlow is AwaitingVerificationCode. It returns a session,
// or a code that sends the user back to address entry.
func (h *Handler) verificationFlow(ctx context.Context, current *attempt, input addressInput, challenge identity.Challenge) (identity.Session, string, error) {
	errorCode := ""
	for {
		status := h.page(authschema.PageCheckAddress, errorCode)
		status.Address = input.address
		status.AddressType = input.addressType
		status.EnterCode = true
		h.expect(current, awaitingCode)
		if !h.showPage(current, status) {
			return identity.Session{}, "", errCanceled
		}
		code, err := await(ctx, h, current, current.codes)
		if err != nil {
			return identity.Session{}, "", err
		}

		session, err := h.identity.CompleteLogin(ctx, challenge.ID, code)
		if current.isCanceled() {
			return identity.Session{}, "", errCanceled
		}
		switch rejection := remoteRejection(err); {
		case err == nil:
			return session, "", nil
		case rejection == authschema.ErrorInvalidCode:
			errorCode = rejection
		case rejection != "":
			return identity.Session{}, rejection, nil
		default:
			current.logger.Warn("verifying code failed", "error", err)
			return identity.Session{}, "", loginFailed()
		}
	}
}

// externalTabFlow is AwaitingExternalTab.
func (h *Handler) externalTabFlow(ctx context.Context, current *attempt) (flowOutcome, error) {
	if h.surfaces == nil || h.config.LoginPageURL == "" {
		current.logger.Warn("no login page configured for the external tab flow")
		return flowOutcome{}, loginFailed()
	}
	tab, err := h.surfaces.Open(ctx, h.config.LoginPageURL)
	if err != nil {
		current.logger.Warn("opening login page", "error", err)
		return flowOutcome{}, loginFailed()
	}
	defer tab.Close()

	var event surface.Event
	var reported bool
	select {
	case event, reported = <-tab.Events():
	case <-current.canceled:
		return flowOutcome{}, errCanceled
	case <-ctx.Done():
		return flowOutcome{}, errCanceled
	}
	if current.isCanceled() {
		return flowOutcome{}, errCanceled
	}
	if !reported {
		current.logger.Warn("login page closed unexpectedly")
		return flowOutcome{}, loginFailed()
	}
	if event.Kind == surface.EventClose {
		return flowOutcome{}, errCanceled
	}

	session := identity.Session{Token: event.Token, ConnectionKey: event.ConnectionKey}
	if session.Token == "" {
		// The page signed in without handing the session over: it
		// must be in the shared store.
		stored, ok, err := h.store.Load(ctx)
		if err != nil || !ok {
			current.logger.Warn("login page reported a login but no session is available", "error", err)
			return flowOutcome{}, loginFailed()
		}
		session = identity.Session{Token: stored.Token, ConnectionKey: stored.ConnectionKey}
	}
	return flowOutcome{session: session, userID: event.UserID}, nil
}

// guardianFlow is AwaitingAccountChoice and what follows it.
func (h *Handler) guardianFlow(ctx context.Context, current *attempt) (flowOutcome, error) {
	h.expect(current, awaitingAccountChoice)
	if !h.showPage(current, h.page(authschema.PageHasAccount, "")) {
		return flowOutcome{}, errCanceled
	}
	hasAccount, err := await(ctx, h, current, current.choices)
	if err != nil {
		return flowOutcome{}, err
	}
	if hasAccount {
		return h.authorizationFlow(ctx, current)
	}
	return h.registrationFlow(ctx, current)
}

// authorizationFlow is the OAuth variant of AwaitingExternalTab: the
// authorization page is shown until it closes, then the exchange is
// completed.
func (h *Handler) authorizationFlow(ctx context.Context, current *attempt) (flowOutcome, error) {
	request, err := h.identity.RequestOAuthLogin(ctx)
	if current.isCanceled() {
		return flowOutcome{}, errCanceled
	}
	if err != nil {
		current.logger.Warn("requesting authorization", "error", err)
		return flowOutcome{}, loginFailed()
	}
	if h.surfaces == nil {
		current.logger.Warn("no surface opener for the authorization page")
		return flowOutcome{}, loginFailed()
	}

	status := h.page(authschema.PageShowIframe, "")
	status.IframeURL = request.AuthorizationURL
	if !h.showPage(current, status) {
		return flowOutcome{}, errCanceled
	}
	tab, err := h.surfaces.Open(ctx, request.AuthorizationURL)
	if err != nil {
		current.logger.Warn("opening authorization page", "error", err)
		return flowOutcome{}, loginFailed()
	}
	defer tab.Close()

	// Whatever the page reports, the exchange decides the outcome.
	select {
	case <-tab.Events():
	case <-current.canceled:
		return flowOutcome{}, errCanceled
	case <-ctx.Done():
		return flowOutcome{}, errCanceled
	}
	if current.isCanceled() {
		return flowOutcome{}, errCanceled
	}

	session, err := h.identity.CompleteOAuthLogin(ctx, request.ID)
	if current.isCanceled() {
		return flowOutcome{}, errCanceled
	}
	switch {
	case err == nil:
		return flowOutcome{session: session}, nil
	case identity.ErrorCode(err) == authschema.ErrorNotCompleted:
		return flowOutcome{}, errCanceled
	default:
		current.logger.Warn("completing authorization", "error", err)
		return flowOutcome{}, loginFailed()
	}
}

// registrationFlow is AwaitingRegistrationInfo. Remote rejections
// loop back for a new submission indefinitely.
func (h *Handler) registrationFlow(ctx context.Context, current *attempt) (flowOutcome, error) {
	errorCode := ""
	for {
		h.expect(current, awaitingRegistration)
		if !h.showPage(current, h.page(authschema.PageEnterPrivoAccountInfo, errorCode)) {
			return flowOutcome{}, errCanceled
		}
		info, err := await(ctx, h, current, current.registrations)
		if err != nil {
			return flowOutcome{}, err
		}

		if errorCode = h.checkRegistration(info); errorCode != "" {
			continue
		}

		registration, err := h.identity.RegisterGuardianConsent(ctx, info)
		if current.isCanceled() {
			return flowOutcome{}, errCanceled
		}
		if err != nil {
			errorCode = identity.ErrorCode(err)
			if errorCode == "" {
				errorCode = identity.CodeInternal
			}
			current.logger.Info("registration rejected", "code", errorCode, "error", err)
			continue
		}
		return flowOutcome{
			session:           registration.Session,
			updatePasswordURL: registration.UpdatePasswordURL,
		}, nil
	}
}
