// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authhandler

import "github.com/bureau-foundation/authbridge/lib/authschema"

// The Provide methods hand user input to the running attempt. Input
// the attempt is not currently waiting for is dropped; each reports
// whether it was taken.

// ProvideEmailAddress submits an email address on enter_address.
func (h *Handler) ProvideEmailAddress(email string, acceptedTerms bool) bool {
	return h.provideAddress(email, authschema.AddressEmail, acceptedTerms)
}

// ProvideSMSNumber submits a phone number on enter_address. It must
// start with + and a country code.
func (h *Handler) ProvideSMSNumber(number string, acceptedTerms bool) bool {
	return h.provideAddress(number, authschema.AddressSMS, acceptedTerms)
}

func (h *Handler) provideAddress(address string, addressType authschema.AddressType, acceptedTerms bool) bool {
	input := addressInput{
		address:       normalizeAddress(address, addressType),
		addressType:   addressType,
		acceptedTerms: acceptedTerms,
	}
	return submit(h, awaitingAddress, input, func(a *attempt) chan addressInput { return a.addresses })
}

// ProvideCode submits a verification code on check_address.
func (h *Handler) ProvideCode(code string) bool {
	return submit(h, awaitingCode, code, func(a *attempt) chan string { return a.codes })
}

// ProvideHasAccount answers has_account.
func (h *Handler) ProvideHasAccount(hasAccount bool) bool {
	return submit(h, awaitingAccountChoice, hasAccount, func(a *attempt) chan bool { return a.choices })
}

// ProvideRegistration submits the sign-up form on
// enter_privo_account_info.
func (h *Handler) ProvideRegistration(info authschema.RegistrationInfo) bool {
	return submit(h, awaitingRegistration, info, func(a *attempt) chan authschema.RegistrationInfo { return a.registrations })
}
