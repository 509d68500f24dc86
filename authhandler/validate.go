// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authhandler

import (
	"context"
	"strings"

	"github.com/bureau-foundation/authbridge/lib/authschema"
)

// checkAddress runs the address checks in order: terms, presence,
// the SMS country-code gate, whether SMS is enabled at all, then the
// remote format check. It returns the first failing code, or an error
// when the remote check itself could not be made.
func (h *Handler) checkAddress(ctx context.Context, input addressInput) (string, error) {
	sms := input.addressType == authschema.AddressSMS
	if !input.acceptedTerms {
		return authschema.ErrorTermsNotAccepted, nil
	}
	if input.address == "" {
		if sms {
			return authschema.ErrorSMSNotProvided, nil
		}
		return authschema.ErrorEmailNotProvided, nil
	}
	if sms && !strings.HasPrefix(input.address, "+") {
		return authschema.ErrorInvalidSMS, nil
	}
	if sms && !h.config.EnableSMS {
		return authschema.ErrorAddressTypeNotSupported, nil
	}

	valid, err := h.identity.ValidateAddress(ctx, input.address, input.addressType)
	if err != nil {
		if code := remoteRejection(err); code != "" {
			return code, nil
		}
		return "", err
	}
	if !valid {
		if sms {
			return authschema.ErrorInvalidSMS, nil
		}
		return authschema.ErrorInvalidEmail, nil
	}
	return "", nil
}

// checkRegistration validates a guardian-consent sign-up form and
// returns the first failing code. Minors need a parent email; adults
// need their own email and accepted terms.
func (h *Handler) checkRegistration(info authschema.RegistrationInfo) string {
	now := h.clock.Now()
	switch {
	case strings.TrimSpace(info.DisplayName) == "":
		return authschema.ErrorDisplayNameNotProvided
	case strings.TrimSpace(info.Name) == "":
		return authschema.ErrorNameNotProvided
	case info.DateOfBirth.IsZero():
		return authschema.ErrorDateOfBirthNotProvided
	case info.DateOfBirth.After(now):
		return authschema.ErrorInvalidDateOfBirth
	}

	if info.Age(now) < authschema.AdultAge {
		if info.ParentEmail == "" {
			return authschema.ErrorParentEmailRequired
		}
	} else {
		if info.Email == "" {
			return authschema.ErrorEmailNotProvided
		}
		if !info.AcceptedTerms {
			return authschema.ErrorTermsNotAccepted
		}
	}

	if info.Email != "" && h.validate.Var(info.Email, "email") != nil {
		return authschema.ErrorInvalidEmail
	}
	if info.ParentEmail != "" && h.validate.Var(info.ParentEmail, "email") != nil {
		return authschema.ErrorInvalidParentEmail
	}
	return ""
}

// normalizeAddress trims what users commonly paste around an address.
func normalizeAddress(address string, addressType authschema.AddressType) string {
	address = strings.TrimSpace(address)
	if addressType == authschema.AddressSMS {
		address = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(address)
	}
	return address
}
