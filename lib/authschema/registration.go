// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authschema

import "time"

// RegistrationInfo is the guardian-consent sign-up form.
type RegistrationInfo struct {
	DisplayName string `json:"displayName"`

	// Name is the legal name.
	Name string `json:"name"`

	// DateOfBirth is zero when not provided.
	DateOfBirth time.Time `json:"dateOfBirth"`

	// Email is required for adults; ParentEmail for minors.
	Email       string `json:"email,omitempty"`
	ParentEmail string `json:"parentEmail,omitempty"`

	AcceptedTerms bool `json:"acceptedTerms"`
}

// AdultAge is the age from which no guardian is involved.
const AdultAge = 18

// Age returns the number of whole years between DateOfBirth and now.
func (r RegistrationInfo) Age(now time.Time) int {
	birth := r.DateOfBirth.In(now.Location())
	years := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}
	return years
}
