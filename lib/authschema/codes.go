// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authschema

// Validation codes. The handler checks these locally and re-renders
// the current page with the first failing one.
const (
	ErrorTermsNotAccepted       = "terms_not_accepted"
	ErrorEmailNotProvided       = "email_not_provided"
	ErrorSMSNotProvided         = "sms_not_provided"
	ErrorInvalidEmail           = "invalid_email"
	ErrorInvalidSMS             = "invalid_sms"
	ErrorDisplayNameNotProvided = "display_name_not_provided"
	ErrorNameNotProvided        = "name_not_provided"
	ErrorDateOfBirthNotProvided = "date_of_birth_not_provided"
	ErrorInvalidDateOfBirth     = "invalid_date_of_birth"
	ErrorParentEmailRequired    = "parent_email_required"
	ErrorInvalidParentEmail     = "invalid_parent_email"
)

// Remote rejection codes. Recoverable: the page that accepts a new
// submission is shown again.
const (
	ErrorUnacceptableAddress     = "unacceptable_address"
	ErrorAddressTypeNotSupported = "address_type_not_supported"
	ErrorUserIsBanned            = "user_is_banned"
	ErrorInvalidCode             = "invalid_code"
)

// Session error codes. An authenticated operation failing with one of
// these forces a logout and a single retry after re-authenticating.
const (
	ErrorNotLoggedIn            = "not_logged_in"
	ErrorUnacceptableSessionKey = "unacceptable_session_key"
	ErrorInvalidKey             = "invalid_key"
	ErrorSessionExpired         = "session_expired"
)

// Attempt-level codes.
const (
	// ErrorLoginFailed terminates an attempt (external surface closed
	// unexpectedly, authorization exchange failed).
	ErrorLoginFailed = "login_failed"

	// ErrorNotCompleted from the authorization exchange means the user
	// closed the surface without finishing; it cancels the attempt.
	ErrorNotCompleted = "not_completed"
)

// IsSessionError reports whether code is one of the session error
// codes.
func IsSessionError(code string) bool {
	switch code {
	case ErrorNotLoggedIn, ErrorUnacceptableSessionKey, ErrorInvalidKey, ErrorSessionExpired:
		return true
	}
	return false
}

// errorMessages are the human-readable forms shown next to a code.
var errorMessages = map[string]string{
	ErrorTermsNotAccepted:        "You must accept the terms of service.",
	ErrorEmailNotProvided:        "Enter an email address.",
	ErrorSMSNotProvided:          "Enter a phone number.",
	ErrorInvalidEmail:            "That email address is not valid.",
	ErrorInvalidSMS:              "Enter the phone number with its country code, starting with +.",
	ErrorDisplayNameNotProvided:  "Enter a display name.",
	ErrorNameNotProvided:         "Enter your name.",
	ErrorDateOfBirthNotProvided:  "Enter your date of birth.",
	ErrorInvalidDateOfBirth:      "The date of birth cannot be in the future.",
	ErrorParentEmailRequired:     "A parent or guardian's email address is required.",
	ErrorInvalidParentEmail:      "The parent or guardian's email address is not valid.",
	ErrorUnacceptableAddress:     "That address cannot be used.",
	ErrorAddressTypeNotSupported: "That kind of address is not supported.",
	ErrorUserIsBanned:            "This account has been banned.",
	ErrorInvalidCode:             "That code is not correct.",
	ErrorLoginFailed:             "Login failed",
}

// ErrorMessage returns the human-readable message for code, or code
// itself when there is none.
func ErrorMessage(code string) string {
	if message, ok := errorMessages[code]; ok {
		return message
	}
	return code
}
