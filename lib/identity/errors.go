// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bureau-foundation/authbridge/lib/authschema"
)

// CodeInternal is reported for failures the service did not classify.
const CodeInternal = "internal"

// Error is a failure reported by the identity service.
type Error struct {
	// StatusCode is the HTTP status, or 0 for errors that never
	// crossed HTTP.
	StatusCode int

	Code    string
	Message string
}

func (err *Error) Error() string {
	if err.StatusCode != 0 {
		return fmt.Sprintf("identity: HTTP %d: %s: %s", err.StatusCode, err.Code, err.Message)
	}
	return fmt.Sprintf("identity: %s: %s", err.Code, err.Message)
}

// Errorf returns an *Error with code and a formatted message. The HTTP
// status is derived from code when the error is served.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrorCode returns the code of the first *Error in err's chain, or ""
// if there is none.
func ErrorCode(err error) string {
	var identityErr *Error
	if errors.As(err, &identityErr) {
		return identityErr.Code
	}
	return ""
}

// httpStatus picks the status an error is served with.
func httpStatus(err *Error) int {
	if err.StatusCode != 0 {
		return err.StatusCode
	}
	switch err.Code {
	case CodeInternal:
		return http.StatusInternalServerError
	case authschema.ErrorNotLoggedIn, authschema.ErrorUnacceptableSessionKey,
		authschema.ErrorInvalidKey, authschema.ErrorSessionExpired:
		return http.StatusUnauthorized
	case authschema.ErrorUserIsBanned:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}
