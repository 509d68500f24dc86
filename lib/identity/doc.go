// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity is the auth module's view of the remote identity
// service: the server that verifies addresses, sends verification codes,
// issues session tokens, and registers guardian-consent accounts.
//
// [Service] is the interface the auth handler depends on. [Client]
// implements it over the service's JSON HTTP API (version 2); [Handler]
// serves the same API from any Service, which lets the in-memory
// implementation in identitytest stand in for the real server in tests
// and local development.
//
// # Errors
//
// The service reports failures as
//
//	{"success": false, "errorCode": "...", "errorMessage": "..."}
//
// which the client turns into an [*Error]. [ErrorCode] extracts the code
// from any error chain; the auth handler routes on it (validation and
// rejection codes go to the UI status, session codes trigger a forced
// logout).
package identity
