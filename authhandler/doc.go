// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package authhandler is the module side of the authentication bridge.
// It owns the session token and the login state machine, and serves
// both to the host over an RPC connection.
//
// # Login attempts
//
// [Handler.Login] runs one attempt at a time. An attempt first returns
// the cached identity if the held token is still valid (no remote
// calls), then tries to discover a stored session, and only then,
// unless it is a background login, becomes interactive. The
// interactive flow is one of:
//
//   - external tab: a login page opened through [surface.Opener]
//     reports a login, an explicit close (cancel), or vanishes
//     (failure);
//   - custom UI: the host renders enter_address / check_address pages
//     from the UI-status stream and submits an email address or phone
//     number and then a verification code;
//   - guardian consent: the host asks whether the user has an account;
//     yes runs an authorization page, no runs registration with
//     field-by-field validation.
//
// Validation failures and remote rejections re-render the current page
// with an error code and never end the attempt. Every attempt owns one
// cancellation signal; [Handler.CancelLogin] sets it and it wins any
// race against input arriving at the same time. The UI is hidden on
// every exit path except a completed guardian registration, which
// leaves the update-password link up.
//
// # Status streams
//
// Machine status ([authschema.LoginStatus]) and UI status
// ([authschema.LoginUIStatus]) are independent ordered streams.
// Subscribers receive every emission in order, starting with a replay
// of the current state.
//
// # Tokens
//
// A successful login persists the session to a [sessionstore.Store]
// and schedules one refresh through [sessiontoken.Refresher], a week
// before expiry by default. Refresh replaces the session remotely and
// swaps token and connection key together.
package authhandler
