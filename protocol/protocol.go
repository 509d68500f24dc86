// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"context"
	"log/slog"
	"time"
)

// Current is the version this module implementation reports.
const Current = 6

// Fallback is assumed when the module cannot report a version.
const Fallback = 1

// MethodGetVersion is the RPC method the negotiation calls.
const MethodGetVersion = "getProtocolVersion"

// Subscription methods behind StatusCallbacks. Each takes the name of
// a callback the host registered; the module pushes the stream to it.
const (
	MethodAddLoginStatusCallback   = "addLoginStatusCallback"
	MethodAddLoginUIStatusCallback = "addLoginUiStatusCallback"
)

// Callback names the facade registers for the two status streams.
const (
	CallbackLoginStatus   = "loginStatus"
	CallbackLoginUIStatus = "loginUIStatus"
)

// NegotiateTimeout bounds the version query.
const NegotiateTimeout = 5 * time.Second

// Capability names one gated remote operation or feature. Values are
// the RPC method names where one exists.
type Capability string

const (
	IsLoggedIn            Capability = "isLoggedIn"
	Login                 Capability = "login"
	Logout                Capability = "logout"
	GetAuthToken          Capability = "getAuthToken"
	GetConnectionKey      Capability = "getConnectionKey"
	CreatePublicRecordKey Capability = "createPublicRecordKey"

	// StatusCallbacks covers addLoginStatusCallback and
	// addLoginUiStatusCallback.
	StatusCallbacks     Capability = "statusCallbacks"
	OpenAccountPage     Capability = "openAccountPage"
	SetUseCustomUI      Capability = "setUseCustomUI"
	ProvideEmailAddress Capability = "provideEmailAddress"
	ProvideCode         Capability = "provideCode"
	CancelLogin         Capability = "cancelLogin"

	ProvideSmsNumber Capability = "provideSmsNumber"

	GetRecordsOrigin Capability = "getRecordsOrigin"

	GetWebsocketOrigin   Capability = "getWebsocketOrigin"
	GetWebsocketProtocol Capability = "getWebsocketProtocol"

	ProvideHasAccount      Capability = "provideHasAccount"
	ProvidePrivoSignUpInfo Capability = "providePrivoSignUpInfo"
	GetPolicyURLs          Capability = "getPolicyUrls"
)

// MinimumVersion is the capability table. A capability absent from the
// table is never supported.
var MinimumVersion = map[Capability]int{
	IsLoggedIn:            1,
	Login:                 1,
	Logout:                1,
	GetAuthToken:          1,
	GetConnectionKey:      1,
	CreatePublicRecordKey: 1,

	StatusCallbacks:     2,
	OpenAccountPage:     2,
	SetUseCustomUI:      2,
	ProvideEmailAddress: 2,
	ProvideCode:         2,
	CancelLogin:         2,

	ProvideSmsNumber: 3,

	GetRecordsOrigin: 4,

	GetWebsocketOrigin:   5,
	GetWebsocketProtocol: 5,

	ProvideHasAccount:      6,
	ProvidePrivoSignUpInfo: 6,
	GetPolicyURLs:          6,
}

// Supports reports whether a module at version offers capability.
func Supports(version int, capability Capability) bool {
	minimum, ok := MinimumVersion[capability]
	return ok && version >= minimum
}

// Caller is the part of an RPC connection negotiation needs.
type Caller interface {
	Call(ctx context.Context, method string, result any, args ...any) error
}

// Negotiate asks the module for its version. It never fails: problems
// are logged and produce Fallback. Reported values below Fallback are
// raised to it.
func Negotiate(ctx context.Context, caller Caller, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithTimeout(ctx, NegotiateTimeout)
	defer cancel()

	var version int
	if err := caller.Call(ctx, MethodGetVersion, &version); err != nil {
		logger.Warn("protocol version query failed, assuming version 1", "error", err)
		return Fallback
	}
	if version < Fallback {
		logger.Warn("module reported an invalid protocol version, assuming version 1", "reported", version)
		return Fallback
	}
	logger.Debug("protocol negotiated", "version", version)
	return version
}
