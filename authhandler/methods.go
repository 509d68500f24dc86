// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authhandler

import (
	"context"
	"errors"
	"sync"

	"github.com/bureau-foundation/authbridge/channel"
	"github.com/bureau-foundation/authbridge/lib/authschema"
	"github.com/bureau-foundation/authbridge/lib/identity"
	"github.com/bureau-foundation/authbridge/protocol"
	"github.com/bureau-foundation/authbridge/rpc"
)

// method is one entry of the RPC method table.
type method struct {
	name       string
	capability protocol.Capability
	handle     rpc.HandlerFunc
}

// ServeFunc returns a channel.ServeFunc that serves a fresh Handler
// built from options on every channel. Handlers share options.Store,
// so a session outlives the channel that created it.
func ServeFunc(options Options) channel.ServeFunc {
	return func(ctx context.Context, port channel.Port) error {
		handler, err := New(options)
		if err != nil {
			return err
		}
		defer handler.Close()
		return handler.Serve(ctx, port)
	}
}

// Serve answers RPC calls on port until it closes or ctx is canceled.
// Only methods available at the Handler's protocol version are
// registered; the host sees the rest as unknown methods.
func (h *Handler) Serve(ctx context.Context, port channel.Port) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	conn := rpc.New(port, rpc.Options{Logger: h.logger, Metrics: h.metrics})
	pushes := newPusher(conn, h.logger)
	go pushes.run(ctx)
	subscriptions := &subscriptions{}
	defer subscriptions.cancelAll()

	registered := 0
	for _, entry := range h.methodTable(pushes, subscriptions) {
		if !protocol.Supports(h.version, entry.capability) {
			continue
		}
		conn.Handle(entry.name, pushes.ordered(translateErrors(entry.handle)))
		registered++
	}
	// Version 1 modules predate the version query.
	if h.version > protocol.Fallback {
		conn.Handle(protocol.MethodGetVersion, func(context.Context, rpc.Args) (any, error) {
			return h.version, nil
		})
	}
	h.logger.Info("serving auth handler", "version", h.version, "methods", registered)
	return conn.Serve(ctx)
}

func (h *Handler) methodTable(pushes *pusher, subscriptions *subscriptions) []method {
	noArgs := func(fn func(ctx context.Context) (any, error)) rpc.HandlerFunc {
		return func(ctx context.Context, _ rpc.Args) (any, error) { return fn(ctx) }
	}
	value := func(fn func() any) rpc.HandlerFunc {
		return func(context.Context, rpc.Args) (any, error) { return fn(), nil }
	}
	address := func(addressType authschema.AddressType) rpc.HandlerFunc {
		return func(_ context.Context, args rpc.Args) (any, error) {
			var address string
			var acceptedTerms bool
			if err := args.Decode(0, &address); err != nil {
				return nil, err
			}
			if err := args.Decode(1, &acceptedTerms); err != nil {
				return nil, err
			}
			h.provideAddress(address, addressType, acceptedTerms)
			return nil, nil
		}
	}

	return []method{
		{"isLoggedIn", protocol.IsLoggedIn, value(func() any { return h.IsLoggedIn() })},
		{"login", protocol.Login, func(ctx context.Context, args rpc.Args) (any, error) {
			var background bool
			if err := args.Decode(0, &background); err != nil {
				return nil, err
			}
			return h.Login(ctx, background)
		}},
		{"logout", protocol.Logout, noArgs(func(ctx context.Context) (any, error) {
			h.Logout(ctx)
			return nil, nil
		})},
		{"getAuthToken", protocol.GetAuthToken, value(func() any { return h.Token() })},
		{"getConnectionKey", protocol.GetConnectionKey, value(func() any { return h.ConnectionKey() })},
		{"createPublicRecordKey", protocol.CreatePublicRecordKey, noArgs(func(ctx context.Context) (any, error) {
			return h.CreatePublicRecordKey(ctx)
		})},

		{protocol.MethodAddLoginStatusCallback, protocol.StatusCallbacks, func(_ context.Context, args rpc.Args) (any, error) {
			name, err := callbackName(args, protocol.CallbackLoginStatus)
			if err != nil {
				return nil, err
			}
			subscriptions.add(h.OnLoginStatus(func(status authschema.LoginStatus) {
				pushes.enqueue(name, status)
			}))
			return nil, nil
		}},
		{protocol.MethodAddLoginUIStatusCallback, protocol.StatusCallbacks, func(_ context.Context, args rpc.Args) (any, error) {
			name, err := callbackName(args, protocol.CallbackLoginUIStatus)
			if err != nil {
				return nil, err
			}
			subscriptions.add(h.OnLoginUIStatus(func(status authschema.LoginUIStatus) {
				pushes.enqueue(name, status)
			}))
			return nil, nil
		}},
		{"openAccountPage", protocol.OpenAccountPage, noArgs(func(ctx context.Context) (any, error) {
			return nil, h.OpenAccountPage(ctx)
		})},
		{"setUseCustomUI", protocol.SetUseCustomUI, func(_ context.Context, args rpc.Args) (any, error) {
			var enabled bool
			if err := args.Decode(0, &enabled); err != nil {
				return nil, err
			}
			h.SetUseCustomUI(enabled)
			return nil, nil
		}},
		{"provideEmailAddress", protocol.ProvideEmailAddress, address(authschema.AddressEmail)},
		{"provideCode", protocol.ProvideCode, func(_ context.Context, args rpc.Args) (any, error) {
			var code string
			if err := args.Decode(0, &code); err != nil {
				return nil, err
			}
			h.ProvideCode(code)
			return nil, nil
		}},
		{"cancelLogin", protocol.CancelLogin, value(func() any {
			h.CancelLogin()
			return nil
		})},

		{"provideSmsNumber", protocol.ProvideSmsNumber, address(authschema.AddressSMS)},

		{"getRecordsOrigin", protocol.GetRecordsOrigin, value(func() any { return h.config.RecordsOrigin })},

		{"getWebsocketOrigin", protocol.GetWebsocketOrigin, value(func() any { return h.config.WebsocketOrigin })},
		{"getWebsocketProtocol", protocol.GetWebsocketProtocol, value(func() any { return h.config.WebsocketProtocol })},

		{"provideHasAccount", protocol.ProvideHasAccount, func(_ context.Context, args rpc.Args) (any, error) {
			var hasAccount bool
			if err := args.Decode(0, &hasAccount); err != nil {
				return nil, err
			}
			h.ProvideHasAccount(hasAccount)
			return nil, nil
		}},
		{"providePrivoSignUpInfo", protocol.ProvidePrivoSignUpInfo, func(_ context.Context, args rpc.Args) (any, error) {
			var info authschema.RegistrationInfo
			if err := args.Decode(0, &info); err != nil {
				return nil, err
			}
			h.ProvideRegistration(info)
			return nil, nil
		}},
		{"getPolicyUrls", protocol.GetPolicyURLs, value(func() any { return h.PolicyURLs() })},
	}
}

// callbackName reads the optional callback name argument.
func callbackName(args rpc.Args, fallback string) (string, error) {
	name := fallback
	if err := args.Decode(0, &name); err != nil {
		return "", err
	}
	if name == "" {
		return "", rpc.Errorf(rpc.CodeBadRequest, "callback name is empty")
	}
	return name, nil
}

// translateErrors turns identity service errors into RPC errors that
// keep their code.
func translateErrors(handle rpc.HandlerFunc) rpc.HandlerFunc {
	return func(ctx context.Context, args rpc.Args) (any, error) {
		result, err := handle(ctx, args)
		var identityErr *identity.Error
		if errors.As(err, &identityErr) {
			return nil, &rpc.Error{Code: identityErr.Code, Message: identityErr.Message}
		}
		return result, err
	}
}

// subscriptions collects the status subscriptions of one connection.
type subscriptions struct {
	mutex   sync.Mutex
	cancels []func()
}

func (s *subscriptions) add(cancel func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.cancels = append(s.cancels, cancel)
}

func (s *subscriptions) cancelAll() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
}
