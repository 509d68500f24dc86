// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bureau-foundation/authbridge/lib/authschema"
	"github.com/bureau-foundation/authbridge/lib/netutil"
)

// Handler serves the identity HTTP API from service.
func Handler(service Service, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &server{service: service, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathValidateAddress, s.validateAddress)
	mux.HandleFunc("POST "+PathLogin, s.login)
	mux.HandleFunc("POST "+PathCompleteLogin, s.completeLogin)
	mux.HandleFunc("GET "+PathUser, s.user)
	mux.HandleFunc("POST "+PathReplaceSession, s.replaceSession)
	mux.HandleFunc("POST "+PathRevokeSession, s.revokeSession)
	mux.HandleFunc("POST "+PathRequestOAuth, s.requestOAuth)
	mux.HandleFunc("POST "+PathCompleteOAuth, s.completeOAuth)
	mux.HandleFunc("POST "+PathRegisterPrivo, s.registerPrivo)
	mux.HandleFunc("POST "+PathPublicRecordKey, s.publicRecordKey)
	return mux
}

type server struct {
	service Service
	logger  *slog.Logger
}

func (s *server) validateAddress(writer http.ResponseWriter, request *http.Request) {
	var body addressRequest
	if !s.decode(writer, request, &body) {
		return
	}
	valid, err := s.service.ValidateAddress(request.Context(), body.Address, body.AddressType)
	s.respond(writer, validResponse{Valid: valid}, err)
}

func (s *server) login(writer http.ResponseWriter, request *http.Request) {
	var body addressRequest
	if !s.decode(writer, request, &body) {
		return
	}
	challenge, err := s.service.Login(request.Context(), body.Address, body.AddressType)
	s.respond(writer, challenge, err)
}

func (s *server) completeLogin(writer http.ResponseWriter, request *http.Request) {
	var body completeLoginRequest
	if !s.decode(writer, request, &body) {
		return
	}
	session, err := s.service.CompleteLogin(request.Context(), body.ChallengeID, body.Code)
	s.respond(writer, session, err)
}

func (s *server) user(writer http.ResponseWriter, request *http.Request) {
	token, ok := s.bearer(writer, request)
	if !ok {
		return
	}
	user, err := s.service.User(request.Context(), token)
	s.respond(writer, userResponse{User: user}, err)
}

func (s *server) replaceSession(writer http.ResponseWriter, request *http.Request) {
	token, ok := s.bearer(writer, request)
	if !ok {
		return
	}
	session, err := s.service.ReplaceSession(request.Context(), token)
	s.respond(writer, session, err)
}

func (s *server) revokeSession(writer http.ResponseWriter, request *http.Request) {
	token, ok := s.bearer(writer, request)
	if !ok {
		return
	}
	s.respond(writer, struct{}{}, s.service.RevokeSession(request.Context(), token))
}

func (s *server) requestOAuth(writer http.ResponseWriter, request *http.Request) {
	oauthRequest, err := s.service.RequestOAuthLogin(request.Context())
	s.respond(writer, oauthRequest, err)
}

func (s *server) completeOAuth(writer http.ResponseWriter, request *http.Request) {
	var body completeOAuthRequest
	if !s.decode(writer, request, &body) {
		return
	}
	session, err := s.service.CompleteOAuthLogin(request.Context(), body.RequestID)
	s.respond(writer, session, err)
}

func (s *server) registerPrivo(writer http.ResponseWriter, request *http.Request) {
	var body authschema.RegistrationInfo
	if !s.decode(writer, request, &body) {
		return
	}
	registration, err := s.service.RegisterGuardianConsent(request.Context(), body)
	s.respond(writer, registration, err)
}

func (s *server) publicRecordKey(writer http.ResponseWriter, request *http.Request) {
	token, ok := s.bearer(writer, request)
	if !ok {
		return
	}
	key, err := s.service.CreatePublicRecordKey(request.Context(), token)
	s.respond(writer, keyResponse{Key: key}, err)
}

func (s *server) decode(writer http.ResponseWriter, request *http.Request, v any) bool {
	if err := netutil.DecodeResponse(request.Body, v); err != nil {
		s.fail(writer, Errorf("bad_request", "%v", err))
		return false
	}
	return true
}

func (s *server) bearer(writer http.ResponseWriter, request *http.Request) (string, bool) {
	token, found := strings.CutPrefix(request.Header.Get("Authorization"), "Bearer ")
	if !found || token == "" {
		s.fail(writer, Errorf(authschema.ErrorNotLoggedIn, "missing bearer token"))
		return "", false
	}
	return token, true
}

// respond writes result merged with success:true, or the failure.
func (s *server) respond(writer http.ResponseWriter, result any, err error) {
	if err != nil {
		var serviceErr *Error
		if !errors.As(err, &serviceErr) {
			s.logger.Error("identity request failed", "error", err)
			serviceErr = Errorf(CodeInternal, "internal error")
		}
		s.fail(writer, serviceErr)
		return
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		s.fail(writer, Errorf(CodeInternal, "encoding response: %v", err))
		return
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(encoded, &fields); err != nil {
		s.fail(writer, Errorf(CodeInternal, "response is not an object"))
		return
	}
	fields["success"] = json.RawMessage("true")
	s.write(writer, http.StatusOK, fields)
}

func (s *server) fail(writer http.ResponseWriter, serviceErr *Error) {
	s.write(writer, httpStatus(serviceErr), envelope{
		Success:      new(bool),
		ErrorCode:    serviceErr.Code,
		ErrorMessage: serviceErr.Message,
	})
}

func (s *server) write(writer http.ResponseWriter, status int, body any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(body); err != nil {
		s.logger.Debug("writing identity response", "error", err)
	}
}
