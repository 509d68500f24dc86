// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package identitytest provides an in-memory identity service.
//
// Fake implements identity.Service with real session tokens (EdDSA JWTs
// minted by lib/sessiontoken) so token expiry, replacement, and
// revocation behave as they do against the real service. Every method
// call is counted, which lets tests assert that a code path made no
// remote calls at all.
package identitytest

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bureau-foundation/authbridge/lib/authschema"
	"github.com/bureau-foundation/authbridge/lib/clock"
	"github.com/bureau-foundation/authbridge/lib/identity"
	"github.com/bureau-foundation/authbridge/lib/sessiontoken"
)

// Defaults for FakeOptions.
const (
	DefaultCode       = "123456"
	DefaultSessionTTL = 30 * 24 * time.Hour
	DefaultBaseURL    = "https://identity.test"
)

// Method names as counted by Calls.
const (
	MethodValidateAddress         = "ValidateAddress"
	MethodLogin                   = "Login"
	MethodCompleteLogin           = "CompleteLogin"
	MethodUser                    = "User"
	MethodReplaceSession          = "ReplaceSession"
	MethodRevokeSession           = "RevokeSession"
	MethodRequestOAuthLogin       = "RequestOAuthLogin"
	MethodCompleteOAuthLogin      = "CompleteOAuthLogin"
	MethodRegisterGuardianConsent = "RegisterGuardianConsent"
	MethodCreatePublicRecordKey   = "CreatePublicRecordKey"
)

// FakeOptions configures a Fake.
type FakeOptions struct {
	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Code is the verification code every challenge accepts.
	Code string

	// SessionTTL is the lifetime of minted tokens.
	SessionTTL time.Duration

	// BaseURL prefixes authorization and update-password URLs.
	BaseURL string
}

// Fake is an in-memory identity.Service.
type Fake struct {
	clock      clock.Clock
	code       string
	sessionTTL time.Duration
	baseURL    string
	publicKey  ed25519.PublicKey
	privateKey ed25519.PrivateKey
	validate   *validator.Validate
	revoked    *sessiontoken.Blacklist

	mu             sync.Mutex
	users          map[string]authschema.AuthData // by user id
	addresses      map[string]string              // address -> user id
	banned         map[string]bool
	rejected       map[string]string // address -> rejection code
	challenges     map[string]string // challenge id -> address
	oauth          map[string]string // request id -> approving user id, "" until approved
	registrations  []string          // queued rejection codes
	recordKeyFails []string          // queued error codes
	replaceFails   []string          // queued error codes
	calls          map[string]int
	sentCodes      map[string]int // address -> codes sent
	registered     []authschema.RegistrationInfo
}

var _ identity.Service = (*Fake)(nil)

// NewFake creates a Fake with a fresh signing key.
func NewFake(options FakeOptions) (*Fake, error) {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Code == "" {
		options.Code = DefaultCode
	}
	if options.SessionTTL <= 0 {
		options.SessionTTL = DefaultSessionTTL
	}
	if options.BaseURL == "" {
		options.BaseURL = DefaultBaseURL
	}
	public, private, err := sessiontoken.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	return &Fake{
		clock:      options.Clock,
		code:       options.Code,
		sessionTTL: options.SessionTTL,
		baseURL:    strings.TrimRight(options.BaseURL, "/"),
		publicKey:  public,
		privateKey: private,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		revoked:    sessiontoken.NewBlacklist(),
		users:      make(map[string]authschema.AuthData),
		addresses:  make(map[string]string),
		banned:     make(map[string]bool),
		rejected:   make(map[string]string),
		challenges: make(map[string]string),
		oauth:      make(map[string]string),
		calls:      make(map[string]int),
		sentCodes:  make(map[string]int),
	}, nil
}

// AddUser registers user under address and returns it with its id
// filled in if it was empty.
func (f *Fake) AddUser(address string, user authschema.AuthData) authschema.AuthData {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user.UserID == "" {
		user.UserID = uuid.NewString()
	}
	f.users[user.UserID] = user
	f.addresses[address] = user.UserID
	return user
}

// Ban makes Login reject address with user_is_banned.
func (f *Fake) Ban(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.banned[address] = true
}

// Reject makes Login reject address with code.
func (f *Fake) Reject(address, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected[address] = code
}

// ApproveOAuth marks the authorization request as approved by the user
// with userID, creating the user if needed.
func (f *Fake) ApproveOAuth(requestID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[userID]; !ok {
		f.users[userID] = authschema.AuthData{UserID: userID, DisplayName: userID}
	}
	f.oauth[requestID] = userID
}

// RejectRegistrations makes the next len(codes) registrations fail
// with those codes, in order.
func (f *Fake) RejectRegistrations(codes ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registrations = append(f.registrations, codes...)
}

// FailRecordKeys makes the next len(codes) CreatePublicRecordKey calls
// fail with those codes, in order.
func (f *Fake) FailRecordKeys(codes ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordKeyFails = append(f.recordKeyFails, codes...)
}

// FailReplacements makes the next len(codes) ReplaceSession calls fail
// with those codes, in order.
func (f *Fake) FailReplacements(codes ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaceFails = append(f.replaceFails, codes...)
}

// IssueSession mints a session for an existing user, as if the user had
// logged in elsewhere.
func (f *Fake) IssueSession(userID string) (identity.Session, error) {
	return f.mint(userID)
}

// Calls returns how many times method was called.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// TotalCalls returns the number of calls to every method combined.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, count := range f.calls {
		total += count
	}
	return total
}

// CodesSent returns how many verification codes were sent to address.
func (f *Fake) CodesSent(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sentCodes[address]
}

// Registered returns the accepted registrations.
func (f *Fake) Registered() []authschema.RegistrationInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]authschema.RegistrationInfo(nil), f.registered...)
}

// Revoked reports whether token has been revoked or replaced.
func (f *Fake) Revoked(token string) bool {
	return f.revoked.IsRevoked(sessiontoken.TokenID(token))
}

func (f *Fake) count(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
}

func (f *Fake) ValidateAddress(_ context.Context, address string, addressType authschema.AddressType) (bool, error) {
	f.count(MethodValidateAddress)
	switch addressType {
	case authschema.AddressEmail:
		return f.validate.Var(address, "required,email") == nil, nil
	case authschema.AddressSMS:
		return f.validate.Var(address, "required,e164") == nil, nil
	default:
		return false, identity.Errorf(authschema.ErrorAddressTypeNotSupported, "address type %q", addressType)
	}
}

func (f *Fake) Login(ctx context.Context, address string, addressType authschema.AddressType) (identity.Challenge, error) {
	f.count(MethodLogin)
	if addressType != authschema.AddressEmail && addressType != authschema.AddressSMS {
		return identity.Challenge{}, identity.Errorf(authschema.ErrorAddressTypeNotSupported, "address type %q", addressType)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.banned[address] {
		return identity.Challenge{}, identity.Errorf(authschema.ErrorUserIsBanned, "%s is banned", address)
	}
	if code, ok := f.rejected[address]; ok {
		return identity.Challenge{}, identity.Errorf(code, "%s rejected", address)
	}
	if _, ok := f.addresses[address]; !ok {
		user := authschema.AuthData{UserID: uuid.NewString(), DisplayName: displayNameFor(address)}
		if addressType == authschema.AddressEmail {
			user.Email = address
		} else {
			user.PhoneNumber = address
		}
		f.users[user.UserID] = user
		f.addresses[address] = user.UserID
	}
	challenge := identity.Challenge{ID: uuid.NewString()}
	f.challenges[challenge.ID] = address
	f.sentCodes[address]++
	return challenge, nil
}

func displayNameFor(address string) string {
	if local, _, found := strings.Cut(address, "@"); found {
		return local
	}
	return address
}

func (f *Fake) CompleteLogin(_ context.Context, challengeID, code string) (identity.Session, error) {
	f.count(MethodCompleteLogin)
	f.mu.Lock()
	address, ok := f.challenges[challengeID]
	if !ok {
		f.mu.Unlock()
		return identity.Session{}, identity.Errorf(authschema.ErrorInvalidCode, "unknown challenge")
	}
	if code != f.code {
		f.mu.Unlock()
		return identity.Session{}, identity.Errorf(authschema.ErrorInvalidCode, "wrong code")
	}
	delete(f.challenges, challengeID)
	userID := f.addresses[address]
	f.mu.Unlock()
	return f.mint(userID)
}

func (f *Fake) User(_ context.Context, token string) (authschema.AuthData, error) {
	f.count(MethodUser)
	claims, err := f.verify(token)
	if err != nil {
		return authschema.AuthData{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[claims.Subject]
	if !ok {
		return authschema.AuthData{}, identity.Errorf(authschema.ErrorInvalidKey, "no such user")
	}
	return user, nil
}

func (f *Fake) ReplaceSession(_ context.Context, token string) (identity.Session, error) {
	f.count(MethodReplaceSession)
	if code := f.popFailure(&f.replaceFails); code != "" {
		return identity.Session{}, identity.Errorf(code, "replacement refused")
	}
	claims, err := f.verify(token)
	if err != nil {
		return identity.Session{}, err
	}
	f.revoked.Revoke(claims.ID, claims.ExpiresAt.Time)
	return f.mint(claims.Subject)
}

func (f *Fake) RevokeSession(_ context.Context, token string) error {
	f.count(MethodRevokeSession)
	claims, err := f.verify(token)
	if err != nil {
		return err
	}
	f.revoked.Revoke(claims.ID, claims.ExpiresAt.Time)
	return nil
}

func (f *Fake) RequestOAuthLogin(context.Context) (identity.OAuthRequest, error) {
	f.count(MethodRequestOAuthLogin)
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.oauth[id] = ""
	return identity.OAuthRequest{ID: id, AuthorizationURL: f.baseURL + "/oauth/authorize?request=" + id}, nil
}

func (f *Fake) CompleteOAuthLogin(_ context.Context, requestID string) (identity.Session, error) {
	f.count(MethodCompleteOAuthLogin)
	f.mu.Lock()
	userID, ok := f.oauth[requestID]
	if ok && userID != "" {
		delete(f.oauth, requestID)
	}
	f.mu.Unlock()
	switch {
	case !ok:
		return identity.Session{}, identity.Errorf("unknown_request", "no authorization request %s", requestID)
	case userID == "":
		return identity.Session{}, identity.Errorf(authschema.ErrorNotCompleted, "authorization was not completed")
	}
	return f.mint(userID)
}

func (f *Fake) RegisterGuardianConsent(_ context.Context, info authschema.RegistrationInfo) (identity.Registration, error) {
	f.count(MethodRegisterGuardianConsent)
	if code := f.popFailure(&f.registrations); code != "" {
		return identity.Registration{}, identity.Errorf(code, "registration refused")
	}
	if info.DisplayName == "" || info.Name == "" || info.DateOfBirth.IsZero() {
		return identity.Registration{}, identity.Errorf("bad_request", "incomplete registration")
	}
	contact := info.Email
	if info.Age(f.clock.Now()) < authschema.AdultAge {
		contact = info.ParentEmail
	}
	if err := f.validate.Var(contact, "required,email"); err != nil {
		return identity.Registration{}, identity.Errorf(authschema.ErrorUnacceptableAddress, "contact address: %v", err)
	}

	user := authschema.AuthData{UserID: uuid.NewString(), DisplayName: info.DisplayName, Name: info.Name, Email: info.Email}
	f.mu.Lock()
	f.users[user.UserID] = user
	f.registered = append(f.registered, info)
	f.mu.Unlock()

	session, err := f.mint(user.UserID)
	if err != nil {
		return identity.Registration{}, err
	}
	return identity.Registration{
		Session:           session,
		UpdatePasswordURL: f.baseURL + "/account/password?user=" + user.UserID,
	}, nil
}

func (f *Fake) CreatePublicRecordKey(_ context.Context, token string) (string, error) {
	f.count(MethodCreatePublicRecordKey)
	if code := f.popFailure(&f.recordKeyFails); code != "" {
		return "", identity.Errorf(code, "record key refused")
	}
	if _, err := f.verify(token); err != nil {
		return "", err
	}
	return "rk_" + uuid.NewString(), nil
}

func (f *Fake) popFailure(queue *[]string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(*queue) == 0 {
		return ""
	}
	code := (*queue)[0]
	*queue = (*queue)[1:]
	return code
}

func (f *Fake) mint(userID string) (identity.Session, error) {
	token, err := sessiontoken.Mint(f.privateKey, sessiontoken.MintOptions{
		Subject:  userID,
		Issuer:   f.baseURL,
		IssuedAt: f.clock.Now(),
		TTL:      f.sessionTTL,
	})
	if err != nil {
		return identity.Session{}, fmt.Errorf("minting session: %w", err)
	}
	return identity.Session{Token: token, ConnectionKey: "ck_" + uuid.NewString()}, nil
}

// verify maps token problems onto the service's session error codes.
func (f *Fake) verify(token string) (*sessiontoken.Claims, error) {
	if token == "" {
		return nil, identity.Errorf(authschema.ErrorNotLoggedIn, "no session")
	}
	claims, err := sessiontoken.Verify(f.publicKey, token, f.clock.Now())
	switch {
	case errors.Is(err, sessiontoken.ErrTokenExpired):
		return nil, identity.Errorf(authschema.ErrorSessionExpired, "session expired")
	case err != nil:
		return nil, identity.Errorf(authschema.ErrorInvalidKey, "%v", err)
	}
	if f.revoked.IsRevoked(claims.ID) {
		return nil, identity.Errorf(authschema.ErrorUnacceptableSessionKey, "session revoked")
	}
	return claims, nil
}
