// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authhandler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bureau-foundation/authbridge/lib/authschema"
	"github.com/bureau-foundation/authbridge/lib/clock"
	"github.com/bureau-foundation/authbridge/lib/config"
	"github.com/bureau-foundation/authbridge/lib/identity"
	"github.com/bureau-foundation/authbridge/lib/sessionstore"
	"github.com/bureau-foundation/authbridge/lib/sessiontoken"
	"github.com/bureau-foundation/authbridge/lib/surface"
	"github.com/bureau-foundation/authbridge/protocol"
	"github.com/bureau-foundation/authbridge/rpc"
)

// refreshTimeout bounds one remote session replacement.
const refreshTimeout = 30 * time.Second

// Options configures a Handler.
type Options struct {
	// Config is the module section of the configuration. Its flags
	// are read once, at construction.
	Config config.ModuleConfig

	// Identity is the remote identity service. Required.
	Identity identity.Service

	// Store persists the session. Nil keeps it in memory.
	Store sessionstore.Store

	// Surfaces opens login and authorization pages. Nil disables the
	// external-tab flows: they fail the attempt.
	Surfaces surface.Opener

	// Version is the protocol version Serve offers. Zero means
	// protocol.Current; lower values serve only the methods that
	// version had.
	Version int

	// Metrics records RPC traffic for connections made by Serve.
	Metrics *rpc.Metrics

	Clock  clock.Clock
	Logger *slog.Logger
}

// Handler owns the session and runs login attempts. All methods are
// safe for concurrent use.
type Handler struct {
	config    config.ModuleConfig
	identity  identity.Service
	store     sessionstore.Store
	surfaces  surface.Opener
	version   int
	metrics   *rpc.Metrics
	clock     clock.Clock
	logger    *slog.Logger
	validate  *validator.Validate
	refresher *sessiontoken.Refresher

	status   *stream[authschema.LoginStatus]
	uiStatus *stream[authschema.LoginUIStatus]

	// sessionMutex orders every write of the session (fields, store,
	// status) against Logout, so nothing of a dropped session is
	// written after the logout that dropped it. Taken before mutex.
	sessionMutex sync.Mutex

	mutex         sync.Mutex
	token         string
	connectionKey string
	authData      *authschema.AuthData
	useCustomUI   bool

	// generation increments on every logout. An attempt that started
	// under an older generation may not install its result.
	generation uint64

	// attempt is the running login attempt, nil when idle.
	attempt *attempt
}

// New returns an idle Handler with no session.
func New(options Options) (*Handler, error) {
	if options.Identity == nil {
		return nil, errors.New("authhandler: identity service is required")
	}
	if options.Store == nil {
		options.Store = sessionstore.NewMemory()
	}
	if options.Version <= 0 {
		options.Version = protocol.Current
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	handler := &Handler{
		config:      options.Config,
		identity:    options.Identity,
		store:       options.Store,
		surfaces:    options.Surfaces,
		version:     options.Version,
		metrics:     options.Metrics,
		clock:       options.Clock,
		logger:      options.Logger,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		status:      newStream(authschema.LoginStatus{}),
		uiStatus:    newStream(authschema.Hidden()),
		useCustomUI: options.Config.UseCustomUI,
	}
	handler.refresher = sessiontoken.NewRefresher(sessiontoken.RefresherOptions{
		Clock:  options.Clock,
		Lead:   options.Config.RefreshLead,
		Logger: options.Logger,
	}, handler.refresh)
	return handler, nil
}

// Close stops the refresh timer and cancels any running attempt. The
// session is kept.
func (h *Handler) Close() error {
	h.refresher.Stop()
	h.mutex.Lock()
	running := h.attempt
	h.mutex.Unlock()
	if running != nil {
		running.cancel()
	}
	return nil
}

// IsLoggedIn reports whether a token is held and not yet expired.
func (h *Handler) IsLoggedIn() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.loggedInLocked()
}

func (h *Handler) loggedInLocked() bool {
	return h.token != "" && sessiontoken.Valid(h.token, h.clock.Now())
}

// AuthData returns the cached identity while logged in.
func (h *Handler) AuthData() *authschema.AuthData {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if !h.loggedInLocked() {
		return nil
	}
	return h.authData
}

// Token returns the session token while logged in, or "".
func (h *Handler) Token() string {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if !h.loggedInLocked() {
		return ""
	}
	return h.token
}

// ConnectionKey returns the connection key while logged in, or "".
func (h *Handler) ConnectionKey() string {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if !h.loggedInLocked() {
		return ""
	}
	return h.connectionKey
}

// RefreshPending reports whether a session refresh is scheduled.
func (h *Handler) RefreshPending() bool { return h.refresher.Pending() }

// RefreshDeadline returns when the scheduled refresh fires.
func (h *Handler) RefreshDeadline() (time.Time, bool) { return h.refresher.Deadline() }

// SetUseCustomUI selects between the custom-UI and external-tab flows
// for attempts that start afterwards.
func (h *Handler) SetUseCustomUI(enabled bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.useCustomUI = enabled
}

// Logout drops the session, stops the refresh timer, cancels a running
// attempt, and resets both status streams. The remote session is
// revoked on a best-effort basis.
func (h *Handler) Logout(ctx context.Context) {
	h.sessionMutex.Lock()
	h.mutex.Lock()
	token := h.token
	h.token, h.connectionKey, h.authData = "", "", nil
	h.generation++
	running := h.attempt
	h.mutex.Unlock()

	if running != nil {
		running.cancel()
	}
	h.refresher.Stop()
	if err := h.store.Clear(ctx); err != nil {
		h.logger.Warn("clearing stored session", "error", err)
	}
	h.emitStatus(authschema.LoginStatus{
		Reset:       true,
		IsLoading:   authschema.Bool(false),
		IsLoggingIn: authschema.Bool(false),
	})
	h.setUI(authschema.Hidden())
	h.sessionMutex.Unlock()

	if token != "" {
		if err := h.identity.RevokeSession(ctx, token); err != nil {
			h.logger.Debug("remote session revocation failed", "token", sessiontoken.Fingerprint(token), "error", err)
		}
		h.logger.Info("logged out", "token", sessiontoken.Fingerprint(token))
	}
}

// OnLoginStatus subscribes fn to the machine-status stream. fn first
// receives the accumulated status, then every update in order. It must
// not block for long or call back into the Handler's status methods.
func (h *Handler) OnLoginStatus(fn func(authschema.LoginStatus)) (unsubscribe func()) {
	return h.status.subscribe(fn, func(current authschema.LoginStatus) authschema.LoginStatus {
		current.Reset = current.AuthData == nil
		return current
	})
}

// OnLoginUIStatus subscribes fn to the UI-status stream, starting with
// the page currently shown.
func (h *Handler) OnLoginUIStatus(fn func(authschema.LoginUIStatus)) (unsubscribe func()) {
	return h.uiStatus.subscribe(fn, func(current authschema.LoginUIStatus) authschema.LoginUIStatus {
		return current
	})
}

// LoginStatus returns the accumulated machine status.
func (h *Handler) LoginStatus() authschema.LoginStatus { return h.status.value() }

// LoginUIStatus returns the page currently shown.
func (h *Handler) LoginUIStatus() authschema.LoginUIStatus { return h.uiStatus.value() }

func (h *Handler) emitStatus(update authschema.LoginStatus) {
	h.status.emit(func(current authschema.LoginStatus) (authschema.LoginStatus, authschema.LoginStatus) {
		return current.Merge(update), update
	})
}

func (h *Handler) setUI(status authschema.LoginUIStatus) {
	if err := status.Validate(); err != nil {
		h.logger.Error("refusing invalid UI status", "page", string(status.Page), "error", err)
		return
	}
	h.uiStatus.emit(func(authschema.LoginUIStatus) (authschema.LoginUIStatus, authschema.LoginUIStatus) {
		return status, status
	})
}

// refresh replaces the session behind token. It runs on the refresh
// timer.
func (h *Handler) refresh(token string) {
	h.mutex.Lock()
	current := h.token
	userID := ""
	if h.authData != nil {
		userID = h.authData.UserID
	}
	h.mutex.Unlock()
	if current != token {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	session, err := h.identity.ReplaceSession(ctx, token)
	if err != nil {
		h.logger.Warn("session refresh failed, keeping the current token",
			"token", sessiontoken.Fingerprint(token), "error", err)
		return
	}

	h.sessionMutex.Lock()
	h.mutex.Lock()
	if h.token != token {
		// Logged out, or logged in again, while the call was out.
		h.mutex.Unlock()
		h.sessionMutex.Unlock()
		return
	}
	h.token, h.connectionKey = session.Token, session.ConnectionKey
	generation := h.generation
	h.mutex.Unlock()
	h.persist(ctx, session, userID)
	h.sessionMutex.Unlock()

	h.logger.Info("session refreshed",
		"old", sessiontoken.Fingerprint(token), "new", sessiontoken.Fingerprint(session.Token))
	h.scheduleRefresh(generation, session.Token)
}

// scheduleRefresh arms the refresh of token, then withdraws it if a
// logout or another session replaced token meanwhile. Scheduling runs
// outside sessionMutex: a token already inside its refresh lead fires
// at once, on this goroutine when the clock is fake.
func (h *Handler) scheduleRefresh(generation uint64, token string) (time.Time, bool) {
	deadline, ok := h.refresher.Schedule(token)
	h.mutex.Lock()
	stale := h.generation != generation || h.token != token
	h.mutex.Unlock()
	if stale {
		h.refresher.Cancel(token)
		return time.Time{}, false
	}
	return deadline, ok
}

func (h *Handler) persist(ctx context.Context, session identity.Session, userID string) {
	err := h.store.Save(ctx, sessionstore.Session{
		Token:         session.Token,
		ConnectionKey: session.ConnectionKey,
		UserID:        userID,
		SavedAt:       h.clock.Now(),
	})
	if err != nil {
		h.logger.Warn("persisting session", "error", err)
	}
}
