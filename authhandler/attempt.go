// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authhandler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/bureau-foundation/authbridge/lib/authschema"
	"github.com/bureau-foundation/authbridge/lib/identity"
	"github.com/bureau-foundation/authbridge/lib/sessiontoken"
	"github.com/bureau-foundation/authbridge/rpc"
)

// inputKind names what an attempt is waiting for.
type inputKind int

const (
	awaitingNothing inputKind = iota
	awaitingAddress
	awaitingCode
	awaitingAccountChoice
	awaitingRegistration
)

type addressInput struct {
	address       string
	addressType   authschema.AddressType
	acceptedTerms bool
}

// attempt is one login attempt. canceled is its cancellation signal:
// closed once, checked at every step boundary.
type attempt struct {
	id         string
	background bool
	generation uint64
	customUI   bool
	logger     *slog.Logger

	canceled   chan struct{}
	cancelOnce sync.Once

	// awaiting is guarded by the Handler mutex. Submissions of any
	// other kind are dropped.
	awaiting inputKind

	addresses     chan addressInput
	codes         chan string
	choices       chan bool
	registrations chan authschema.RegistrationInfo

	// shown is set once the attempt went interactive; keepUI
	// suppresses the exit hide (completed registration).
	shown  bool
	keepUI bool

	done   chan struct{}
	result *authschema.AuthData
	err    error
}

func (a *attempt) cancel() {
	a.cancelOnce.Do(func() { close(a.canceled) })
}

func (a *attempt) isCanceled() bool {
	select {
	case <-a.canceled:
		return true
	default:
		return false
	}
}

// errCanceled ends an attempt without login and without error.
var errCanceled = errors.New("login canceled")

// loginFailed is the generic attempt failure the caller sees. The
// cause is logged, never sent.
func loginFailed() error {
	return &rpc.Error{Code: authschema.ErrorLoginFailed, Message: authschema.ErrorMessage(authschema.ErrorLoginFailed)}
}

// Login returns the identity of the logged-in user, running a login
// attempt if no valid session is held. A background login never shows
// UI and returns nil when no session can be found without the user.
// A canceled attempt returns nil, nil.
func (h *Handler) Login(ctx context.Context, background bool) (*authschema.AuthData, error) {
	for {
		h.mutex.Lock()
		if h.loggedInLocked() && h.authData != nil {
			data := h.authData
			h.mutex.Unlock()
			return data, nil
		}
		running := h.attempt
		if running == nil {
			current := h.startLocked(background)
			h.mutex.Unlock()
			return h.run(ctx, current)
		}
		h.mutex.Unlock()

		if background {
			return nil, nil
		}
		select {
		case <-running.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		// A background attempt that found nothing says nothing about
		// what an interactive one would do.
		if running.background && running.result == nil && running.err == nil {
			continue
		}
		return running.result, running.err
	}
}

func (h *Handler) startLocked(background bool) *attempt {
	current := &attempt{
		id:            uuid.NewString(),
		background:    background,
		generation:    h.generation,
		customUI:      h.useCustomUI,
		canceled:      make(chan struct{}),
		addresses:     make(chan addressInput, 1),
		codes:         make(chan string, 1),
		choices:       make(chan bool, 1),
		registrations: make(chan authschema.RegistrationInfo, 1),
		done:          make(chan struct{}),
	}
	current.logger = h.logger.With("attempt", current.id)
	h.attempt = current
	return current
}

func (h *Handler) run(ctx context.Context, current *attempt) (data *authschema.AuthData, err error) {
	current.logger.Debug("login attempt started", "background", current.background, "custom_ui", current.customUI)
	defer func() {
		if errors.Is(err, errCanceled) {
			data, err = nil, nil
		}
		if current.shown && !current.keepUI {
			h.setUI(authschema.Hidden())
		}
		if data == nil {
			h.emitStatus(authschema.LoginStatus{IsLoading: authschema.Bool(false), IsLoggingIn: authschema.Bool(false)})
		}

		h.mutex.Lock()
		current.result, current.err = data, err
		if h.attempt == current {
			h.attempt = nil
		}
		h.mutex.Unlock()
		close(current.done)

		switch {
		case err != nil:
			current.logger.Warn("login attempt failed", "error", err)
		case data == nil:
			current.logger.Info("login attempt ended without login")
		default:
			current.logger.Info("login attempt succeeded", "user_id", data.UserID)
		}
	}()

	h.emitStatus(authschema.LoginStatus{IsLoading: authschema.Bool(true)})

	if data := h.discover(ctx, current); data != nil {
		return data, nil
	}
	if current.isCanceled() {
		return nil, errCanceled
	}
	if current.background {
		return nil, nil
	}

	h.emitStatus(authschema.LoginStatus{IsLoggingIn: authschema.Bool(true)})
	// From here on the exit hide runs even if no page gets shown, so
	// a leftover page from an earlier attempt goes away.
	current.shown = true

	var outcome flowOutcome
	switch {
	case h.config.GuardianConsent:
		outcome, err = h.guardianFlow(ctx, current)
	case current.customUI:
		outcome, err = h.addressFlow(ctx, current)
	default:
		outcome, err = h.externalTabFlow(ctx, current)
	}
	if err != nil {
		return nil, err
	}

	data, err = h.loadUser(ctx, current, outcome.session, outcome.userID)
	if err != nil {
		return nil, err
	}
	if outcome.updatePasswordURL != "" && h.showPage(current, authschema.LoginUIStatus{
		Page:              authschema.PageShowUpdatePasswordLink,
		UpdatePasswordURL: outcome.updatePasswordURL,
	}) {
		current.keepUI = true
	}
	return data, nil
}

// flowOutcome is what an interactive flow produces on success.
type flowOutcome struct {
	session identity.Session

	// userID, when set, must match the user the session belongs to.
	userID string

	// updatePasswordURL is set by a completed registration.
	updatePasswordURL string
}

// discover looks for a stored session and, if the identity service
// still accepts it, installs it. Nothing found is not an error.
func (h *Handler) discover(ctx context.Context, current *attempt) *authschema.AuthData {
	stored, ok, err := h.store.Load(ctx)
	if err != nil {
		current.logger.Warn("loading stored session", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	if !sessiontoken.Valid(stored.Token, h.clock.Now()) {
		current.logger.Debug("stored session expired", "token", sessiontoken.Fingerprint(stored.Token))
		h.clearStore(ctx)
		return nil
	}

	user, err := h.identity.User(ctx, stored.Token)
	if err != nil {
		if authschema.IsSessionError(identity.ErrorCode(err)) {
			current.logger.Info("stored session rejected", "code", identity.ErrorCode(err))
			h.clearStore(ctx)
		} else {
			current.logger.Warn("loading user for stored session", "error", err)
		}
		return nil
	}
	session := identity.Session{Token: stored.Token, ConnectionKey: stored.ConnectionKey}
	if !h.install(ctx, current, session, user) {
		return nil
	}
	return &user
}

// loadUser is the LoadingUserInfo step after an interactive flow.
func (h *Handler) loadUser(ctx context.Context, current *attempt, session identity.Session, wantUserID string) (*authschema.AuthData, error) {
	if current.isCanceled() {
		return nil, errCanceled
	}
	user, err := h.identity.User(ctx, session.Token)
	if current.isCanceled() {
		return nil, errCanceled
	}
	if err != nil {
		current.logger.Warn("loading user after login", "error", err)
		return nil, loginFailed()
	}
	if wantUserID != "" && user.UserID != wantUserID {
		current.logger.Warn("login page reported a different user than the session", "reported", wantUserID, "session", user.UserID)
		return nil, loginFailed()
	}
	if !h.install(ctx, current, session, user) {
		return nil, errCanceled
	}
	return &user, nil
}

// install makes session the handler's session unless the attempt was
// canceled or a logout happened since it started. It persists the
// session, schedules its refresh, and announces the identity.
func (h *Handler) install(ctx context.Context, current *attempt, session identity.Session, user authschema.AuthData) bool {
	h.sessionMutex.Lock()
	h.mutex.Lock()
	if current.isCanceled() || current.generation != h.generation {
		h.mutex.Unlock()
		h.sessionMutex.Unlock()
		return false
	}
	h.token, h.connectionKey = session.Token, session.ConnectionKey
	h.authData = &user
	h.mutex.Unlock()

	h.persist(ctx, session, user.UserID)
	h.emitStatus(authschema.LoginStatus{
		IsLoading:   authschema.Bool(false),
		IsLoggingIn: authschema.Bool(false),
		AuthData:    &user,
	})
	h.sessionMutex.Unlock()

	if deadline, ok := h.scheduleRefresh(current.generation, session.Token); ok {
		current.logger.Debug("session refresh scheduled", "at", deadline)
	}
	return true
}

func (h *Handler) clearStore(ctx context.Context) {
	if err := h.store.Clear(ctx); err != nil {
		h.logger.Warn("clearing stored session", "error", err)
	}
}

// CancelLogin cancels the running attempt. With no attempt running it
// hides whatever page is still shown (the update-password link).
func (h *Handler) CancelLogin() {
	h.mutex.Lock()
	running := h.attempt
	h.mutex.Unlock()
	if running != nil {
		running.logger.Info("login attempt canceled")
		running.cancel()
		return
	}
	h.setUI(authschema.Hidden())
}

// showPage emits status for current unless the attempt is canceled or
// superseded by a logout. It reports whether the page was shown.
func (h *Handler) showPage(current *attempt, status authschema.LoginUIStatus) bool {
	h.mutex.Lock()
	live := !current.isCanceled() && current.generation == h.generation
	h.mutex.Unlock()
	if !live {
		return false
	}
	current.shown = true
	h.setUI(status)
	return true
}

// expect marks what current waits for next. Submissions arriving
// before this are dropped.
func (h *Handler) expect(current *attempt, kind inputKind) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	current.awaiting = kind
}

// await waits for the next value on inputs, cancellation, or ctx.
// Cancellation wins: a value that arrives together with it is
// discarded.
func await[T any](ctx context.Context, h *Handler, current *attempt, inputs <-chan T) (T, error) {
	var zero T
	defer h.expect(current, awaitingNothing)
	select {
	case value := <-inputs:
		if current.isCanceled() {
			return zero, errCanceled
		}
		return value, nil
	case <-current.canceled:
		return zero, errCanceled
	case <-ctx.Done():
		return zero, errCanceled
	}
}

// submit hands value to the running attempt if it waits for kind.
func submit[T any](h *Handler, kind inputKind, value T, inputs func(*attempt) chan T) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	current := h.attempt
	if current == nil || current.awaiting != kind {
		return false
	}
	channel := inputs(current)
	select {
	case channel <- value:
		current.awaiting = awaitingNothing
		return true
	default:
		return false
	}
}
