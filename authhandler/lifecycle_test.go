// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authhandler

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/authbridge/lib/authschema"
	"github.com/bureau-foundation/authbridge/lib/identity"
	"github.com/bureau-foundation/authbridge/lib/identity/identitytest"
	"github.com/bureau-foundation/authbridge/lib/sessionstore"
	"github.com/bureau-foundation/authbridge/lib/testutil"
)

// refreshAt is when a session issued at testNow is refreshed with the
// harness's seven-day lead.
var refreshAt = identitytest.DefaultSessionTTL - 7*24*time.Hour

func TestRefreshReplacesToken(t *testing.T) {
	h := newHarness(t, nil)
	h.emailLogin("a@b.com")
	original := h.handler.Token()
	originalKey := h.handler.ConnectionKey()

	h.clock.Advance(refreshAt - time.Minute)
	if calls := h.identity.Calls(identitytest.MethodReplaceSession); calls != 0 {
		t.Fatalf("refreshed %d times before the deadline", calls)
	}

	h.clock.Advance(time.Minute)
	if calls := h.identity.Calls(identitytest.MethodReplaceSession); calls != 1 {
		t.Fatalf("ReplaceSession calls = %d, want 1", calls)
	}
	replaced := h.handler.Token()
	if replaced == original || replaced == "" {
		t.Fatal("token not replaced")
	}
	if h.handler.ConnectionKey() == originalKey {
		t.Error("connection key not replaced with the token")
	}
	if !h.identity.Revoked(original) {
		t.Error("old token still valid at the identity service")
	}

	stored, ok, err := h.store.Load(context.Background())
	if err != nil || !ok || stored.Token != replaced {
		t.Errorf("stored session = %+v, %v, %v; want the replacement", stored, ok, err)
	}

	// The replacement is scheduled in turn.
	if h.clock.PendingCount() != 1 || !h.handler.RefreshPending() {
		t.Fatal("replacement token has no refresh scheduled")
	}
	deadline, _ := h.handler.RefreshDeadline()
	if want := h.clock.Now().Add(refreshAt); !deadline.Equal(want) {
		t.Errorf("next refresh at %v, want %v", deadline, want)
	}
	if !h.handler.IsLoggedIn() {
		t.Error("logged out by a refresh")
	}
}

func TestRefreshFailureKeepsTokenUntilExpiry(t *testing.T) {
	h := newHarness(t, nil)
	h.emailLogin("a@b.com")
	token := h.handler.Token()
	h.identity.FailReplacements(identity.CodeInternal)

	h.clock.Advance(refreshAt)
	if h.handler.Token() != token {
		t.Fatal("token changed by a failed refresh")
	}
	if !h.handler.IsLoggedIn() {
		t.Fatal("failed refresh logged the user out")
	}
	if h.handler.RefreshPending() {
		t.Error("failed refresh rescheduled itself")
	}

	h.clock.Advance(identitytest.DefaultSessionTTL - refreshAt)
	if h.handler.IsLoggedIn() {
		t.Error("still logged in with an expired token")
	}
}

func TestLogout(t *testing.T) {
	h := newHarness(t, nil)
	h.emailLogin("a@b.com")
	token := h.handler.Token()
	h.statusSeen()

	h.handler.Logout(context.Background())

	if h.handler.IsLoggedIn() || h.handler.AuthData() != nil || h.handler.Token() != "" {
		t.Error("session survived logout")
	}
	if h.handler.RefreshPending() || h.clock.PendingCount() != 0 {
		t.Error("refresh still scheduled after logout")
	}
	if _, ok, _ := h.store.Load(context.Background()); ok {
		t.Error("stored session survived logout")
	}
	if !h.identity.Revoked(token) {
		t.Error("session not revoked remotely")
	}
	requireHidden(t, h)

	seen := h.statusSeen()
	if len(seen) != 1 || !seen[0].Reset || seen[0].AuthData != nil {
		t.Fatalf("logout status updates = %+v, want one reset", seen)
	}
	if status := h.handler.LoginStatus(); status.AuthData != nil {
		t.Errorf("accumulated status still carries %+v", status.AuthData)
	}

	// A new subscriber learns it must clear what it had.
	replay := make(chan authschema.LoginStatus, 1)
	h.handler.OnLoginStatus(func(status authschema.LoginStatus) { replay <- status })
	if status := <-replay; !status.Reset {
		t.Errorf("replay after logout = %+v, want reset", status)
	}
}

func TestLogoutWhileLoggedOut(t *testing.T) {
	h := newHarness(t, nil)
	h.handler.Logout(context.Background())
	if calls := h.identity.Calls(identitytest.MethodRevokeSession); calls != 0 {
		t.Errorf("RevokeSession calls = %d with no session", calls)
	}
}

func TestRefreshAfterLogoutIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.emailLogin("a@b.com")
	h.handler.Logout(context.Background())

	h.clock.Advance(refreshAt)
	if calls := h.identity.Calls(identitytest.MethodReplaceSession); calls != 0 {
		t.Errorf("ReplaceSession calls = %d after logout", calls)
	}
}

// stallingStore holds Save calls made after stall() until release is
// closed. entered closes when the first held Save arrives.
type stallingStore struct {
	sessionstore.Store
	armed     atomic.Bool
	enterOnce sync.Once
	entered   chan struct{}
	release   chan struct{}
}

func newStallingStore() *stallingStore {
	return &stallingStore{entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *stallingStore) wrap(store sessionstore.Store) sessionstore.Store {
	s.Store = store
	return s
}

func (s *stallingStore) stall() { s.armed.Store(true) }

func (s *stallingStore) Save(ctx context.Context, session sessionstore.Session) error {
	if s.armed.Load() {
		s.enterOnce.Do(func() { close(s.entered) })
		<-s.release
	}
	return s.Store.Save(ctx, session)
}

// logoutWhileSaving starts Logout once store holds a Save, checks it
// waits for that Save, then lets both finish.
func (h *harness) logoutWhileSaving(store *stallingStore) {
	h.t.Helper()
	testutil.RequireClosed(h.t, store.entered, waitTimeout, "session was never saved")

	loggedOut := make(chan struct{})
	go func() {
		h.handler.Logout(context.Background())
		close(loggedOut)
	}()
	testutil.RequireNoReceive(h.t, loggedOut, 50*time.Millisecond, "logout finished while the session was being saved")

	close(store.release)
	testutil.RequireClosed(h.t, loggedOut, waitTimeout, "logout did not finish after the save")
}

// requireLoggedOut checks that no part of a session outlived Logout.
func (h *harness) requireLoggedOut() {
	h.t.Helper()
	if h.handler.IsLoggedIn() || h.handler.AuthData() != nil || h.handler.Token() != "" {
		h.t.Error("session held after logout")
	}
	if h.handler.RefreshPending() || h.clock.PendingCount() != 0 {
		h.t.Error("refresh armed after logout")
	}
	if _, ok, _ := h.store.Load(context.Background()); ok {
		h.t.Error("session stored after logout")
	}
	if status := h.handler.LoginStatus(); status.AuthData != nil {
		h.t.Errorf("login status carries %+v after logout", status.AuthData)
	}
}

func TestLogoutWhileLoginSavesSession(t *testing.T) {
	store := newStallingStore()
	h := buildHarness(t, customUI, 0, store.wrap)
	store.stall()

	results := h.login(false)
	h.waitPage(authschema.PageEnterAddress, "")
	h.handler.ProvideEmailAddress("a@b.com", true)
	h.waitPage(authschema.PageCheckAddress, "")
	h.handler.ProvideCode(identitytest.DefaultCode)

	h.logoutWhileSaving(store)
	h.result(results)
	h.requireLoggedOut()

	seen := h.statusSeen()
	if len(seen) == 0 || !seen[len(seen)-1].Reset {
		t.Fatalf("status updates = %+v, want the logout reset last", seen)
	}
	if result := h.result(h.login(true)); result.data != nil {
		t.Errorf("background login after logout found %+v", result.data)
	}
}

func TestLogoutWhileRefreshSavesSession(t *testing.T) {
	store := newStallingStore()
	h := buildHarness(t, nil, 0, store.wrap)
	h.emailLogin("a@b.com")
	store.stall()

	advanced := make(chan struct{})
	go func() {
		h.clock.Advance(refreshAt)
		close(advanced)
	}()

	h.logoutWhileSaving(store)
	testutil.RequireClosed(t, advanced, waitTimeout, "refresh did not finish")
	if calls := h.identity.Calls(identitytest.MethodReplaceSession); calls != 1 {
		t.Fatalf("ReplaceSession calls = %d, want 1", calls)
	}
	h.requireLoggedOut()
}

// recordKey runs CreatePublicRecordKey in the background.
func (h *harness) recordKey() <-chan recordKeyResult {
	results := make(chan recordKeyResult, 1)
	go func() {
		key, err := h.handler.CreatePublicRecordKey(context.Background())
		results <- recordKeyResult{key, err}
	}()
	return results
}

type recordKeyResult struct {
	key string
	err error
}

func TestCreatePublicRecordKey(t *testing.T) {
	h := newHarness(t, nil)
	h.emailLogin("a@b.com")

	key, err := h.handler.CreatePublicRecordKey(context.Background())
	if err != nil || !strings.HasPrefix(key, "rk_") {
		t.Fatalf("CreatePublicRecordKey = %q, %v", key, err)
	}
}

func TestCreatePublicRecordKey_SessionErrorRetriesAfterLogin(t *testing.T) {
	h := newHarness(t, nil)
	h.emailLogin("a@b.com")
	first := h.handler.Token()
	h.identity.FailRecordKeys(authschema.ErrorSessionExpired)

	results := h.recordKey()
	h.waitPage(authschema.PageEnterAddress, "")
	if h.handler.IsLoggedIn() {
		t.Fatal("still logged in while the retry login runs")
	}
	h.handler.ProvideEmailAddress("a@b.com", true)
	h.waitPage(authschema.PageCheckAddress, "")
	h.handler.ProvideCode(identitytest.DefaultCode)

	result := testRecordKey(t, results)
	if result.err != nil || !strings.HasPrefix(result.key, "rk_") {
		t.Fatalf("CreatePublicRecordKey = %q, %v", result.key, result.err)
	}
	if calls := h.identity.Calls(identitytest.MethodCreatePublicRecordKey); calls != 2 {
		t.Errorf("CreatePublicRecordKey calls = %d, want 2", calls)
	}
	if h.handler.Token() == first {
		t.Error("retry used the rejected session")
	}
}

func TestCreatePublicRecordKey_SecondFailureReturned(t *testing.T) {
	h := newHarness(t, nil)
	h.emailLogin("a@b.com")
	h.identity.FailRecordKeys(authschema.ErrorSessionExpired, authschema.ErrorInvalidKey)

	results := h.recordKey()
	h.waitPage(authschema.PageEnterAddress, "")
	h.handler.ProvideEmailAddress("a@b.com", true)
	h.waitPage(authschema.PageCheckAddress, "")
	h.handler.ProvideCode(identitytest.DefaultCode)

	result := testRecordKey(t, results)
	if code := identity.ErrorCode(result.err); code != authschema.ErrorInvalidKey {
		t.Fatalf("error = %v, want %s", result.err, authschema.ErrorInvalidKey)
	}
	if calls := h.identity.Calls(identitytest.MethodCreatePublicRecordKey); calls != 2 {
		t.Errorf("CreatePublicRecordKey calls = %d, want 2", calls)
	}
}

func TestCreatePublicRecordKey_LoginCanceled(t *testing.T) {
	h := newHarness(t, customUI)
	results := h.recordKey()
	h.waitPage(authschema.PageEnterAddress, "")
	h.handler.CancelLogin()

	result := testRecordKey(t, results)
	if code := identity.ErrorCode(result.err); code != authschema.ErrorNotLoggedIn {
		t.Fatalf("error = %v, want %s", result.err, authschema.ErrorNotLoggedIn)
	}
	if calls := h.identity.Calls(identitytest.MethodCreatePublicRecordKey); calls != 0 {
		t.Errorf("CreatePublicRecordKey calls = %d without a session", calls)
	}
}

func testRecordKey(t *testing.T, results <-chan recordKeyResult) recordKeyResult {
	t.Helper()
	select {
	case result := <-results:
		return result
	case <-time.After(waitTimeout): //nolint:realclock test hang prevention
		t.Fatal("timed out waiting for CreatePublicRecordKey")
		return recordKeyResult{}
	}
}

func TestOpenAccountPage(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.handler.OpenAccountPage(context.Background()); err != nil {
		t.Fatalf("OpenAccountPage: %v", err)
	}
	if shown := h.surfaces.Shown(); len(shown) != 1 || shown[0] != "https://example.test/account" {
		t.Errorf("shown = %v", shown)
	}
	if h.surfaces.OpenCount() != 0 {
		t.Error("account page opened as a login tab")
	}
}

func TestPolicyURLs(t *testing.T) {
	h := newHarness(t, nil)
	urls := h.handler.PolicyURLs()
	if urls.TermsOfServiceURL != "https://example.test/terms" || urls.PrivacyPolicyURL != "https://example.test/privacy" {
		t.Errorf("PolicyURLs = %+v", urls)
	}
}
