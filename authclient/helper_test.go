// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/authbridge/authhandler"
	"github.com/bureau-foundation/authbridge/channel"
	"github.com/bureau-foundation/authbridge/lib/authschema"
	"github.com/bureau-foundation/authbridge/lib/clock"
	"github.com/bureau-foundation/authbridge/lib/config"
	"github.com/bureau-foundation/authbridge/lib/identity/identitytest"
	"github.com/bureau-foundation/authbridge/lib/sessionstore"
	"github.com/bureau-foundation/authbridge/lib/surface"
	"github.com/bureau-foundation/authbridge/lib/testutil"
	"github.com/bureau-foundation/authbridge/protocol"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const waitTimeout = 5 * time.Second

// fixture is a Helper connected to an in-process module backed by
// fakes.
type fixture struct {
	t        *testing.T
	helper   *Helper
	opener   *channel.Opener
	identity *identitytest.Fake
	surfaces *surface.Fake
	store    *sessionstore.Memory
	opens    *atomic.Int32
	ui       chan authschema.LoginUIStatus
}

func newFixture(t *testing.T, version int) *fixture {
	t.Helper()
	fakeClock := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	fake, err := identitytest.NewFake(identitytest.FakeOptions{Clock: fakeClock})
	if err != nil {
		t.Fatalf("NewFake: %v", err)
	}
	f := &fixture{
		t:        t,
		identity: fake,
		surfaces: surface.NewFake(),
		store:    sessionstore.NewMemory(),
		opens:    new(atomic.Int32),
		ui:       make(chan authschema.LoginUIStatus, 256),
	}

	serve := authhandler.ServeFunc(authhandler.Options{
		Config: config.ModuleConfig{
			SiteName:          "Example",
			TermsOfServiceURL: "https://example.test/terms",
			PrivacyPolicyURL:  "https://example.test/privacy",
			LoginPageURL:      "https://example.test/login",
			AccountPageURL:    "https://example.test/account",
			RecordsOrigin:     "https://records.module.test",
			WebsocketOrigin:   "wss://ws.module.test",
			WebsocketProtocol: "module-v1",
		},
		Identity: fake,
		Store:    f.store,
		Surfaces: f.surfaces,
		Version:  version,
		Clock:    fakeClock,
		Logger:   discard,
	})
	f.opener = &channel.Opener{
		Modules: map[string]channel.ServeFunc{
			"auth": func(ctx context.Context, port channel.Port) error {
				f.opens.Add(1)
				return serve(ctx, port)
			},
		},
		Logger: discard,
	}
	f.helper = New(Options{
		Host: config.HostConfig{
			Origin:            "mem://auth",
			RecordsOrigin:     "https://records.fallback.test",
			WebsocketOrigin:   "wss://ws.fallback.test",
			WebsocketProtocol: "fallback-v1",
		},
		Opener: f.opener,
		Logger: discard,
	})
	t.Cleanup(func() { f.helper.Close() })
	f.helper.OnLoginUIStatus(func(status authschema.LoginUIStatus) { f.ui <- status })
	<-f.ui
	return f
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout) //nolint:realclock test hang prevention
	t.Cleanup(cancel)
	return ctx
}

func (f *fixture) waitPage(page authschema.Page) authschema.LoginUIStatus {
	f.t.Helper()
	for {
		status := testutil.RequireReceive(f.t, f.ui, waitTimeout, "UI page "+string(page))
		if status.Page == page {
			return status
		}
	}
}

type loginResult struct {
	data *authschema.AuthData
	err  error
}

func (f *fixture) authenticate() <-chan loginResult {
	results := make(chan loginResult, 1)
	go func() {
		data, err := f.helper.Authenticate(context.Background())
		results <- loginResult{data, err}
	}()
	return results
}

// storeSession leaves a session for a new user where the module will
// discover it.
func (f *fixture) storeSession(address string) authschema.AuthData {
	f.t.Helper()
	user := f.identity.AddUser(address, authschema.AuthData{DisplayName: address})
	session, err := f.identity.IssueSession(user.UserID)
	if err != nil {
		f.t.Fatalf("IssueSession: %v", err)
	}
	f.store.Save(context.Background(), sessionstore.Session{
		Token:         session.Token,
		ConnectionKey: session.ConnectionKey,
		UserID:        user.UserID,
	})
	return user
}

func TestNoOriginReturnsDefaults(t *testing.T) {
	helper := New(Options{
		Host:   config.HostConfig{RecordsOrigin: "https://records.fallback.test"},
		Logger: discard,
	})
	defer helper.Close()
	ctx := testContext(t)

	if helper.Enabled() {
		t.Fatal("helper without an origin reports enabled")
	}
	if loggedIn, err := helper.IsLoggedIn(ctx); loggedIn || err != nil {
		t.Errorf("IsLoggedIn = %v, %v", loggedIn, err)
	}
	if data, err := helper.Authenticate(ctx); data != nil || err != nil {
		t.Errorf("Authenticate = %+v, %v", data, err)
	}
	if token, err := helper.AuthToken(ctx); token != "" || err != nil {
		t.Errorf("AuthToken = %q, %v", token, err)
	}
	if err := helper.ProvideEmailAddress(ctx, "a@b.com", true); err != nil {
		t.Errorf("ProvideEmailAddress: %v", err)
	}
	if err := helper.Logout(ctx); err != nil {
		t.Errorf("Logout: %v", err)
	}
	if origin, err := helper.RecordsOrigin(ctx); origin != "https://records.fallback.test" || err != nil {
		t.Errorf("RecordsOrigin = %q, %v", origin, err)
	}
	if version, err := helper.Version(ctx); version != 0 || err != nil {
		t.Errorf("Version = %d, %v", version, err)
	}
	if helper.AuthData() != nil {
		t.Error("cached identity without a module")
	}
}

func TestConcurrentFirstCallsShareOneHandshake(t *testing.T) {
	f := newFixture(t, 0)
	ctx := testContext(t)

	var group sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		group.Add(1)
		go func() {
			defer group.Done()
			_, err := f.helper.IsLoggedIn(ctx)
			errs <- err
		}()
	}
	group.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("IsLoggedIn: %v", err)
		}
	}
	if opens := f.opens.Load(); opens != 1 {
		t.Errorf("module started %d times, want 1", opens)
	}
	if version := f.helper.Snapshot().Version; version != protocol.Current {
		t.Errorf("snapshot version = %d, want %d", version, protocol.Current)
	}
}

func TestFailedInitializationIsRetried(t *testing.T) {
	f := newFixture(t, 0)
	ctx := testContext(t)
	serve := f.opener.Modules["auth"]
	delete(f.opener.Modules, "auth")

	if _, err := f.helper.IsLoggedIn(ctx); err == nil {
		t.Fatal("IsLoggedIn succeeded with no module to open")
	}

	f.opener.Modules["auth"] = serve
	if _, err := f.helper.IsLoggedIn(ctx); err != nil {
		t.Fatalf("IsLoggedIn after the module appeared: %v", err)
	}
}

func TestAuthenticateWithCustomUI(t *testing.T) {
	f := newFixture(t, 0)
	ctx := testContext(t)

	statuses := make(chan authschema.LoginStatus, 256)
	f.helper.OnLoginStatus(func(status authschema.LoginStatus) { statuses <- status })

	if err := f.helper.SetUseCustomUI(ctx, true); err != nil {
		t.Fatalf("SetUseCustomUI: %v", err)
	}
	results := f.authenticate()
	f.waitPage(authschema.PageEnterAddress)
	if err := f.helper.ProvideEmailAddress(ctx, "a@b.com", true); err != nil {
		t.Fatalf("ProvideEmailAddress: %v", err)
	}
	check := f.waitPage(authschema.PageCheckAddress)
	if check.Address != "a@b.com" {
		t.Errorf("check_address for %q", check.Address)
	}
	if err := f.helper.ProvideCode(ctx, identitytest.DefaultCode); err != nil {
		t.Fatalf("ProvideCode: %v", err)
	}

	result := testutil.RequireReceive(t, results, waitTimeout, "Authenticate")
	if result.err != nil || result.data == nil {
		t.Fatalf("Authenticate = %+v, %v", result.data, result.err)
	}
	// Pushes are delivered before the result they precede.
	if cached := f.helper.AuthData(); cached == nil || cached.UserID != result.data.UserID {
		t.Errorf("cached identity = %+v", cached)
	}
	if f.helper.Snapshot().Status.LoggingIn() {
		t.Error("snapshot still logging in")
	}

	sawLoggingIn := false
	for len(statuses) > 0 {
		if status := <-statuses; status.LoggingIn() {
			sawLoggingIn = true
		}
	}
	if !sawLoggingIn {
		t.Error("no pushed status showed the login in progress")
	}

	token, err := f.helper.AuthToken(ctx)
	if err != nil || token == "" {
		t.Fatalf("AuthToken = %q, %v", token, err)
	}

	if err := f.helper.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if !f.identity.Revoked(token) {
		t.Error("logout did not revoke the session")
	}
}

func TestVersionOneDerivesStatus(t *testing.T) {
	f := newFixture(t, protocol.Fallback)
	ctx := testContext(t)
	user := f.storeSession("a@b.com")

	data, err := f.helper.Login(ctx, true)
	if err != nil || data == nil || data.UserID != user.UserID {
		t.Fatalf("background Login = %+v, %v", data, err)
	}
	if version := f.helper.Snapshot().Version; version != protocol.Fallback {
		t.Fatalf("negotiated %d, want %d", version, protocol.Fallback)
	}
	if cached := f.helper.AuthData(); cached == nil || cached.UserID != user.UserID {
		t.Errorf("cached identity after login = %+v", cached)
	}

	if err := f.helper.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if cached := f.helper.AuthData(); cached != nil {
		t.Errorf("cached identity after logout = %+v", cached)
	}
	if len(f.ui) != 0 {
		t.Error("UI status pushed by a version 1 module")
	}
}

func TestVersionGatedDefaults(t *testing.T) {
	for version := protocol.Fallback; version <= protocol.Current; version++ {
		t.Run(fmt.Sprintf("v%d", version), func(t *testing.T) {
			f := newFixture(t, version)
			ctx := testContext(t)

			// Every gated call succeeds at every version; below its
			// minimum the module would answer unknown_method.
			for name, call := range map[string]func() error{
				"OpenAccountPage":     func() error { return f.helper.OpenAccountPage(ctx) },
				"SetUseCustomUI":      func() error { return f.helper.SetUseCustomUI(ctx, false) },
				"ProvideEmailAddress": func() error { return f.helper.ProvideEmailAddress(ctx, "a@b.com", true) },
				"ProvideCode":         func() error { return f.helper.ProvideCode(ctx, "1") },
				"CancelLogin":         func() error { return f.helper.CancelLogin(ctx) },
				"ProvideSMSNumber":    func() error { return f.helper.ProvideSMSNumber(ctx, "+15551234567", true) },
				"ProvideHasAccount":   func() error { return f.helper.ProvideHasAccount(ctx, true) },
				"ProvideRegistration": func() error { return f.helper.ProvideRegistration(ctx, authschema.RegistrationInfo{}) },
			} {
				if err := call(); err != nil {
					t.Errorf("%s: %v", name, err)
				}
			}

			opened := len(f.surfaces.Shown()) == 1
			if want := protocol.Supports(version, protocol.OpenAccountPage); opened != want {
				t.Errorf("account page shown = %v, want %v", opened, want)
			}

			checkOrigin := func(name string, get func(context.Context) (string, error), capability protocol.Capability, module, fallback string) {
				t.Helper()
				got, err := get(ctx)
				want := fallback
				if protocol.Supports(version, capability) {
					want = module
				}
				if err != nil || got != want {
					t.Errorf("%s = %q, %v; want %q", name, got, err, want)
				}
			}
			checkOrigin("RecordsOrigin", f.helper.RecordsOrigin, protocol.GetRecordsOrigin,
				"https://records.module.test", "https://records.fallback.test")
			checkOrigin("WebsocketOrigin", f.helper.WebsocketOrigin, protocol.GetWebsocketOrigin,
				"wss://ws.module.test", "wss://ws.fallback.test")
			checkOrigin("WebsocketProtocol", f.helper.WebsocketProtocol, protocol.GetWebsocketProtocol,
				"module-v1", "fallback-v1")

			urls, err := f.helper.PolicyURLs(ctx)
			if err != nil {
				t.Fatalf("PolicyURLs: %v", err)
			}
			if reported := urls.TermsOfServiceURL != ""; reported != protocol.Supports(version, protocol.GetPolicyURLs) {
				t.Errorf("PolicyURLs = %+v at version %d", urls, version)
			}
		})
	}
}

func TestCloseFailsOutstandingAndLaterCalls(t *testing.T) {
	f := newFixture(t, 0)
	results := f.authenticate()
	// The external login page is open: the call is outstanding.
	testutil.RequireReceive(t, f.surfaces.Tabs(), waitTimeout, "login page")

	if err := f.helper.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	result := testutil.RequireReceive(t, results, waitTimeout, "Authenticate after Close")
	if !errors.Is(result.err, channel.ErrClosed) {
		t.Errorf("outstanding Authenticate = %+v, %v; want ErrClosed", result.data, result.err)
	}

	if _, err := f.helper.IsLoggedIn(testContext(t)); !errors.Is(err, channel.ErrClosed) {
		t.Errorf("IsLoggedIn after Close = %v, want ErrClosed", err)
	}
	if err := f.helper.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
