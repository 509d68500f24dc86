// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package surface

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/bureau-foundation/authbridge/lib/clock"
	"github.com/bureau-foundation/authbridge/lib/testutil"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// openBrowser opens a Browser tab whose launcher captures the page URL
// instead of starting a browser.
func openBrowser(t *testing.T, fake *clock.FakeClock) (Tab, *url.URL) {
	t.Helper()
	launched := make(chan string, 1)
	browser := &Browser{
		Launch: func(_ context.Context, target string) error {
			launched <- target
			return nil
		},
		Timeout: time.Minute,
		Clock:   fake,
		Logger:  discard,
	}
	tab, err := browser.Open(context.Background(), "https://login.example/signin?client=host")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { tab.Close() })

	page, err := url.Parse(testutil.RequireReceive(t, launched, time.Second, "page launch"))
	if err != nil {
		t.Fatalf("parsing launched URL: %v", err)
	}
	return tab, page
}

// callback builds the redirect a login page would issue.
func callback(t *testing.T, page *url.URL, params map[string]string) *http.Response {
	t.Helper()
	redirect, err := url.Parse(page.Query().Get(ParamRedirectURI))
	if err != nil {
		t.Fatalf("parsing redirect_uri: %v", err)
	}
	query := redirect.Query()
	for key, value := range params {
		query.Set(key, value)
	}
	redirect.RawQuery = query.Encode()
	response, err := http.Get(redirect.String())
	if err != nil {
		t.Fatalf("GET callback: %v", err)
	}
	response.Body.Close()
	return response
}

func TestBrowser_PageURL(t *testing.T) {
	_, page := openBrowser(t, clock.Fake(time.Unix(0, 0)))

	if page.Host != "login.example" || page.Path != "/signin" {
		t.Errorf("launched %s, want the login page", page)
	}
	query := page.Query()
	if query.Get("client") != "host" {
		t.Error("existing query parameters were dropped")
	}
	if query.Get(ParamState) == "" {
		t.Error("state parameter missing")
	}
	redirect, err := url.Parse(query.Get(ParamRedirectURI))
	if err != nil || redirect.Hostname() != "127.0.0.1" || redirect.Path != CallbackPath {
		t.Errorf("redirect_uri = %q, want a loopback callback", query.Get(ParamRedirectURI))
	}
}

func TestBrowser_LoginCallback(t *testing.T) {
	tab, page := openBrowser(t, clock.Fake(time.Unix(0, 0)))
	state := page.Query().Get(ParamState)

	response := callback(t, page, map[string]string{
		ParamState:         state,
		ParamUserID:        "user-7",
		ParamToken:         "token-7",
		ParamConnectionKey: "key-7",
	})
	if response.StatusCode != http.StatusOK {
		t.Fatalf("callback status = %d, want 200", response.StatusCode)
	}

	event := testutil.RequireReceive(t, tab.Events(), time.Second, "login event")
	want := Event{Kind: EventLogin, UserID: "user-7", Token: "token-7", ConnectionKey: "key-7"}
	if event != want {
		t.Errorf("event = %+v, want %+v", event, want)
	}
	if _, ok := <-tab.Events(); ok {
		t.Error("Events delivered a second event")
	}
}

func TestBrowser_ErrorCallbackIsClose(t *testing.T) {
	tab, page := openBrowser(t, clock.Fake(time.Unix(0, 0)))

	callback(t, page, map[string]string{
		ParamState: page.Query().Get(ParamState),
		ParamError: "access_denied",
	})
	event := testutil.RequireReceive(t, tab.Events(), time.Second, "close event")
	if event.Kind != EventClose {
		t.Errorf("event kind = %s, want close", event.Kind)
	}
}

func TestBrowser_RejectsWrongState(t *testing.T) {
	tab, page := openBrowser(t, clock.Fake(time.Unix(0, 0)))

	response := callback(t, page, map[string]string{
		ParamState:  "forged",
		ParamUserID: "attacker",
	})
	if response.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", response.StatusCode)
	}
	select {
	case event := <-tab.Events():
		t.Fatalf("forged callback produced %+v", event)
	default:
	}
}

func TestBrowser_TimeoutClosesWithoutEvent(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	tab, _ := openBrowser(t, fake)

	fake.Advance(time.Minute)
	select {
	case event, ok := <-tab.Events():
		if ok {
			t.Fatalf("timeout produced event %+v", event)
		}
	case <-time.After(time.Second): //nolint:realclock test hang prevention
		t.Fatal("Events not closed after timeout")
	}
}

func TestBrowser_LaunchFailureClosesTab(t *testing.T) {
	browser := &Browser{
		Launch: func(context.Context, string) error { return io.ErrUnexpectedEOF },
		Clock:  clock.Fake(time.Unix(0, 0)),
		Logger: discard,
	}
	if _, err := browser.Open(context.Background(), "https://login.example/"); err == nil {
		t.Fatal("Open succeeded with a failing launcher")
	}
}

func TestFakeTab(t *testing.T) {
	fake := NewFake()
	opened, err := fake.Open(context.Background(), "https://login.example/")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	tab := testutil.RequireReceive(t, fake.Tabs(), time.Second, "tab")
	if !tab.Cancel() {
		t.Fatal("Cancel on a fresh tab returned false")
	}
	if tab.Login("user", "", "") {
		t.Error("Login after Cancel returned true")
	}
	event := <-opened.Events()
	if event.Kind != EventClose {
		t.Errorf("event kind = %s, want close", event.Kind)
	}
	opened.Close()
	if !tab.Closed() {
		t.Error("Closed = false after Close")
	}
}
