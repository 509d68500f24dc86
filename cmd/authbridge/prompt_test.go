// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/authbridge/lib/authschema"
	"github.com/bureau-foundation/authbridge/lib/testutil"
)

const promptTimeout = 5 * time.Second

// fakeLoginHelper records the actions a prompt session takes. Login
// blocks until the test sends a result.
type fakeLoginHelper struct {
	mutex      sync.Mutex
	subscriber func(authschema.LoginUIStatus)
	subscribed chan struct{}

	calls  chan string
	result chan loginResult
}

func newFakeLoginHelper() *fakeLoginHelper {
	return &fakeLoginHelper{
		subscribed: make(chan struct{}),
		calls:      make(chan string, 16),
		result:     make(chan loginResult, 1),
	}
}

func (f *fakeLoginHelper) Login(context.Context, bool) (*authschema.AuthData, error) {
	result := <-f.result
	return result.data, result.err
}

func (f *fakeLoginHelper) OnLoginUIStatus(fn func(authschema.LoginUIStatus)) func() {
	f.mutex.Lock()
	f.subscriber = fn
	f.mutex.Unlock()
	fn(authschema.Hidden())
	close(f.subscribed)
	return func() {}
}

func (f *fakeLoginHelper) push(t *testing.T, status authschema.LoginUIStatus) {
	t.Helper()
	testutil.RequireClosed(t, f.subscribed, promptTimeout, "login never subscribed to UI status")
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.subscriber(status)
}

func (f *fakeLoginHelper) ProvideEmailAddress(_ context.Context, email string, acceptedTerms bool) error {
	f.calls <- fmt.Sprintf("email %s %t", email, acceptedTerms)
	return nil
}

func (f *fakeLoginHelper) ProvideSMSNumber(_ context.Context, number string, acceptedTerms bool) error {
	f.calls <- fmt.Sprintf("sms %s %t", number, acceptedTerms)
	return nil
}

func (f *fakeLoginHelper) ProvideCode(_ context.Context, code string) error {
	f.calls <- "code " + code
	return nil
}

func (f *fakeLoginHelper) ProvideHasAccount(_ context.Context, hasAccount bool) error {
	f.calls <- fmt.Sprintf("has_account %t", hasAccount)
	return nil
}

func (f *fakeLoginHelper) ProvideRegistration(_ context.Context, info authschema.RegistrationInfo) error {
	f.calls <- fmt.Sprintf("registration %s|%s|%s|%s|%s|%t",
		info.DisplayName, info.Name, info.DateOfBirth.Format(time.DateOnly),
		info.Email, info.ParentEmail, info.AcceptedTerms)
	return nil
}

func (f *fakeLoginHelper) CancelLogin(context.Context) error {
	f.calls <- "cancel"
	return nil
}

// promptRecorder delivers each write as one message.
type promptRecorder struct {
	writes chan string
}

func (r *promptRecorder) Write(p []byte) (int, error) {
	r.writes <- string(p)
	return len(p), nil
}

// session is one running interactiveLogin.
type session struct {
	helper *fakeLoginHelper
	stdin  *io.PipeWriter
	output *promptRecorder
	done   chan loginResult
}

func startLogin(t *testing.T, ctx context.Context) *session {
	t.Helper()
	in, stdin := io.Pipe()
	t.Cleanup(func() { stdin.Close() })
	s := &session{
		helper: newFakeLoginHelper(),
		stdin:  stdin,
		output: &promptRecorder{writes: make(chan string, 256)},
		done:   make(chan loginResult, 1),
	}
	go func() {
		data, err := interactiveLogin(ctx, s.helper, in, s.output)
		s.done <- loginResult{data: data, err: err}
	}()
	return s
}

// expectOutput waits for a write containing want.
func (s *session) expectOutput(t *testing.T, want string) {
	t.Helper()
	for {
		written := testutil.RequireReceive(t, s.output.writes, promptTimeout, "waiting for output %q", want)
		if strings.Contains(written, want) {
			return
		}
	}
}

func (s *session) answer(t *testing.T, line string) {
	t.Helper()
	if _, err := io.WriteString(s.stdin, line+"\n"); err != nil {
		t.Fatalf("writing answer: %v", err)
	}
}

func (s *session) expectCall(t *testing.T, want string) {
	t.Helper()
	if got := testutil.RequireReceive(t, s.helper.calls, promptTimeout, "waiting for %q", want); got != want {
		t.Fatalf("call = %q, want %q", got, want)
	}
}

func (s *session) finish(t *testing.T, result loginResult) loginResult {
	t.Helper()
	s.helper.result <- result
	return testutil.RequireReceive(t, s.done, promptTimeout, "interactive login did not return")
}

func TestInteractiveLoginEmailAndCode(t *testing.T) {
	s := startLogin(t, t.Context())

	s.helper.push(t, authschema.LoginUIStatus{
		Page:              authschema.PageEnterAddress,
		SiteName:          "Example",
		TermsOfServiceURL: "https://example.com/terms",
	})
	s.expectOutput(t, "Log in to Example")
	s.expectOutput(t, "Email address: ")
	s.answer(t, "ada@example.com")
	s.expectOutput(t, "Accept the terms of service (https://example.com/terms)? [y/N]: ")
	s.answer(t, "y")
	s.expectCall(t, "email ada@example.com true")

	s.helper.push(t, authschema.LoginUIStatus{
		Page:        authschema.PageCheckAddress,
		Address:     "ada@example.com",
		AddressType: authschema.AddressEmail,
		EnterCode:   true,
	})
	s.expectOutput(t, "Code sent to ada@example.com: ")
	s.answer(t, "")
	s.expectOutput(t, "a value is required")
	s.answer(t, "123456")
	s.expectCall(t, "code 123456")

	want := &authschema.AuthData{UserID: "user-1", DisplayName: "Ada"}
	result := s.finish(t, loginResult{data: want})
	if result.err != nil || result.data != want {
		t.Fatalf("interactiveLogin = (%v, %v), want (%v, nil)", result.data, result.err, want)
	}
}

func TestInteractiveLoginPhoneNumberWhenSMSSupported(t *testing.T) {
	s := startLogin(t, t.Context())

	s.helper.push(t, authschema.LoginUIStatus{Page: authschema.PageEnterAddress, SupportsSMS: true})
	s.expectOutput(t, "Email address or phone number: ")
	s.answer(t, "+1 555-0100")
	s.expectOutput(t, "[y/N]")
	s.answer(t, "n")
	s.expectCall(t, "sms +1 555-0100 false")

	s.finish(t, loginResult{})
}

func TestInteractiveLoginShowsPageErrors(t *testing.T) {
	s := startLogin(t, t.Context())

	s.helper.push(t, authschema.LoginUIStatus{
		Page:         authschema.PageEnterAddress,
		ErrorCode:    authschema.ErrorInvalidEmail,
		ErrorMessage: "Invalid email address",
	})
	s.expectOutput(t, "error: Invalid email address")
	s.expectOutput(t, "Email address: ")

	s.finish(t, loginResult{})
}

func TestInteractiveLoginRegistration(t *testing.T) {
	s := startLogin(t, t.Context())

	s.helper.push(t, authschema.LoginUIStatus{Page: authschema.PageHasAccount})
	s.expectOutput(t, "Do you already have an account? [y/N]: ")
	s.answer(t, "no")
	s.expectCall(t, "has_account false")

	s.helper.push(t, authschema.LoginUIStatus{Page: authschema.PageEnterPrivoAccountInfo})
	for _, step := range []struct{ prompt, answer string }{
		{"Display name: ", "Ada"},
		{"Legal name: ", "Ada Lovelace"},
		{"Date of birth (YYYY-MM-DD): ", "March 1st"},
		{"expected YYYY-MM-DD", ""},
		{"Date of birth (YYYY-MM-DD): ", "2015-03-01"},
		{"Email address (blank if under 18): ", ""},
		{"Parent's email address (blank if 18 or over): ", "parent@example.com"},
		{"Accept the terms of service? [y/N]: ", "yes"},
	} {
		s.expectOutput(t, step.prompt)
		if step.prompt == "expected YYYY-MM-DD" {
			continue
		}
		s.answer(t, step.answer)
	}
	s.expectCall(t, "registration Ada|Ada Lovelace|2015-03-01||parent@example.com|true")

	s.helper.push(t, authschema.LoginUIStatus{
		Page:              authschema.PageShowUpdatePasswordLink,
		UpdatePasswordURL: "https://example.com/password",
	})
	s.expectOutput(t, "https://example.com/password")
	s.expectOutput(t, "Press enter when done: ")
	s.answer(t, "")
	s.expectCall(t, "cancel")

	s.finish(t, loginResult{data: &authschema.AuthData{UserID: "user-2"}})
}

func TestInteractiveLoginIframeCanceledByEnter(t *testing.T) {
	s := startLogin(t, t.Context())

	s.helper.push(t, authschema.LoginUIStatus{Page: authschema.PageShowIframe, IframeURL: "https://example.com/frame"})
	s.expectOutput(t, "https://example.com/frame")
	s.expectOutput(t, "Press enter to cancel: ")
	s.answer(t, "")
	s.expectCall(t, "cancel")

	result := s.finish(t, loginResult{})
	if result.data != nil || result.err != nil {
		t.Fatalf("canceled login = (%v, %v), want (nil, nil)", result.data, result.err)
	}
}

func TestInteractiveLoginCancelsOnContextEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	s := startLogin(t, ctx)
	testutil.RequireClosed(t, s.helper.subscribed, promptTimeout, "login never subscribed")

	cancel()
	s.expectCall(t, "cancel")

	// The module's answer still ends the login.
	result := s.finish(t, loginResult{})
	if result.data != nil || result.err != nil {
		t.Fatalf("canceled login = (%v, %v), want (nil, nil)", result.data, result.err)
	}
	testutil.RequireNoReceive(t, s.helper.calls, 50*time.Millisecond, "cancel sent twice")
}

func TestInteractiveLoginCancelsOnEndOfInput(t *testing.T) {
	s := startLogin(t, t.Context())
	testutil.RequireClosed(t, s.helper.subscribed, promptTimeout, "login never subscribed")

	s.stdin.Close()
	s.expectCall(t, "cancel")
	s.finish(t, loginResult{})
}

func TestLooksLikePhoneNumber(t *testing.T) {
	tests := []struct {
		address string
		want    bool
	}{
		{"+1 555-0100", true},
		{"(555) 0100", true},
		{"5550100", true},
		{"ada@example.com", false},
		{"1+1", false},
		{"+", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := looksLikePhoneNumber(tt.address); got != tt.want {
			t.Errorf("looksLikePhoneNumber(%q) = %v, want %v", tt.address, got, tt.want)
		}
	}
}
