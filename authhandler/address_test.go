// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authhandler

import (
	"context"
	"testing"

	"github.com/bureau-foundation/authbridge/lib/authschema"
	"github.com/bureau-foundation/authbridge/lib/config"
	"github.com/bureau-foundation/authbridge/lib/identity/identitytest"
	"github.com/bureau-foundation/authbridge/lib/sessiontoken"
)

func customUI(c *config.ModuleConfig) { c.UseCustomUI = true }

func smsEnabled(c *config.ModuleConfig) {
	c.UseCustomUI = true
	c.EnableSMS = true
}

func TestEmailLogin_HappyPath(t *testing.T) {
	h := newHarness(t, customUI)
	results := h.login(false)

	enter := h.waitPage(authschema.PageEnterAddress, "")
	if enter.SiteName != "Example" || enter.TermsOfServiceURL == "" || enter.PrivacyPolicyURL == "" {
		t.Errorf("enter_address lacks the legal echo: %+v", enter)
	}
	if enter.SupportsSMS {
		t.Error("SupportsSMS set with SMS disabled")
	}

	h.handler.ProvideEmailAddress("a@b.com", true)
	check := h.waitPage(authschema.PageCheckAddress, "")
	if check.Address != "a@b.com" || check.AddressType != authschema.AddressEmail || !check.EnterCode {
		t.Errorf("check_address = %+v", check)
	}

	h.handler.ProvideCode(identitytest.DefaultCode)
	result := h.result(results)
	if result.err != nil {
		t.Fatalf("Login: %v", result.err)
	}
	if result.data == nil || result.data.Email != "a@b.com" {
		t.Fatalf("AuthData = %+v, want the a@b.com user", result.data)
	}

	if !h.handler.IsLoggedIn() {
		t.Error("IsLoggedIn = false after login")
	}
	token := h.handler.Token()
	expiry, ok := sessiontoken.Expiry(token)
	if !ok {
		t.Fatal("installed token has no expiry")
	}
	deadline, ok := h.handler.RefreshDeadline()
	if !ok || !deadline.Before(expiry) {
		t.Errorf("refresh deadline %v (scheduled %v), want strictly before expiry %v", deadline, ok, expiry)
	}
	if h.clock.PendingCount() != 1 {
		t.Errorf("pending timers = %d, want 1", h.clock.PendingCount())
	}
	requireHidden(t, h)

	stored, ok, err := h.store.Load(context.Background())
	if err != nil || !ok || stored.Token != token || stored.UserID != result.data.UserID {
		t.Errorf("stored session = %+v (present %v, err %v)", stored, ok, err)
	}
}

func TestAddressValidationOrder(t *testing.T) {
	tests := []struct {
		name          string
		sms           bool
		address       string
		acceptedTerms bool
		want          string
		wantRemote    bool
	}{
		{name: "terms first", address: "", acceptedTerms: false, want: authschema.ErrorTermsNotAccepted},
		{name: "empty email", address: "", acceptedTerms: true, want: authschema.ErrorEmailNotProvided},
		{name: "malformed email", address: "not-an-email", acceptedTerms: true, want: authschema.ErrorInvalidEmail, wantRemote: true},
		{name: "empty sms", sms: true, address: "  ", acceptedTerms: true, want: authschema.ErrorSMSNotProvided},
		{name: "sms without country code", sms: true, address: "5551234", acceptedTerms: true, want: authschema.ErrorInvalidSMS},
		{name: "sms rejected remotely", sms: true, address: "+1", acceptedTerms: true, want: authschema.ErrorInvalidSMS, wantRemote: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(t, smsEnabled)
			results := h.login(false)
			h.waitPage(authschema.PageEnterAddress, "")

			if test.sms {
				h.handler.ProvideSMSNumber(test.address, test.acceptedTerms)
			} else {
				h.handler.ProvideEmailAddress(test.address, test.acceptedTerms)
			}
			status := h.waitPage(authschema.PageEnterAddress, test.want)
			if status.ErrorMessage == "" {
				t.Error("error code shown without a message")
			}

			remote := h.identity.Calls(identitytest.MethodValidateAddress) > 0
			if remote != test.wantRemote {
				t.Errorf("remote validation called = %v, want %v", remote, test.wantRemote)
			}
			if h.identity.Calls(identitytest.MethodLogin) != 0 {
				t.Error("a rejected address reached the login call")
			}

			h.handler.CancelLogin()
			if result := h.result(results); result.data != nil || result.err != nil {
				t.Errorf("canceled attempt = %+v, %v", result.data, result.err)
			}
		})
	}
}

func TestSMSFormatGate(t *testing.T) {
	h := newHarness(t, smsEnabled)
	results := h.login(false)
	if status := h.waitPage(authschema.PageEnterAddress, ""); !status.SupportsSMS {
		t.Error("SupportsSMS = false with SMS enabled")
	}

	h.handler.ProvideSMSNumber("5551234", true)
	h.waitPage(authschema.PageEnterAddress, authschema.ErrorInvalidSMS)
	if calls := h.identity.Calls(identitytest.MethodValidateAddress); calls != 0 {
		t.Fatalf("remote validation called %d times for a number without +", calls)
	}

	h.handler.ProvideSMSNumber("+1 (555) 123-4567", true)
	check := h.waitPage(authschema.PageCheckAddress, "")
	if check.Address != "+15551234567" || check.AddressType != authschema.AddressSMS {
		t.Errorf("check_address = %+v, want the normalized number", check)
	}
	h.handler.ProvideCode(identitytest.DefaultCode)
	if result := h.result(results); result.data == nil || result.data.PhoneNumber != "+15551234567" {
		t.Fatalf("SMS login = %+v, %v", result.data, result.err)
	}
}

func TestSMSDisabled(t *testing.T) {
	tests := []struct {
		name          string
		number        string
		acceptedTerms bool
		want          string
	}{
		{name: "terms first", number: "+15551234567", acceptedTerms: false, want: authschema.ErrorTermsNotAccepted},
		{name: "empty number", number: "", acceptedTerms: true, want: authschema.ErrorSMSNotProvided},
		{name: "without country code", number: "5551234", acceptedTerms: true, want: authschema.ErrorInvalidSMS},
		{name: "well formed", number: "+15551234567", acceptedTerms: true, want: authschema.ErrorAddressTypeNotSupported},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(t, customUI)
			results := h.login(false)
			if status := h.waitPage(authschema.PageEnterAddress, ""); status.SupportsSMS {
				t.Error("SupportsSMS = true with SMS disabled")
			}
			h.handler.ProvideSMSNumber(test.number, test.acceptedTerms)
			h.waitPage(authschema.PageEnterAddress, test.want)
			if calls := h.identity.Calls(identitytest.MethodValidateAddress); calls != 0 {
				t.Errorf("remote validation called %d times with SMS disabled", calls)
			}
			h.handler.CancelLogin()
			h.result(results)
		})
	}
}

func TestRemoteRejectionIsRecoverable(t *testing.T) {
	for _, code := range []string{authschema.ErrorUserIsBanned, authschema.ErrorUnacceptableAddress} {
		t.Run(code, func(t *testing.T) {
			h := newHarness(t, customUI)
			if code == authschema.ErrorUserIsBanned {
				h.identity.Ban("bad@example.com")
			} else {
				h.identity.Reject("bad@example.com", code)
			}
			results := h.login(false)
			h.waitPage(authschema.PageEnterAddress, "")

			h.handler.ProvideEmailAddress("bad@example.com", true)
			h.waitPage(authschema.PageEnterAddress, code)

			h.handler.ProvideEmailAddress("good@example.com", true)
			h.waitPage(authschema.PageCheckAddress, "")
			h.handler.ProvideCode(identitytest.DefaultCode)
			if result := h.result(results); result.data == nil || result.data.Email != "good@example.com" {
				t.Fatalf("login after rejection = %+v, %v", result.data, result.err)
			}
		})
	}
}

func TestWrongCodeStaysOnCheckAddress(t *testing.T) {
	h := newHarness(t, customUI)
	results := h.login(false)
	h.waitPage(authschema.PageEnterAddress, "")
	h.handler.ProvideEmailAddress("a@b.com", true)
	h.waitPage(authschema.PageCheckAddress, "")

	h.handler.ProvideCode("000000")
	status := h.waitPage(authschema.PageCheckAddress, authschema.ErrorInvalidCode)
	if status.Address != "a@b.com" {
		t.Errorf("check_address lost the address: %+v", status)
	}

	h.handler.ProvideCode(identitytest.DefaultCode)
	if result := h.result(results); result.data == nil {
		t.Fatalf("login after a wrong code = %+v, %v", result.data, result.err)
	}
	if sent := h.identity.CodesSent("a@b.com"); sent != 1 {
		t.Errorf("codes sent = %d, want 1", sent)
	}
}

func TestInputNotAwaitedIsDropped(t *testing.T) {
	h := newHarness(t, customUI)
	if h.handler.ProvideEmailAddress("a@b.com", true) {
		t.Error("address taken with no attempt running")
	}

	results := h.login(false)
	h.waitPage(authschema.PageEnterAddress, "")
	if h.handler.ProvideCode(identitytest.DefaultCode) {
		t.Error("code taken while waiting for an address")
	}
	h.handler.CancelLogin()
	h.result(results)
}

func TestCancelWinsOverPendingInput(t *testing.T) {
	h := newHarness(t, customUI)
	results := h.login(false)
	h.waitPage(authschema.PageEnterAddress, "")
	h.handler.ProvideEmailAddress("a@b.com", true)
	h.waitPage(authschema.PageCheckAddress, "")

	// The code is queued after the cancellation signal is set; the
	// attempt must not act on it.
	h.mutexedCancelThenCode(identitytest.DefaultCode)

	result := h.result(results)
	if result.data != nil || result.err != nil {
		t.Fatalf("attempt = %+v, %v; want canceled", result.data, result.err)
	}
	if calls := h.identity.Calls(identitytest.MethodCompleteLogin); calls != 0 {
		t.Errorf("CompleteLogin called %d times after cancel", calls)
	}
	if h.handler.IsLoggedIn() {
		t.Error("logged in after cancel")
	}
	requireHidden(t, h)
}

// mutexedCancelThenCode sets the cancellation signal and delivers a
// code while the attempt cannot run in between.
func (h *harness) mutexedCancelThenCode(code string) {
	h.handler.mutex.Lock()
	current := h.handler.attempt
	current.cancel()
	current.codes <- code
	h.handler.mutex.Unlock()
}

func TestLogoutDuringAttemptDoesNotResurrect(t *testing.T) {
	h := newHarness(t, customUI)
	results := h.login(false)
	h.waitPage(authschema.PageEnterAddress, "")
	h.handler.ProvideEmailAddress("a@b.com", true)
	h.waitPage(authschema.PageCheckAddress, "")

	h.handler.Logout(context.Background())
	h.handler.ProvideCode(identitytest.DefaultCode)

	if result := h.result(results); result.data != nil {
		t.Fatalf("attempt survived logout: %+v", result.data)
	}
	if h.handler.IsLoggedIn() || h.handler.AuthData() != nil {
		t.Error("logout during an attempt left a session behind")
	}
	if _, ok, _ := h.store.Load(context.Background()); ok {
		t.Error("session stored after logout")
	}
}
