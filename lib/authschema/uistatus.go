// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authschema

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bureau-foundation/authbridge/lib/codec"
)

// Page is the LoginUIStatus discriminant. The hidden page travels as
// the boolean false.
type Page string

const (
	PageHidden                 Page = ""
	PageEnterAddress           Page = "enter_address"
	PageCheckAddress           Page = "check_address"
	PageHasAccount             Page = "has_account"
	PageEnterPrivoAccountInfo  Page = "enter_privo_account_info"
	PageShowUpdatePasswordLink Page = "show_update_password_link"
	PageShowIframe             Page = "show_iframe"
)

// AddressType distinguishes email from SMS addresses.
type AddressType string

const (
	AddressEmail AddressType = "email"
	AddressSMS   AddressType = "sms"
)

// LoginUIStatus is one emission on the UI-status stream. Each emission
// replaces the previous one entirely.
type LoginUIStatus struct {
	Page Page `json:"page"`

	// ErrorCode is a validation or remote-rejection code for the
	// current page; ErrorMessage is its human-readable form.
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	// Echoed on address-entry pages so the host can render legal text.
	SiteName          string `json:"siteName,omitempty"`
	TermsOfServiceURL string `json:"termsOfServiceUrl,omitempty"`
	PrivacyPolicyURL  string `json:"privacyPolicyUrl,omitempty"`
	SupportsSMS       bool   `json:"supportsSms,omitempty"`

	// check_address: the address a code was sent to.
	Address     string      `json:"address,omitempty"`
	AddressType AddressType `json:"addressType,omitempty"`
	EnterCode   bool        `json:"enterCode,omitempty"`

	// show_update_password_link.
	UpdatePasswordURL string `json:"updatePasswordUrl,omitempty"`

	// show_iframe.
	IframeURL string `json:"iframeUrl,omitempty"`
}

// Hidden is the UI status with nothing shown.
func Hidden() LoginUIStatus { return LoginUIStatus{Page: PageHidden} }

// Visible reports whether any page is shown.
func (s LoginUIStatus) Visible() bool { return s.Page != PageHidden }

// Validate checks the discriminant and the fields its page requires.
func (s LoginUIStatus) Validate() error {
	switch s.Page {
	case PageHidden, PageEnterAddress, PageHasAccount, PageEnterPrivoAccountInfo:
		return nil
	case PageCheckAddress:
		if s.Address == "" {
			return errors.New("check_address requires an address")
		}
		if s.AddressType != AddressEmail && s.AddressType != AddressSMS {
			return fmt.Errorf("check_address has address type %q", s.AddressType)
		}
		return nil
	case PageShowUpdatePasswordLink:
		if s.UpdatePasswordURL == "" {
			return errors.New("show_update_password_link requires a URL")
		}
		return nil
	case PageShowIframe:
		if s.IframeURL == "" {
			return errors.New("show_iframe requires a URL")
		}
		return nil
	default:
		return fmt.Errorf("unknown login UI page %q", s.Page)
	}
}

func (p Page) MarshalJSON() ([]byte, error) {
	if p == PageHidden {
		return []byte("false"), nil
	}
	return json.Marshal(string(p))
}

func (p *Page) UnmarshalJSON(data []byte) error {
	var hidden bool
	if err := json.Unmarshal(data, &hidden); err == nil {
		return p.setHidden(hidden)
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("page must be false or a page name: %w", err)
	}
	*p = Page(name)
	return nil
}

func (p Page) MarshalCBOR() ([]byte, error) {
	if p == PageHidden {
		return codec.Marshal(false)
	}
	return codec.Marshal(string(p))
}

func (p *Page) UnmarshalCBOR(data []byte) error {
	var hidden bool
	if err := codec.Unmarshal(data, &hidden); err == nil {
		return p.setHidden(hidden)
	}
	var name string
	if err := codec.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("page must be false or a page name: %w", err)
	}
	*p = Page(name)
	return nil
}

func (p *Page) setHidden(value bool) error {
	if value {
		return errors.New("page true is not a page")
	}
	*p = PageHidden
	return nil
}
