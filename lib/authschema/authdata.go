// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authschema

// AuthData describes the authenticated identity. A value is never
// modified after it is produced; a re-login replaces it.
type AuthData struct {
	UserID            string          `json:"userId"`
	DisplayName       string          `json:"displayName"`
	Name              string          `json:"name,omitempty"`
	Email             string          `json:"email,omitempty"`
	PhoneNumber       string          `json:"phoneNumber,omitempty"`
	AvatarURL         string          `json:"avatarUrl,omitempty"`
	AvatarPortraitURL string          `json:"avatarPortraitUrl,omitempty"`
	SubscriptionTier  string          `json:"subscriptionTier,omitempty"`
	PrivacyFeatures   PrivacyFeatures `json:"privacyFeatures"`
}

// PrivacyFeatures are the account's data-sharing permissions.
type PrivacyFeatures struct {
	PublishData      bool `json:"publishData"`
	AllowPublicData  bool `json:"allowPublicData"`
	AllowAI          bool `json:"allowAi"`
	AllowPublicInsts bool `json:"allowPublicInsts"`
}

// LoginStatus is one update on the machine-status stream.
type LoginStatus struct {
	// Reset clears AuthData before the other fields apply. Logout
	// emits it; nothing else does.
	Reset bool `json:"reset,omitempty"`

	IsLoading   *bool     `json:"isLoading,omitempty"`
	IsLoggingIn *bool     `json:"isLoggingIn,omitempty"`
	AuthData    *AuthData `json:"authData,omitempty"`
}

// Merge returns s with update applied.
func (s LoginStatus) Merge(update LoginStatus) LoginStatus {
	if update.Reset {
		s.AuthData = nil
	}
	if update.IsLoading != nil {
		s.IsLoading = update.IsLoading
	}
	if update.IsLoggingIn != nil {
		s.IsLoggingIn = update.IsLoggingIn
	}
	if update.AuthData != nil {
		s.AuthData = update.AuthData
	}
	s.Reset = false
	return s
}

// Loading reports IsLoading, treating an unknown value as false.
func (s LoginStatus) Loading() bool { return s.IsLoading != nil && *s.IsLoading }

// LoggingIn reports IsLoggingIn, treating an unknown value as false.
func (s LoginStatus) LoggingIn() bool { return s.IsLoggingIn != nil && *s.IsLoggingIn }

// Bool returns a pointer to v, for building LoginStatus updates.
func Bool(v bool) *bool { return &v }

// PolicyURLs are the legal documents the host should link to.
type PolicyURLs struct {
	TermsOfServiceURL string `json:"termsOfServiceUrl,omitempty"`
	PrivacyPolicyURL  string `json:"privacyPolicyUrl,omitempty"`
}
