// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/bureau-foundation/authbridge/lib/authschema"
	"github.com/bureau-foundation/authbridge/lib/netutil"
)

// API paths, relative to the service base URL.
const (
	PathValidateAddress = "/api/v2/address/valid"
	PathLogin           = "/api/v2/login"
	PathCompleteLogin   = "/api/v2/login/complete"
	PathUser            = "/api/v2/user"
	PathReplaceSession  = "/api/v2/replaceSession"
	PathRevokeSession   = "/api/v2/revokeSession"
	PathRequestOAuth    = "/api/v2/oauth/request"
	PathCompleteOAuth   = "/api/v2/oauth/complete"
	PathRegisterPrivo   = "/api/v2/register/privo"
	PathPublicRecordKey = "/api/v2/records/key"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the identity service root. It must use HTTPS unless
	// the host is a loopback address.
	BaseURL string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client implements Service over the identity service's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client. Returns an error if BaseURL is missing,
// malformed, or plain HTTP to a non-loopback host.
func NewClient(config Config) (*Client, error) {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("identity: BaseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("identity: parsing BaseURL: %w", err)
	}
	switch parsed.Scheme {
	case "https":
	case "http":
		if !isLoopback(parsed.Hostname()) {
			return nil, fmt.Errorf("identity: client requires HTTPS for non-loopback hosts (got %q)", baseURL)
		}
	default:
		return nil, fmt.Errorf("identity: unsupported BaseURL scheme %q", parsed.Scheme)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, logger: logger}, nil
}

var _ Service = (*Client)(nil)

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// envelope is the part of every response that reports success.
type envelope struct {
	Success      *bool  `json:"success"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type addressRequest struct {
	Address     string                 `json:"address"`
	AddressType authschema.AddressType `json:"addressType"`
}

type completeLoginRequest struct {
	ChallengeID string `json:"challengeId"`
	Code        string `json:"code"`
}

type completeOAuthRequest struct {
	RequestID string `json:"requestId"`
}

type validResponse struct {
	Valid bool `json:"valid"`
}

type userResponse struct {
	User authschema.AuthData `json:"user"`
}

type keyResponse struct {
	Key string `json:"key"`
}

func (client *Client) ValidateAddress(ctx context.Context, address string, addressType authschema.AddressType) (bool, error) {
	var response validResponse
	err := client.do(ctx, http.MethodPost, PathValidateAddress, "", addressRequest{address, addressType}, &response)
	return response.Valid, err
}

func (client *Client) Login(ctx context.Context, address string, addressType authschema.AddressType) (Challenge, error) {
	var challenge Challenge
	err := client.do(ctx, http.MethodPost, PathLogin, "", addressRequest{address, addressType}, &challenge)
	return challenge, err
}

func (client *Client) CompleteLogin(ctx context.Context, challengeID, code string) (Session, error) {
	var session Session
	err := client.do(ctx, http.MethodPost, PathCompleteLogin, "", completeLoginRequest{challengeID, code}, &session)
	return session, err
}

func (client *Client) User(ctx context.Context, token string) (authschema.AuthData, error) {
	var response userResponse
	err := client.do(ctx, http.MethodGet, PathUser, token, nil, &response)
	return response.User, err
}

func (client *Client) ReplaceSession(ctx context.Context, token string) (Session, error) {
	var session Session
	err := client.do(ctx, http.MethodPost, PathReplaceSession, token, nil, &session)
	return session, err
}

func (client *Client) RevokeSession(ctx context.Context, token string) error {
	return client.do(ctx, http.MethodPost, PathRevokeSession, token, nil, nil)
}

func (client *Client) RequestOAuthLogin(ctx context.Context) (OAuthRequest, error) {
	var request OAuthRequest
	err := client.do(ctx, http.MethodPost, PathRequestOAuth, "", nil, &request)
	return request, err
}

func (client *Client) CompleteOAuthLogin(ctx context.Context, requestID string) (Session, error) {
	var session Session
	err := client.do(ctx, http.MethodPost, PathCompleteOAuth, "", completeOAuthRequest{requestID}, &session)
	return session, err
}

func (client *Client) RegisterGuardianConsent(ctx context.Context, info authschema.RegistrationInfo) (Registration, error) {
	var registration Registration
	err := client.do(ctx, http.MethodPost, PathRegisterPrivo, "", info, &registration)
	return registration, err
}

func (client *Client) CreatePublicRecordKey(ctx context.Context, token string) (string, error) {
	var response keyResponse
	err := client.do(ctx, http.MethodPost, PathPublicRecordKey, token, nil, &response)
	return response.Key, err
}

// do sends one request and decodes a successful response into result
// (nil to discard). token, when set, is sent as a bearer credential.
// Failures reported by the service come back as *Error.
func (client *Client) do(ctx context.Context, method, path, token string, requestBody, result any) error {
	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("identity: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, client.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("identity: creating request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("identity: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	body, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return fmt.Errorf("identity: reading response body: %w", err)
	}

	var status envelope
	decodeErr := json.Unmarshal(body, &status)
	failed := response.StatusCode < 200 || response.StatusCode >= 300 ||
		(decodeErr == nil && status.Success != nil && !*status.Success)
	if failed {
		serviceErr := &Error{StatusCode: response.StatusCode, Code: status.ErrorCode, Message: status.ErrorMessage}
		if decodeErr != nil || serviceErr.Code == "" {
			serviceErr.Code = CodeInternal
			serviceErr.Message = strings.TrimSpace(string(body))
		}
		client.logger.Debug("identity service rejected request",
			"method", method, "path", path, "status", response.StatusCode, "code", serviceErr.Code)
		return serviceErr
	}
	if decodeErr != nil {
		return fmt.Errorf("identity: decoding %s response: %w", path, decodeErr)
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("identity: decoding %s response: %w", path, err)
		}
	}
	return nil
}
