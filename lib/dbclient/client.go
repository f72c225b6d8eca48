// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package dbclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sdms-foundation/sdms/lib/curve"
	"github.com/sdms-foundation/sdms/lib/netutil"
)

// DefaultTimeout bounds a request whose context has no deadline.
const DefaultTimeout = 10 * time.Second

// Config configures a Client.
type Config struct {
	// BaseURL is the database service root, for example
	// "https://db.example.org/api/sdms". Required.
	BaseURL string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	Timeout time.Duration

	Logger *slog.Logger
}

// Client talks to the database service. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// New returns a Client for config.BaseURL.
func New(config Config) (*Client, error) {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("dbclient: parsing base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("dbclient: base URL %q must be http or https", config.BaseURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("dbclient: base URL %q has no host", config.BaseURL)
	}

	client := &Client{
		baseURL:    baseURL,
		httpClient: config.HTTPClient,
		timeout:    config.Timeout,
		logger:     config.Logger,
	}
	if client.httpClient == nil {
		client.httpClient = http.DefaultClient
	}
	if client.timeout <= 0 {
		client.timeout = DefaultTimeout
	}
	if client.logger == nil {
		client.logger = slog.New(slog.DiscardHandler)
	}
	return client, nil
}

type uidResponse struct {
	UID string `json:"uid"`
}

// LookupUID returns the user that registered key. found is false when
// the database knows no such key.
func (client *Client) LookupUID(ctx context.Context, key string) (string, bool, error) {
	query := url.Values{"pub_key": {key}}
	var response uidResponse
	err := client.do(ctx, http.MethodGet, "/usr/find/by_pub_key", query, nil, &response)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("looking up key %s: %w", curve.Fingerprint([]byte(key)), err)
	}
	if response.UID == "" {
		return "", false, nil
	}
	return response.UID, true, nil
}

type tokenRequest struct {
	Token string `json:"token"`
}

// VerifyToken returns the user that owns an access token. Unknown,
// expired or revoked tokens yield an error matching ErrInvalidToken.
func (client *Client) VerifyToken(ctx context.Context, token string) (string, error) {
	var response uidResponse
	err := client.do(ctx, http.MethodPost, "/usr/authn/token", nil, tokenRequest{Token: token}, &response)
	var apiError *APIError
	if errors.As(err, &apiError) {
		switch apiError.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
	}
	if err != nil {
		return "", fmt.Errorf("verifying access token: %w", err)
	}
	if response.UID == "" {
		return "", fmt.Errorf("%w: response carried no uid", ErrInvalidToken)
	}
	return response.UID, nil
}

// RepoAccess names one repository access check.
type RepoAccess struct {
	Repo   string
	Client string
	File   string
	Action string
}

// AuthorizeRepo returns nil when access.Client may perform
// access.Action on access.File in access.Repo, and an error matching
// ErrDenied when the database refuses.
func (client *Client) AuthorizeRepo(ctx context.Context, access RepoAccess) error {
	query := url.Values{
		"repo":   {access.Repo},
		"client": {access.Client},
		"file":   {access.File},
		"act":    {access.Action},
	}
	if err := client.do(ctx, http.MethodGet, "/authz/repo", query, nil, nil); err != nil {
		return fmt.Errorf("authorizing %s on %s in %s: %w", access.Action, access.File, access.Repo, err)
	}
	return nil
}

// AccessToken is a user access token and its remaining lifetime.
type AccessToken struct {
	Token     string
	ExpiresIn time.Duration
}

type accessTokenResponse struct {
	Access    string `json:"access"`
	ExpiresIn int64  `json:"expires_in"`
}

// AccessToken fetches a current access token for uid.
func (client *Client) AccessToken(ctx context.Context, uid string) (AccessToken, error) {
	var response accessTokenResponse
	if err := client.do(ctx, http.MethodGet, "/usr/token/get", url.Values{"client": {uid}}, nil, &response); err != nil {
		return AccessToken{}, fmt.Errorf("fetching access token for %s: %w", uid, err)
	}
	if response.Access == "" {
		return AccessToken{}, fmt.Errorf("fetching access token for %s: response carried no token", uid)
	}
	return AccessToken{
		Token:     response.Access,
		ExpiresIn: time.Duration(response.ExpiresIn) * time.Second,
	}, nil
}

// errorResponse is the database service's error body.
type errorResponse struct {
	Code         int    `json:"code"`
	ErrorMessage string `json:"errorMessage"`
}

// do sends one request. requestBody, when non-nil, is JSON-encoded;
// responseBody, when non-nil, receives the decoded 2xx body.
func (client *Client) do(ctx context.Context, method, path string, query url.Values, requestBody, responseBody any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, client.timeout)
		defer cancel()
	}

	target := client.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if requestBody != nil {
		data, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("dbclient: encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	request, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("dbclient: building request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("dbclient: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		apiError := &APIError{StatusCode: response.StatusCode}
		raw := netutil.ErrorBody(response.Body)
		var parsed errorResponse
		if json.Unmarshal([]byte(raw), &parsed) == nil && parsed.ErrorMessage != "" {
			apiError.Message = parsed.ErrorMessage
		} else {
			apiError.Message = strings.TrimSpace(raw)
		}
		client.logger.Debug("database request failed",
			"method", method,
			"path", path,
			"status", response.StatusCode,
		)
		return apiError
	}

	if responseBody == nil {
		return nil
	}
	if err := netutil.DecodeResponse(response.Body, responseBody); err != nil {
		return fmt.Errorf("dbclient: %s %s: %w", method, path, err)
	}
	return nil
}
