// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Request shapes for the auth endpoints. Field names follow the backend's
// contract exactly, including the camelCase identityToken on the Apple flow.
type (
	loginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	registerRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
	}

	googleLoginRequest struct {
		Token string `json:"token"`
	}

	appleLoginRequest struct {
		IdentityToken string `json:"identityToken"`
		User          string `json:"user,omitempty"`
	}
)

// tokenResponse is the success payload of every auth endpoint. A response
// without access_token is an authentication failure, whatever its status.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges email/password for a bearer credential.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	return c.postAuth(ctx, "/auth/login", loginRequest{Email: email, Password: password})
}

// Register creates an account and returns its first credential.
func (c *Client) Register(ctx context.Context, email, password, fullName string) (string, error) {
	return c.postAuth(ctx, "/auth/register", registerRequest{
		Email: email, Password: password, FullName: fullName,
	})
}

// LoginGoogle exchanges a Google id token for a bearer credential.
func (c *Client) LoginGoogle(ctx context.Context, idToken string) (string, error) {
	return c.postAuth(ctx, "/auth/google", googleLoginRequest{Token: idToken})
}

// LoginApple exchanges an Apple identity token for a bearer credential.
// userDetails is the JSON user blob Apple supplies on first sign-in; it may
// be empty.
func (c *Client) LoginApple(ctx context.Context, identityToken, userDetails string) (string, error) {
	return c.postAuth(ctx, "/auth/apple", appleLoginRequest{
		IdentityToken: identityToken, User: userDetails,
	})
}

// postAuth performs one authentication exchange. Attempts are rate limited
// client-side so a misbehaving caller cannot hammer the auth endpoints.
func (c *Client) postAuth(ctx context.Context, path string, payload any) (string, error) {
	if err := c.authLimiter.Wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	c.logResponse(req, resp, time.Since(start))

	respBody, err := readBody(resp)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := errorFromBody(resp.StatusCode, respBody)
		return "", fmt.Errorf("%w: %s", ErrAuthFailed, apiErr.Detail)
	}

	var token tokenResponse
	if err := json.Unmarshal(respBody, &token); err != nil || token.AccessToken == "" {
		// MalformedPayload degrades to a failure, never a crash.
		return "", fmt.Errorf("%w: response carried no access_token", ErrAuthFailed)
	}
	return token.AccessToken, nil
}
