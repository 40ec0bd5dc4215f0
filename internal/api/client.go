// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Abdulkalam-AIML/titanbot/internal/model"
	"github.com/Abdulkalam-AIML/titanbot/internal/stream"
)

// Configuration constants for the TitanBot API.
const (
	// DefaultBaseURL is the development backend address, matching the
	// server's default bind.
	DefaultBaseURL = "http://127.0.0.1:8000/api"

	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 30 * time.Second

	// MaxBodySize is the maximum allowed unary response body.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxBodySize = 1 * 1024 * 1024

	// genericErrorDetail is the fallback when an error payload is absent
	// or malformed. A bad error body never crashes the flow.
	genericErrorDetail = "Unknown error"

	// defaultAuthRatePerMin caps login/register attempts client-side.
	defaultAuthRatePerMin = 10
)

var (
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	// One transport is shared by every client; the http.Client wrapper is
	// cheap per instance and carries the per-client unary timeout.
	sharedTransport = &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	// sharedStreamingClient is used for /chat/send. No client timeout: a
	// reply may stream for minutes; lifetime is controlled via context.
	sharedStreamingClient = &http.Client{
		Transport: sharedTransport,
	}
)

// Error variables for the backend contract.
var (
	// ErrUnauthorized indicates a missing credential or a 401 from the
	// backend. Recovered by forcing re-authentication, never retried.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnavailable indicates a transport failure: the backend could not
	// be reached or the connection broke.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrAuthFailed indicates a rejected or malformed authentication
	// exchange (login, register, or a provider flow).
	ErrAuthFailed = errors.New("authentication failed")
)

// APIError is a non-2xx, non-401 backend response, carrying the backend's
// error detail or the generic fallback.
type APIError struct {
	Status int
	Detail string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Detail)
}

// CredentialSource supplies the current bearer credential. An empty string
// means no credential is held.
type CredentialSource interface {
	Get() (string, error)
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the TitanBot backend.
type Client struct {
	baseURL     string
	creds       CredentialSource
	log         *zap.Logger
	authLimiter *rate.Limiter
	httpClient  *http.Client
}

// NewClient creates a client reading its bearer credential from creds.
func NewClient(creds CredentialSource) *Client {
	return &Client{
		baseURL: DefaultBaseURL,
		creds:   creds,
		log:     zap.NewNop(),
		authLimiter: rate.NewLimiter(
			rate.Every(time.Minute/defaultAuthRatePerMin), defaultAuthRatePerMin),
		httpClient: &http.Client{
			Transport: sharedTransport,
			Timeout:   DefaultTimeout,
		},
	}
}

// WithBaseURL sets the backend base URL (host and path prefix).
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithLogger sets the structured logger.
func (c *Client) WithLogger(log *zap.Logger) *Client {
	c.log = log
	return c
}

// WithTimeout sets the unary request timeout. Streaming sends are not
// bound by it; their lifetime is controlled via context.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
	return c
}

// WithAuthRateLimit caps client-side authentication attempts per minute.
func (c *Client) WithAuthRateLimit(perMin int) *Client {
	if perMin > 0 {
		c.authLimiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), perMin)
	}
	return c
}

// bearer returns the current credential, failing with ErrUnauthorized when
// none is held. No authenticated operation may proceed without one.
func (c *Client) bearer() (string, error) {
	token, err := c.creds.Get()
	if err != nil {
		return "", fmt.Errorf("failed to read credential: %w", err)
	}
	if token == "" {
		return "", fmt.Errorf("%w: no credential", ErrUnauthorized)
	}
	return token, nil
}

// =============================================================================
// SESSION DIRECTORY
// =============================================================================

// Sessions fetches the authenticated user's sessions in backend-defined
// recency order. Pure read; no side effects.
func (c *Client) Sessions(ctx context.Context) ([]model.Session, error) {
	var sessions []model.Session
	if err := c.getJSON(ctx, "/chat/sessions", &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Messages fetches the full ordered history for one session.
func (c *Client) Messages(ctx context.Context, sessionID int64) ([]model.Message, error) {
	var messages []model.Message
	path := "/chat/sessions/" + strconv.FormatInt(sessionID, 10) + "/messages"
	if err := c.getJSON(ctx, path, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// getJSON performs an authenticated GET and decodes the response array.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	token, err := c.bearer()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	c.logResponse(req, resp, time.Since(start))

	body, err := readBody(resp)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromBody(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// =============================================================================
// SEND
// =============================================================================

// SendRequest is one user send. SessionID model.NoSession targets the
// transient new conversation; the backend creates a session server-side.
type SendRequest struct {
	Message   string
	SessionID int64
	Model     string
}

// Send issues the exchange request and, on success, hands back the open
// reply stream. The caller owns the returned reader and must Close it;
// abandoning it without Close leaks the transport connection.
//
// Failure modes: ErrUnauthorized (missing credential or 401; the exchange
// is terminal), *APIError (other non-2xx, with the backend's detail or a
// generic fallback), ErrUnavailable (transport failure).
func (c *Client) Send(ctx context.Context, req SendRequest) (*stream.Reader, error) {
	token, err := c.bearer()
	if err != nil {
		return nil, err
	}

	payload := struct {
		Message   string `json:"message"`
		SessionID *int64 `json:"session_id"`
		Model     string `json:"model"`
	}{Message: req.Message, Model: req.Model}
	if req.SessionID != model.NoSession {
		payload.SessionID = &req.SessionID
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/send", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := sharedStreamingClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.logResponse(httpReq, resp, time.Since(start))

	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		return nil, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, readErr := readBody(resp)
		drain(resp)
		if readErr != nil {
			return nil, &APIError{Status: resp.StatusCode, Detail: genericErrorDetail}
		}
		return nil, errorFromBody(resp.StatusCode, errBody)
	}

	return stream.NewReader(resp.Body), nil
}

// =============================================================================
// HELPERS
// =============================================================================

// readBody reads a unary response body with a size limit.
// SECURITY: Response size limit prevents memory exhaustion.
func readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxBodySize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxBodySize)
	}
	return body, nil
}

// errorFromBody converts a non-2xx body into an APIError. An absent or
// non-JSON body degrades to the generic detail, never to a crash.
func errorFromBody(status int, body []byte) *APIError {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Detail == "" {
		return &APIError{Status: status, Detail: genericErrorDetail}
	}
	return &APIError{Status: status, Detail: payload.Detail}
}

// drain discards and closes an error-response body so the connection can
// be reused.
func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, MaxBodySize))
	resp.Body.Close()
}

// logResponse records the outcome of a request. Never logs headers or
// bodies; they can carry the credential or user content.
func (c *Client) logResponse(req *http.Request, resp *http.Response, duration time.Duration) {
	c.log.Debug("api response",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration),
	)
}
