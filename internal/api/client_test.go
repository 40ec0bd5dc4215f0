// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Abdulkalam-AIML/titanbot/internal/auth"
	"github.com/Abdulkalam-AIML/titanbot/internal/model"
)

func newTestClient(t *testing.T, token string, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := auth.NewMemoryStore()
	if token != "" {
		store.Set(token)
	}
	return NewClient(store).WithBaseURL(server.URL)
}

func TestSessions(t *testing.T) {
	client := newTestClient(t, "tok-1", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/chat/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode([]model.Session{
			{ID: 2, Title: "Most recent"},
			{ID: 1, Title: "Older"},
		})
	}))

	sessions, err := client.Sessions(context.Background())
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != 2 || sessions[1].Title != "Older" {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestSessions_MissingCredential(t *testing.T) {
	client := newTestClient(t, "", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should reach the backend without a credential")
	}))

	_, err := client.Sessions(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestSessions_Rejected(t *testing.T) {
	client := newTestClient(t, "expired", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.Sessions(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestSessions_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close() // nothing is listening anymore

	store := auth.NewMemoryStore()
	store.Set("tok")
	client := NewClient(store).WithBaseURL(server.URL)

	_, err := client.Sessions(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestWithTimeoutBoundsUnaryRequests(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, "tok", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte("[]"))
	}))
	defer close(release)
	client.WithTimeout(50 * time.Millisecond)

	_, err := client.Sessions(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestWithTimeoutGenerousEnough(t *testing.T) {
	client := newTestClient(t, "tok", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte("[]"))
	}))
	client.WithTimeout(5 * time.Second)

	if _, err := client.Sessions(context.Background()); err != nil {
		t.Errorf("Sessions: %v", err)
	}
}

func TestMessages(t *testing.T) {
	client := newTestClient(t, "tok", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/sessions/7/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]model.Message{
			{ID: 10, Role: model.RoleUser, Content: "Hello"},
			{ID: 11, Role: model.RoleAssistant, Content: "Hi there"},
		})
	}))

	messages, err := client.Messages(context.Background(), 7)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(messages) != 2 || messages[1].Content != "Hi there" {
		t.Errorf("messages = %+v", messages)
	}
}

func TestSend_Streams(t *testing.T) {
	client := newTestClient(t, "tok", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Message   string `json:"message"`
			SessionID *int64 `json:"session_id"`
			Model     string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload.Message != "Hello" || payload.Model != "gemini-pro" {
			t.Errorf("payload = %+v", payload)
		}
		// A new conversation sends an explicit null session id.
		if payload.SessionID != nil {
			t.Errorf("session_id = %v, want null", *payload.SessionID)
		}

		flusher := w.(http.Flusher)
		io.WriteString(w, "Hi")
		flusher.Flush()
		io.WriteString(w, " there")
	}))

	reader, err := client.Send(context.Background(), SendRequest{
		Message: "Hello", SessionID: model.NoSession, Model: "gemini-pro",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	defer reader.Close()

	if err := reader.Process(context.Background(), func(string) {}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := reader.Accumulated(); got != "Hi there" {
		t.Errorf("accumulated = %q", got)
	}
}

func TestSend_ExistingSessionID(t *testing.T) {
	client := newTestClient(t, "tok", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			SessionID *int64 `json:"session_id"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		if payload.SessionID == nil || *payload.SessionID != 42 {
			t.Errorf("session_id = %v, want 42", payload.SessionID)
		}
	}))

	reader, err := client.Send(context.Background(), SendRequest{Message: "hi", SessionID: 42, Model: "gemini-pro"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	reader.Close()
}

func TestSend_Unauthorized(t *testing.T) {
	client := newTestClient(t, "expired", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.Send(context.Background(), SendRequest{Message: "hi"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestSend_ErrorDetail(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
	}{
		{"json detail", http.StatusServiceUnavailable, `{"detail":"overloaded"}`, "overloaded"},
		{"non-json body", http.StatusInternalServerError, `<html>boom</html>`, genericErrorDetail},
		{"empty body", http.StatusBadRequest, ``, genericErrorDetail},
		{"json without detail", http.StatusBadRequest, `{"error":"nope"}`, genericErrorDetail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, "tok", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))

			_, err := client.Send(context.Background(), SendRequest{Message: "hi"})
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *APIError", err)
			}
			if apiErr.Status != tt.status || apiErr.Detail != tt.wantDetail {
				t.Errorf("APIError = %+v, want status %d detail %q", apiErr, tt.status, tt.wantDetail)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	client := newTestClient(t, "", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["email"] != "a@b.c" || payload["password"] != "pw" {
			t.Errorf("payload = %v", payload)
		}
		io.WriteString(w, `{"access_token":"tok-xyz","token_type":"bearer"}`)
	}))

	token, err := client.Login(context.Background(), "a@b.c", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token != "tok-xyz" {
		t.Errorf("token = %q", token)
	}
}

func TestLogin_Rejected(t *testing.T) {
	client := newTestClient(t, "", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"detail":"Incorrect email or password"}`)
	}))

	_, err := client.Login(context.Background(), "a@b.c", "bad")
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("err = %v, want ErrAuthFailed", err)
	}
}

func TestLogin_MissingAccessToken(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"not json", `access granted`},
		{"empty token", `{"access_token":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, "", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}))

			_, err := client.Login(context.Background(), "a@b.c", "pw")
			if !errors.Is(err, ErrAuthFailed) {
				t.Errorf("err = %v, want ErrAuthFailed", err)
			}
		})
	}
}

func TestRegisterAndProviderFlows(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	client := newTestClient(t, "", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody = map[string]any{}
		json.NewDecoder(r.Body).Decode(&gotBody)
		io.WriteString(w, `{"access_token":"tok"}`)
	}))
	ctx := context.Background()

	if _, err := client.Register(ctx, "a@b.c", "pw", "Ada Lovelace"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if gotPath != "/auth/register" || gotBody["full_name"] != "Ada Lovelace" {
		t.Errorf("register request: %s %v", gotPath, gotBody)
	}

	if _, err := client.LoginGoogle(ctx, "google-id-token"); err != nil {
		t.Fatalf("LoginGoogle: %v", err)
	}
	if gotPath != "/auth/google" || gotBody["token"] != "google-id-token" {
		t.Errorf("google request: %s %v", gotPath, gotBody)
	}

	if _, err := client.LoginApple(ctx, "apple-identity", ""); err != nil {
		t.Fatalf("LoginApple: %v", err)
	}
	if gotPath != "/auth/apple" || gotBody["identityToken"] != "apple-identity" {
		t.Errorf("apple request: %s %v", gotPath, gotBody)
	}
}
