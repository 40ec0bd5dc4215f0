// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// TokenStore is the durable slot for the current bearer credential.
//
// Get returns ("", nil) when no credential is stored; absence is a state,
// not an error. Clear is safe to call redundantly. Implementations have no
// side effects beyond their storage slot.
type TokenStore interface {
	// Get returns the stored credential, or "" if none is stored.
	Get() (string, error)
	// Set replaces the stored credential.
	Set(token string) error
	// Clear removes the credential. Clearing an empty store is a no-op.
	Clear() error
}

// Fingerprint returns a short identifier for a credential that is safe to
// log. SECURITY: never log the credential itself, or any fragment of it.
func Fingerprint(token string) string {
	if token == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:4])
}

// =============================================================================
// MEMORY STORE
// =============================================================================

// MemoryStore is an in-memory TokenStore for tests and ephemeral runs.
// Safe for concurrent use.
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns the stored credential, or "" if none is stored.
func (s *MemoryStore) Get() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

// Set replaces the stored credential.
func (s *MemoryStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

// Clear removes the credential.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
