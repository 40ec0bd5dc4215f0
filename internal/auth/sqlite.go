// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// credentialSlot is the fixed key of the single credential row. The store
// is a key-value slot, not a table of users: exactly one credential exists
// at a time.
const credentialSlot = "access_token"

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	slot   TEXT PRIMARY KEY,
	sealed BLOB NOT NULL
);
`

// =============================================================================
// SQLITE-BACKED TOKEN STORE
// =============================================================================

// SQLiteStore is the durable TokenStore. The credential is sealed with
// AES-256-GCM before it touches disk; the sealing key lives in a separate
// key file with 0600 permissions.
type SQLiteStore struct {
	db  *sql.DB
	key []byte
}

// NewSQLiteStore opens (or creates) the credential database at path,
// loading the sealing key from keys.
func NewSQLiteStore(path string, keys *FileKeyStore) (*SQLiteStore, error) {
	key, err := keys.LoadOrCreate()
	if err != nil {
		return nil, fmt.Errorf("failed to load sealing key: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init credential store: %w", err)
	}

	return &SQLiteStore{db: db, key: key}, nil
}

// Get returns the stored credential, or "" if none is stored.
func (s *SQLiteStore) Get() (string, error) {
	var sealed []byte
	err := s.db.QueryRow(`SELECT sealed FROM credentials WHERE slot = ?`, credentialSlot).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read credential: %w", err)
	}

	token, err := open(s.key, sealed)
	if err != nil {
		return "", err
	}
	return string(token), nil
}

// Set replaces the stored credential.
func (s *SQLiteStore) Set(token string) error {
	sealed, err := seal(s.key, []byte(token))
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO credentials (slot, sealed) VALUES (?, ?)
		 ON CONFLICT(slot) DO UPDATE SET sealed = excluded.sealed`,
		credentialSlot, sealed,
	)
	if err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// Clear removes the credential. Clearing an empty store is a no-op.
func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM credentials WHERE slot = ?`, credentialSlot); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
