// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
)

// keySize is the size of the sealing key material (32 bytes / 256 bits).
const keySize = 32

// FileKeyStore holds the local key material used to seal the credential at
// rest. The key file is stored with restricted permissions (0600) and is
// created on first use.
type FileKeyStore struct {
	path string
}

// NewFileKeyStore creates a key store backed by the given file path.
func NewFileKeyStore(path string) *FileKeyStore {
	return &FileKeyStore{path: path}
}

// LoadOrCreate returns the key material, generating and persisting a fresh
// random key if none exists yet.
func (f *FileKeyStore) LoadOrCreate() ([]byte, error) {
	key, err := os.ReadFile(f.path)
	if err == nil {
		if len(key) != keySize {
			return nil, fmt.Errorf("key file %s is corrupt: %d bytes, want %d", f.path, len(key), keySize)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	key = make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	if err := atomicWriteFile(f.path, key, 0600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	return key, nil
}

// Delete removes the key file. Missing files are not an error.
func (f *FileKeyStore) Delete() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RELIABILITY: Atomic write with fsync prevents data loss on crash
//
// atomicWriteFile writes to a temp file in the same directory, syncs it to
// disk, then renames it over the target. On crash either the old file or
// the new complete file exists, never a partial write.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := f.Name()

	success := false
	defer func() {
		if !success {
			f.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync data to disk: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, perm); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to set file permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
