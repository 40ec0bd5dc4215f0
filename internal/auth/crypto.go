// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Sealing parameters for AES-256-GCM.
const (
	saltSize = 16
	// nonceSize is the GCM nonce size (12 bytes / 96 bits).
	nonceSize = 12
	// pbkdf2Iterations stretches the key material per sealed value.
	// The input is a random 256-bit key, not a password, so the stretch
	// only binds the salt into key derivation; the OWASP 600k+ guidance
	// targets low-entropy secrets and does not apply.
	pbkdf2Iterations = 10_000
)

// ErrSealCorrupt indicates a sealed blob that cannot be opened, either
// because it was truncated or because it was sealed under different key
// material.
var ErrSealCorrupt = errors.New("sealed credential is corrupt")

// seal encrypts plaintext under the key material with AES-256-GCM.
// The blob layout is salt || nonce || ciphertext; a fresh salt and nonce
// are drawn for every call.
func seal(keyMaterial, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := initCipher(keyMaterial, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	blob := make([]byte, 0, saltSize+nonceSize+len(plaintext)+gcm.Overhead())
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	return gcm.Seal(blob, nonce, plaintext, nil), nil
}

// open decrypts a blob produced by seal.
func open(keyMaterial, blob []byte) ([]byte, error) {
	if len(blob) < saltSize+nonceSize {
		return nil, ErrSealCorrupt
	}
	salt, nonce, ciphertext := blob[:saltSize], blob[saltSize:saltSize+nonceSize], blob[saltSize+nonceSize:]

	gcm, err := initCipher(keyMaterial, salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealCorrupt, err)
	}
	return plaintext, nil
}

// initCipher derives the AES-256 key from the key material and salt and
// initializes the GCM cipher.
func initCipher(keyMaterial, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(keyMaterial, salt, pbkdf2Iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init GCM: %w", err)
	}
	return gcm, nil
}
