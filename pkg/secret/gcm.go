// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-webauthn-rp.
//
// go-webauthn-rp is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package secret provides the symmetric AEAD service used to protect
// sensitive fields at rest, such as cached private key material.
//
// Ciphertexts are AES-256-GCM with a random 96-bit nonce prepended and a
// 128-bit authentication tag. The nonce is drawn from crypto/rand on every
// encryption, so a nonce is never reused for a given key.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12

	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
)

var (
	// ErrAuthenticationFailed is returned when a ciphertext's tag does not
	// verify. The plaintext is never partially returned.
	ErrAuthenticationFailed = errors.New("secret: ciphertext authentication failed")

	// ErrInvalidCiphertext is returned when a ciphertext is too short to
	// contain a nonce and tag.
	ErrInvalidCiphertext = errors.New("secret: invalid ciphertext")

	// ErrInvalidKey is returned when the key is not 32 bytes.
	ErrInvalidKey = errors.New("secret: key must be 32 bytes")
)

// Encryptor performs authenticated encryption with a fixed key and optional
// associated data bound to every ciphertext.
type Encryptor struct {
	aead           cipher.AEAD
	associatedData []byte
}

// NewEncryptor creates an AES-256-GCM encryptor. The associated data, if
// non-nil, is authenticated alongside every ciphertext and must match on
// decryption.
func NewEncryptor(key, associatedData []byte) (*Encryptor, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	return &Encryptor{aead: aead, associatedData: associatedData}, nil
}

// NewEncryptorFromPassphrase derives a 32-byte key from a passphrase and
// salt using HKDF-SHA256 and returns an encryptor over it.
func NewEncryptorFromPassphrase(passphrase, salt, associatedData []byte) (*Encryptor, error) {
	reader := hkdf.New(sha256.New, passphrase, salt, []byte("go-webauthn-rp/secret"))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("secret: key derivation failed: %w", err)
	}
	return NewEncryptor(key, associatedData)
}

// Encrypt seals plaintext and returns nonce ∥ ciphertext ∥ tag.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("secret: nonce generation failed: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, e.associatedData), nil
}

// Decrypt opens a ciphertext produced by Encrypt. A tampered ciphertext or
// mismatched associated data yields ErrAuthenticationFailed.
func (e *Encryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize+e.aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}
	nonce, sealed := ciphertext[:NonceSize], ciphertext[NonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, sealed, e.associatedData)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}
