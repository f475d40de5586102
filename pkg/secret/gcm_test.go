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

package secret

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewEncryptor(newTestKey(t), nil)
	require.NoError(t, err)

	plaintext := []byte("attestation private key material")
	ciphertext, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)
	assert.Greater(t, len(ciphertext), len(plaintext))

	decrypted, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncryptFreshNonce(t *testing.T) {
	enc, err := NewEncryptor(newTestKey(t), nil)
	require.NoError(t, err)

	first, err := enc.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)
	second, err := enc.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)

	assert.False(t, bytes.Equal(first, second))
	assert.False(t, bytes.Equal(first[:NonceSize], second[:NonceSize]))
}

func TestDecryptTampered(t *testing.T) {
	enc, err := NewEncryptor(newTestKey(t), nil)
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt([]byte("payload"))
	require.NoError(t, err)

	for _, idx := range []int{0, NonceSize, len(ciphertext) - 1} {
		tampered := append([]byte(nil), ciphertext...)
		tampered[idx] ^= 0x01

		_, err = enc.Decrypt(tampered)
		assert.ErrorIs(t, err, ErrAuthenticationFailed)
	}
}

func TestAssociatedDataBinding(t *testing.T) {
	key := newTestKey(t)

	bound, err := NewEncryptor(key, []byte("record:kid-1"))
	require.NoError(t, err)
	ciphertext, err := bound.Encrypt([]byte("payload"))
	require.NoError(t, err)

	decrypted, err := bound.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), decrypted)

	other, err := NewEncryptor(key, []byte("record:kid-2"))
	require.NoError(t, err)
	_, err = other.Decrypt(ciphertext)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	unbound, err := NewEncryptor(key, nil)
	require.NoError(t, err)
	_, err = unbound.Decrypt(ciphertext)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestDecryptWrongKey(t *testing.T) {
	enc, err := NewEncryptor(newTestKey(t), nil)
	require.NoError(t, err)
	ciphertext, err := enc.Encrypt([]byte("payload"))
	require.NoError(t, err)

	other, err := NewEncryptor(newTestKey(t), nil)
	require.NoError(t, err)
	_, err = other.Decrypt(ciphertext)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestDecryptTooShort(t *testing.T) {
	enc, err := NewEncryptor(newTestKey(t), nil)
	require.NoError(t, err)

	_, err = enc.Decrypt(nil)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = enc.Decrypt(make([]byte, NonceSize))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestInvalidKeyLength(t *testing.T) {
	_, err := NewEncryptor(make([]byte, 16), nil)
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewEncryptor(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestPassphraseDerivation(t *testing.T) {
	first, err := NewEncryptorFromPassphrase([]byte("hunter2"), []byte("salt"), nil)
	require.NoError(t, err)
	second, err := NewEncryptorFromPassphrase([]byte("hunter2"), []byte("salt"), nil)
	require.NoError(t, err)

	ciphertext, err := first.Encrypt([]byte("payload"))
	require.NoError(t, err)

	// the same passphrase and salt derive the same key
	decrypted, err := second.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), decrypted)

	wrongSalt, err := NewEncryptorFromPassphrase([]byte("hunter2"), []byte("pepper"), nil)
	require.NoError(t, err)
	_, err = wrongSalt.Decrypt(ciphertext)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}
