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

package keys

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*Service, *MemoryStore, *fakeClock) {
	t.Helper()
	store := NewMemoryStore()
	clock := newFakeClock()
	return NewService(store, WithClock(clock.Now)), store, clock
}

func TestCreateKey(t *testing.T) {
	svc, store, clock := newTestService(t)

	record, err := svc.CreateKey(context.Background(), KeyTypeEC, UseSignature, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, record.Kid)
	assert.Equal(t, KeyTypeEC, record.KeyType)
	assert.Equal(t, UseSignature, record.Use)
	assert.Equal(t, clock.Now(), record.CreatedAt)
	assert.Equal(t, clock.Now().Add(DefaultLifetime), record.ExpiresAt)

	key, ok := record.Key.Key.(*ecdsa.PrivateKey)
	require.True(t, ok)
	assert.Equal(t, elliptic.P256(), key.Curve)

	persisted, err := store.Get(context.Background(), record.Kid)
	require.NoError(t, err)
	assert.Equal(t, record.Kid, persisted.Kid)
}

func TestCreateKeyStrengths(t *testing.T) {
	svc, _, _ := newTestService(t)

	record, err := svc.CreateKey(context.Background(), KeyTypeEC, UseSignature, 384)
	require.NoError(t, err)
	key := record.Key.Key.(*ecdsa.PrivateKey)
	assert.Equal(t, elliptic.P384(), key.Curve)

	record, err = svc.CreateKey(context.Background(), KeyTypeRSA, UseEncryption, 0)
	require.NoError(t, err)
	rsaKey := record.Key.Key.(*rsa.PrivateKey)
	assert.Equal(t, DefaultRSAStrength, rsaKey.N.BitLen())

	_, err = svc.CreateKey(context.Background(), KeyTypeEC, UseSignature, 123)
	assert.ErrorIs(t, err, ErrUnsupportedKeyType)

	_, err = svc.CreateKey(context.Background(), KeyTypeRSA, UseEncryption, 1024)
	assert.ErrorIs(t, err, ErrUnsupportedKeyType)
}

func TestSaveKeyDuplicate(t *testing.T) {
	svc, _, _ := newTestService(t)

	record, err := svc.CreateKey(context.Background(), KeyTypeEC, UseSignature, 0)
	require.NoError(t, err)

	err = svc.SaveKey(context.Background(), record)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestGetEntityCacheFallback(t *testing.T) {
	svc, store, _ := newTestService(t)

	record, err := svc.CreateKey(context.Background(), KeyTypeEC, UseSignature, 0)
	require.NoError(t, err)

	got, err := svc.GetEntity(context.Background(), record.Kid)
	require.NoError(t, err)
	assert.Equal(t, record.Kid, got.Kid)

	// remove from the store; the cache still serves it
	require.NoError(t, store.Delete(context.Background(), record.Kid))
	got, err = svc.GetEntity(context.Background(), record.Kid)
	require.NoError(t, err)
	assert.Equal(t, record.Kid, got.Kid)

	_, err = svc.GetEntity(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestLatestKeyStableWithinValidity(t *testing.T) {
	svc, _, _ := newTestService(t)

	first, err := svc.LatestKey(context.Background(), UseSignature)
	require.NoError(t, err)

	second, err := svc.LatestKey(context.Background(), UseSignature)
	require.NoError(t, err)
	assert.Equal(t, first.Kid, second.Kid)
}

func TestLatestKeyRotatesAfterExpiry(t *testing.T) {
	svc, _, clock := newTestService(t)

	first, err := svc.LatestKey(context.Background(), UseSignature)
	require.NoError(t, err)

	clock.Advance(DefaultLifetime + time.Hour)

	rotated, err := svc.LatestKey(context.Background(), UseSignature)
	require.NoError(t, err)
	assert.NotEqual(t, first.Kid, rotated.Kid)
	assert.False(t, rotated.Expired(clock.Now()))
}

func TestLatestKeyPrefersMostDistantExpiry(t *testing.T) {
	svc, store, clock := newTestService(t)

	older, err := svc.CreateKey(context.Background(), KeyTypeEC, UseSignature, 0)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	newer, err := svc.CreateKey(context.Background(), KeyTypeEC, UseSignature, 0)
	require.NoError(t, err)

	latest, err := store.LatestByUse(context.Background(), UseSignature, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, newer.Kid, latest.Kid)

	got, err := svc.LatestKey(context.Background(), UseSignature)
	require.NoError(t, err)
	assert.NotEqual(t, older.Kid, "")
	assert.Equal(t, newer.Kid, got.Kid)
}

func TestLatestKeyDefaultTypes(t *testing.T) {
	svc, _, _ := newTestService(t)

	sig, err := svc.LatestKey(context.Background(), UseSignature)
	require.NoError(t, err)
	assert.Equal(t, KeyTypeEC, sig.KeyType)

	enc, err := svc.LatestKey(context.Background(), UseEncryption)
	require.NoError(t, err)
	assert.Equal(t, KeyTypeRSA, enc.KeyType)
	assert.NotEqual(t, sig.Kid, enc.Kid)
}

func TestRemoveKeyClearsLatestReference(t *testing.T) {
	svc, _, _ := newTestService(t)

	first, err := svc.LatestKey(context.Background(), UseSignature)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveKey(context.Background(), first.Kid))

	_, err = svc.GetEntity(context.Background(), first.Kid)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	// the next resolution must not serve the removed key
	next, err := svc.LatestKey(context.Background(), UseSignature)
	require.NoError(t, err)
	assert.NotEqual(t, first.Kid, next.Kid)
}

func TestJWKSExportsPublicKeysOnly(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateKey(context.Background(), KeyTypeEC, UseSignature, 0)
	require.NoError(t, err)
	_, err = svc.CreateKey(context.Background(), KeyTypeRSA, UseEncryption, 0)
	require.NoError(t, err)

	set, err := svc.JWKS(context.Background())
	require.NoError(t, err)
	require.Len(t, set.Keys, 2)
	for _, key := range set.Keys {
		assert.True(t, key.IsPublic())
		assert.NotEmpty(t, key.KeyID)
	}
}

func TestRecordJSONRoundTrip(t *testing.T) {
	svc, _, _ := newTestService(t)
	record, err := svc.CreateKey(context.Background(), KeyTypeEC, UseSignature, 0)
	require.NoError(t, err)

	data, err := json.Marshal(record)
	require.NoError(t, err)

	restored := &Record{}
	require.NoError(t, json.Unmarshal(data, restored))
	assert.Equal(t, record.Kid, restored.Kid)
	assert.Equal(t, record.KeyType, restored.KeyType)
	assert.Equal(t, record.Use, restored.Use)
	assert.True(t, record.CreatedAt.Equal(restored.CreatedAt))
	assert.True(t, record.ExpiresAt.Equal(restored.ExpiresAt))

	_, ok := restored.Key.Key.(*ecdsa.PrivateKey)
	assert.True(t, ok)
}

func TestExportImportPEM(t *testing.T) {
	svc, _, _ := newTestService(t)
	record, err := svc.CreateKey(context.Background(), KeyTypeEC, UseSignature, 0)
	require.NoError(t, err)

	plain, err := ExportPEM(record, nil)
	require.NoError(t, err)
	assert.Contains(t, string(plain), "PRIVATE KEY")

	key, err := ImportPEM(plain, nil)
	require.NoError(t, err)
	imported, ok := key.(*ecdsa.PrivateKey)
	require.True(t, ok)
	assert.True(t, imported.Equal(record.Key.Key.(*ecdsa.PrivateKey)))

	encrypted, err := ExportPEM(record, []byte("passphrase"))
	require.NoError(t, err)
	assert.Contains(t, string(encrypted), "ENCRYPTED PRIVATE KEY")

	key, err = ImportPEM(encrypted, []byte("passphrase"))
	require.NoError(t, err)
	imported, ok = key.(*ecdsa.PrivateKey)
	require.True(t, ok)
	assert.True(t, imported.Equal(record.Key.Key.(*ecdsa.PrivateKey)))

	_, err = ImportPEM([]byte("not pem"), nil)
	assert.ErrorIs(t, err, ErrMalformedPEM)
}
