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

package authenticator

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCredential(t *testing.T, userID, rpID string) *Credential {
	t.Helper()
	cred, err := NewCredential([]byte(userID), []byte(rpID), KeyTypeEC)
	require.NoError(t, err)
	return cred
}

func TestStoreAddFind(t *testing.T) {
	store := NewStore()
	cred := newTestCredential(t, "user-1", "rp.example.com")

	require.NoError(t, store.Add(cred))

	found, ok := store.Find(cred.CredentialID)
	require.True(t, ok)
	assert.True(t, cred.Equal(found))

	found, ok = store.FindByOwner([]byte("user-1"), []byte("rp.example.com"))
	require.True(t, ok)
	assert.True(t, cred.Equal(found))

	_, ok = store.Find([]byte("unknown"))
	assert.False(t, ok)
}

func TestStoreDuplicateAdd(t *testing.T) {
	store := NewStore()
	cred := newTestCredential(t, "user-1", "rp.example.com")

	require.NoError(t, store.Add(cred))
	err := store.Add(cred)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateCredential)
}

func TestStoreRemove(t *testing.T) {
	store := NewStore()
	cred := newTestCredential(t, "user-1", "rp.example.com")
	require.NoError(t, store.Add(cred))

	removed, ok := store.Remove([]byte("user-1"), []byte("rp.example.com"))
	require.True(t, ok)
	assert.True(t, cred.Equal(removed))
	assert.Equal(t, 0, store.Len())

	_, ok = store.Remove([]byte("user-1"), []byte("rp.example.com"))
	assert.False(t, ok)
}

func TestStoreInsertionOrder(t *testing.T) {
	store := NewStore()
	var want [][]byte
	for i := 0; i < 5; i++ {
		cred := newTestCredential(t, fmt.Sprintf("user-%d", i), "rp.example.com")
		require.NoError(t, store.Add(cred))
		want = append(want, cred.CredentialID)
	}

	assert.Equal(t, want, store.CredentialIDs())

	creds := store.Credentials()
	require.Len(t, creds, 5)
	for i, cred := range creds {
		assert.Equal(t, want[i], cred.CredentialID)
	}
}

func TestStoreJSONRoundTrip(t *testing.T) {
	store := NewStore()
	ec := newTestCredential(t, "user-ec", "rp.example.com")
	require.NoError(t, store.Add(ec))
	rsa, err := NewCredential([]byte("user-rsa"), []byte("rp.example.com"), KeyTypeRSA)
	require.NoError(t, err)
	require.NoError(t, store.Add(rsa))

	data, err := json.Marshal(store)
	require.NoError(t, err)

	restored := NewStore()
	require.NoError(t, json.Unmarshal(data, restored))
	require.Equal(t, 2, restored.Len())

	creds := restored.Credentials()
	assert.True(t, ec.Equal(creds[0]))
	assert.True(t, rsa.Equal(creds[1]))
}

func TestCompositeID(t *testing.T) {
	id := CompositeID([]byte("123"), []byte("rp.example.com"))
	assert.Equal(t, []byte("123rp.example.com"), id)
}
