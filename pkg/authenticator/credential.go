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
	"bytes"
	"crypto"
	"encoding/base64"
	"encoding/json"

	"github.com/go-jose/go-jose/v4"
)

// Credential is a registered public-key credential held by a virtual
// authenticator. The private half of Key never leaves the simulator; the
// public half is exported as a COSE key during registration.
//
// A generated credential id is the concatenation userID ∥ relyingPartyID,
// but lookups always treat it as an opaque unique key.
type Credential struct {
	CredentialID   []byte
	UserID         []byte
	RelyingPartyID []byte
	Key            jose.JSONWebKey
}

// CompositeID derives the credential id for a (user, relying party) pair.
func CompositeID(userID, relyingPartyID []byte) []byte {
	id := make([]byte, 0, len(userID)+len(relyingPartyID))
	id = append(id, userID...)
	return append(id, relyingPartyID...)
}

// NewCredential generates a credential with a fresh key pair of the given
// type for the (user, relying party) pair.
func NewCredential(userID, relyingPartyID []byte, keyType KeyType) (*Credential, error) {
	key, err := GenerateKeyPair(keyType)
	if err != nil {
		return nil, err
	}
	return &Credential{
		CredentialID:   CompositeID(userID, relyingPartyID),
		UserID:         userID,
		RelyingPartyID: relyingPartyID,
		Key:            key,
	}, nil
}

// PublicKey returns the credential's public key.
func (c *Credential) PublicKey() (crypto.PublicKey, error) {
	return publicKeyOf(c.Key)
}

// Sign signs SHA-256(data) with the credential's private key.
func (c *Credential) Sign(data []byte) ([]byte, error) {
	return signWithKey(c.Key, data)
}

// Equal reports whether two credentials have the same identity and key.
// Key equality is by JWK serialization, which covers the private material.
func (c *Credential) Equal(other *Credential) bool {
	if other == nil {
		return false
	}
	if !bytes.Equal(c.CredentialID, other.CredentialID) ||
		!bytes.Equal(c.UserID, other.UserID) ||
		!bytes.Equal(c.RelyingPartyID, other.RelyingPartyID) {
		return false
	}
	a, errA := c.Key.MarshalJSON()
	b, errB := other.Key.MarshalJSON()
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

type credentialJSON struct {
	CredentialID   string          `json:"credentialId"`
	UserID         string          `json:"userId"`
	RelyingPartyID string          `json:"rpId"`
	Key            json.RawMessage `json:"key"`
}

// MarshalJSON serializes the credential, including its private key as a
// JWK, so that authenticator state survives export/import.
func (c *Credential) MarshalJSON() ([]byte, error) {
	key, err := c.Key.MarshalJSON()
	if err != nil {
		return nil, NewError("credential.MarshalJSON", err)
	}
	return json.Marshal(credentialJSON{
		CredentialID:   base64.RawURLEncoding.EncodeToString(c.CredentialID),
		UserID:         base64.RawURLEncoding.EncodeToString(c.UserID),
		RelyingPartyID: base64.RawURLEncoding.EncodeToString(c.RelyingPartyID),
		Key:            key,
	})
}

// UnmarshalJSON restores a credential serialized by MarshalJSON.
func (c *Credential) UnmarshalJSON(data []byte) error {
	var raw credentialJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return NewError("credential.UnmarshalJSON", err)
	}
	credentialID, err := base64.RawURLEncoding.DecodeString(raw.CredentialID)
	if err != nil {
		return NewError("credential.UnmarshalJSON", err)
	}
	userID, err := base64.RawURLEncoding.DecodeString(raw.UserID)
	if err != nil {
		return NewError("credential.UnmarshalJSON", err)
	}
	relyingPartyID, err := base64.RawURLEncoding.DecodeString(raw.RelyingPartyID)
	if err != nil {
		return NewError("credential.UnmarshalJSON", err)
	}
	var key jose.JSONWebKey
	if err := key.UnmarshalJSON(raw.Key); err != nil {
		return NewError("credential.UnmarshalJSON", err)
	}
	c.CredentialID = credentialID
	c.UserID = userID
	c.RelyingPartyID = relyingPartyID
	c.Key = key
	return nil
}
