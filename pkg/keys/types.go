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

// Package keys implements the key lifecycle service: generation, persistence
// through an external key store, expiry-driven rotation and a bounded lookup
// cache. Keys are asymmetric pairs used either to sign bearer tokens or to
// encrypt them.
package keys

import (
	"encoding/json"
	"time"

	"github.com/go-jose/go-jose/v4"
)

// KeyType identifies the asymmetric key family of a record.
type KeyType string

const (
	// KeyTypeEC is an ECDSA key pair.
	KeyTypeEC KeyType = "EC"

	// KeyTypeRSA is an RSA key pair.
	KeyTypeRSA KeyType = "RSA"
)

// KeyUse identifies what a key is for.
type KeyUse string

const (
	// UseSignature marks keys that sign and verify bearer tokens.
	UseSignature KeyUse = "signature"

	// UseEncryption marks keys that encrypt and decrypt bearer tokens.
	UseEncryption KeyUse = "encryption"
)

// joseUse maps a KeyUse to the JWK "use" parameter value.
func (u KeyUse) joseUse() string {
	if u == UseEncryption {
		return "enc"
	}
	return "sig"
}

// Record is one signing or encryption key with its lifecycle metadata. The
// Key field holds the private material; a record past ExpiresAt must not be
// selected as the current key for new token operations, though it may still
// validate previously issued tokens.
type Record struct {
	Kid       string
	KeyType   KeyType
	Use       KeyUse
	CreatedAt time.Time
	ExpiresAt time.Time
	Key       jose.JSONWebKey
}

// Expired reports whether the record is past its expiry at the given time.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Public returns the record's public JWK.
func (r *Record) Public() jose.JSONWebKey {
	return r.Key.Public()
}

type recordJSON struct {
	Kid       string          `json:"kid"`
	KeyType   KeyType         `json:"keyType"`
	Use       KeyUse          `json:"use"`
	CreatedAt time.Time       `json:"createdTime"`
	ExpiresAt time.Time       `json:"expiryTime"`
	Key       json.RawMessage `json:"key"`
}

// MarshalJSON serializes the record including its private key material.
// Stores that require encryption at rest wrap the result in the AEAD
// service before persisting.
func (r *Record) MarshalJSON() ([]byte, error) {
	key, err := r.Key.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(recordJSON{
		Kid:       r.Kid,
		KeyType:   r.KeyType,
		Use:       r.Use,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
		Key:       key,
	})
}

// UnmarshalJSON restores a record serialized by MarshalJSON.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var key jose.JSONWebKey
	if err := key.UnmarshalJSON(raw.Key); err != nil {
		return err
	}
	r.Kid = raw.Kid
	r.KeyType = raw.KeyType
	r.Use = raw.Use
	r.CreatedAt = raw.CreatedAt
	r.ExpiresAt = raw.ExpiresAt
	r.Key = key
	return nil
}
