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
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
)

// KeyType identifies the asymmetric key family backing a credential.
type KeyType string

const (
	// KeyTypeEC is an ECDSA P-256 key pair (ES256).
	KeyTypeEC KeyType = "EC"

	// KeyTypeRSA is a 2048-bit RSA key pair (RS256).
	KeyTypeRSA KeyType = "RSA"
)

const rsaKeyBits = 2048

// GenerateKeyPair generates a fresh key pair of the given type, wrapped as
// a JWK with a random key id and signature use.
func GenerateKeyPair(keyType KeyType) (jose.JSONWebKey, error) {
	var private interface{}
	switch keyType {
	case KeyTypeEC:
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return jose.JSONWebKey{}, NewError("authenticator.GenerateKeyPair", err)
		}
		private = key
	case KeyTypeRSA:
		key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
		if err != nil {
			return jose.JSONWebKey{}, NewError("authenticator.GenerateKeyPair", err)
		}
		private = key
	default:
		// Closed set; a new key type requires a deliberate change here.
		panic(fmt.Sprintf("authenticator: unsupported key type %q", keyType))
	}

	return jose.JSONWebKey{
		Key:   private,
		KeyID: uuid.NewString(),
		Use:   "sig",
	}, nil
}

// signWithKey signs SHA-256(data) with the JWK's private key. ECDSA
// signatures are ASN.1 DER encoded as WebAuthn requires; RSA uses
// PKCS#1 v1.5.
func signWithKey(key jose.JSONWebKey, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	switch k := key.Key.(type) {
	case *ecdsa.PrivateKey:
		return ecdsa.SignASN1(rand.Reader, k, digest[:])
	case *rsa.PrivateKey:
		return rsa.SignPKCS1v15(rand.Reader, k, crypto.SHA256, digest[:])
	default:
		return nil, NewError("authenticator.sign", fmt.Errorf("unsupported private key type %T", key.Key))
	}
}

// publicKeyOf returns the public half of a JWK holding a private key.
func publicKeyOf(key jose.JSONWebKey) (crypto.PublicKey, error) {
	signer, ok := key.Key.(crypto.Signer)
	if !ok {
		return nil, NewError("authenticator.publicKey", fmt.Errorf("key %T does not expose a public key", key.Key))
	}
	return signer.Public(), nil
}
