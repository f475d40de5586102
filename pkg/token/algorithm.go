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

package token

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jeremyhahn/go-webauthn-rp/pkg/keys"
)

// Suite is the algorithm selection for one key: how tokens signed with the
// key are signed and how envelopes addressed to it are encrypted. Selection
// is centralized here so a new key type is one change.
type Suite struct {
	// Signing is the JWS algorithm for the key.
	Signing jwt.SigningMethod

	// KeyManagement wraps the content-encryption key in a JWE envelope.
	KeyManagement jose.KeyAlgorithm

	// ContentEncryption is the JWE payload cipher. Always AES-256-GCM.
	ContentEncryption jose.ContentEncryption
}

// SuiteFor selects the algorithm suite for a key record: RSA keys sign with
// RS256 and encrypt with RSA-OAEP-256; EC keys sign with the ESxxx variant
// matching their curve and encrypt with ECDH-ES+A256KW.
func SuiteFor(record *keys.Record) (Suite, error) {
	switch key := record.Key.Key.(type) {
	case *rsa.PrivateKey:
		return Suite{
			Signing:           jwt.SigningMethodRS256,
			KeyManagement:     jose.RSA_OAEP_256,
			ContentEncryption: jose.A256GCM,
		}, nil
	case *ecdsa.PrivateKey:
		signing, err := ecSigningMethod(key.Curve)
		if err != nil {
			return Suite{}, err
		}
		return Suite{
			Signing:           signing,
			KeyManagement:     jose.ECDH_ES_A256KW,
			ContentEncryption: jose.A256GCM,
		}, nil
	default:
		return Suite{}, fmt.Errorf("%w: %T", ErrUnsupportedKey, record.Key.Key)
	}
}

func ecSigningMethod(curve elliptic.Curve) (jwt.SigningMethod, error) {
	switch curve {
	case elliptic.P256():
		return jwt.SigningMethodES256, nil
	case elliptic.P384():
		return jwt.SigningMethodES384, nil
	case elliptic.P521():
		return jwt.SigningMethodES512, nil
	default:
		return nil, fmt.Errorf("%w: curve %s", ErrUnsupportedKey, curve.Params().Name)
	}
}

// allowed algorithm sets for envelope parsing
var (
	keyManagementAlgorithms = []jose.KeyAlgorithm{jose.RSA_OAEP_256, jose.ECDH_ES_A256KW}
	contentEncryptions      = []jose.ContentEncryption{jose.A256GCM}
)
