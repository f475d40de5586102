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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
)

const (
	// DefaultECStrength selects the P-256 curve.
	DefaultECStrength = 256

	// DefaultRSAStrength selects 2048-bit moduli.
	DefaultRSAStrength = 2048
)

// Generate creates a fresh key pair of the given type and strength, wrapped
// as a JWK with a random kid. For EC keys the strength selects the curve
// (256, 384 or 521); for RSA it is the modulus size in bits (2048 minimum).
// A strength of zero selects the default for the key type.
func Generate(keyType KeyType, use KeyUse, strength int) (jose.JSONWebKey, error) {
	var private interface{}
	switch keyType {
	case KeyTypeEC:
		curve, err := curveForStrength(strength)
		if err != nil {
			return jose.JSONWebKey{}, err
		}
		key, err := ecdsa.GenerateKey(curve, rand.Reader)
		if err != nil {
			return jose.JSONWebKey{}, fmt.Errorf("keys: generate EC key: %w", err)
		}
		private = key
	case KeyTypeRSA:
		if strength == 0 {
			strength = DefaultRSAStrength
		}
		if strength < DefaultRSAStrength {
			return jose.JSONWebKey{}, fmt.Errorf("%w: RSA modulus %d below %d bits", ErrUnsupportedKeyType, strength, DefaultRSAStrength)
		}
		key, err := rsa.GenerateKey(rand.Reader, strength)
		if err != nil {
			return jose.JSONWebKey{}, fmt.Errorf("keys: generate RSA key: %w", err)
		}
		private = key
	default:
		return jose.JSONWebKey{}, fmt.Errorf("%w: %q", ErrUnsupportedKeyType, keyType)
	}

	return jose.JSONWebKey{
		Key:   private,
		KeyID: uuid.NewString(),
		Use:   use.joseUse(),
	}, nil
}

func curveForStrength(strength int) (elliptic.Curve, error) {
	switch strength {
	case 0, 256:
		return elliptic.P256(), nil
	case 384:
		return elliptic.P384(), nil
	case 521:
		return elliptic.P521(), nil
	default:
		return nil, fmt.Errorf("%w: EC strength %d", ErrUnsupportedKeyType, strength)
	}
}
