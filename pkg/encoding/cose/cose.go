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

// Package cose implements an owned COSE key codec (RFC 9052) for the public
// key types used by WebAuthn credentials: RSA (RS256) and EC P-256 (ES256).
//
// The codec is self-contained on purpose. Earlier revisions reached into a
// third-party library's unexported codec routines via reflection; the
// conversion rules are small enough that owning them outright is the only
// maintainable option.
package cose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// COSE key map labels (RFC 9052 §7, RFC 9053).
const (
	labelKty = 1
	labelAlg = 3

	// EC2 key parameters.
	labelCrv = -1
	labelX   = -2
	labelY   = -3

	// RSA key parameters.
	labelN = -1
	labelE = -2

	ktyEC2 = 2
	ktyRSA = 3

	crvP256 = 1

	// COSE algorithm identifiers.
	AlgES256 = -7
	AlgRS256 = -257
)

var (
	// ErrUnsupportedKeyType is returned when a key is neither RSA nor EC P-256.
	ErrUnsupportedKeyType = errors.New("cose: unsupported key type")

	// ErrMalformedKey is returned when a COSE key map cannot be decoded.
	ErrMalformedKey = errors.New("cose: malformed key")
)

// encMode produces deterministic (canonical CTAP2) CBOR so that encoding the
// same key twice yields identical bytes.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CTAP2EncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// EncodePublicKey converts an RSA or ECDSA P-256 public key to its COSE key
// map representation, CBOR-encoded.
func EncodePublicKey(pub crypto.PublicKey) ([]byte, error) {
	switch key := pub.(type) {
	case *rsa.PublicKey:
		return encodeRSA(key)
	case *ecdsa.PublicKey:
		return encodeEC(key)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKeyType, pub)
	}
}

func encodeRSA(key *rsa.PublicKey) ([]byte, error) {
	coseKey := map[int]interface{}{
		labelKty: ktyRSA,
		labelAlg: AlgRS256,
		labelN:   key.N.Bytes(),
		labelE:   big.NewInt(int64(key.E)).Bytes(),
	}
	return encMode.Marshal(coseKey)
}

func encodeEC(key *ecdsa.PublicKey) ([]byte, error) {
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: curve %s", ErrUnsupportedKeyType, key.Curve.Params().Name)
	}
	raw := ECPublicKeyToRaw(key)
	return RawECToCOSE(raw)
}

// ECPublicKeyToRaw converts a P-256 public key to the SEC1 uncompressed
// point form: a leading 0x04 tag followed by the X and Y coordinates, each
// zero-padded to 32 bytes.
func ECPublicKeyToRaw(key *ecdsa.PublicKey) []byte {
	raw := make([]byte, 65)
	raw[0] = 0x04
	key.X.FillBytes(raw[1:33])
	key.Y.FillBytes(raw[33:65])
	return raw
}

// RawECToCOSE converts a raw EC public key to a CBOR-encoded COSE EC2 key
// map. The input must be either the bare 64-byte X∥Y concatenation or the
// 65-byte SEC1 uncompressed form with a leading 0x04 tag.
func RawECToCOSE(raw []byte) ([]byte, error) {
	start := 0
	switch {
	case len(raw) == 64:
	case len(raw) == 65 && raw[0] == 0x04:
		start = 1
	default:
		return nil, fmt.Errorf("%w: raw EC key must be 64 bytes, or 65 bytes starting with 0x04, got %d bytes", ErrMalformedKey, len(raw))
	}

	coseKey := map[int]interface{}{
		labelKty: ktyEC2,
		labelAlg: AlgES256,
		labelCrv: crvP256,
		labelX:   raw[start : start+32],
		labelY:   raw[start+32 : start+64],
	}
	return encMode.Marshal(coseKey)
}

// The negative parameter labels overlap between key types (crv and n share
// -1, x and e share -2), so kty is decoded first and decides the
// interpretation of the rest of the map.
type coseKeyType struct {
	Kty int `cbor:"1,keyasint"`
}

type coseRSAFields struct {
	N []byte `cbor:"-1,keyasint"`
	E []byte `cbor:"-2,keyasint"`
}

type ecCrvFields struct {
	Crv int    `cbor:"-1,keyasint"`
	X   []byte `cbor:"-2,keyasint"`
	Y   []byte `cbor:"-3,keyasint"`
}

// DecodePublicKey parses a CBOR-encoded COSE key map into an RSA or ECDSA
// public key.
func DecodePublicKey(data []byte) (crypto.PublicKey, error) {
	var kt coseKeyType
	if err := cbor.Unmarshal(data, &kt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	switch kt.Kty {
	case ktyRSA:
		var fields coseRSAFields
		if err := cbor.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
		}
		if len(fields.N) == 0 || len(fields.E) == 0 {
			return nil, fmt.Errorf("%w: RSA key missing modulus or exponent", ErrMalformedKey)
		}
		return &rsa.PublicKey{
			N: new(big.Int).SetBytes(fields.N),
			E: int(new(big.Int).SetBytes(fields.E).Int64()),
		}, nil
	case ktyEC2:
		var ec ecCrvFields
		if err := cbor.Unmarshal(data, &ec); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
		}
		return decodeECFields(ec)
	default:
		return nil, fmt.Errorf("%w: kty %d", ErrUnsupportedKeyType, kt.Kty)
	}
}

func decodeECFields(ec ecCrvFields) (crypto.PublicKey, error) {
	if ec.Crv != crvP256 {
		return nil, fmt.Errorf("%w: EC curve %d", ErrUnsupportedKeyType, ec.Crv)
	}
	if len(ec.X) == 0 || len(ec.Y) == 0 {
		return nil, fmt.Errorf("%w: EC key missing coordinates", ErrMalformedKey)
	}
	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(ec.X),
		Y:     new(big.Int).SetBytes(ec.Y),
	}, nil
}

// Marshal CBOR-encodes an arbitrary value with the codec's deterministic
// encoding options. Used for attestation object maps.
func Marshal(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}
