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

// Package bytecodec provides deterministic, fixed-width big-endian encoders
// for the binary structures that make up WebAuthn authenticator data:
// counters, length prefixes and 128-bit authenticator identifiers.
//
// All encoders are contract-checked: an out-of-range input indicates
// corrupted internal state, not a caller mistake, so they panic rather than
// return an error.
package bytecodec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Uint8 encodes v as a single byte. Panics if v is out of range.
func Uint8(v int) []byte {
	if v < 0 || v > math.MaxUint8 {
		panic(fmt.Sprintf("bytecodec: value %d out of uint8 range", v))
	}
	return []byte{byte(v)}
}

// Uint16 encodes v as 2 big-endian bytes. Panics if v is out of range.
func Uint16(v int) []byte {
	if v < 0 || v > math.MaxUint16 {
		panic(fmt.Sprintf("bytecodec: value %d out of uint16 range", v))
	}
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, uint16(v))
	return buf
}

// Uint32 encodes v as 4 big-endian bytes. Panics if v is out of range.
func Uint32(v int64) []byte {
	if v < 0 || v > math.MaxUint32 {
		panic(fmt.Sprintf("bytecodec: value %d out of uint32 range", v))
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(v))
	return buf
}

// Uint64 encodes v as 8 big-endian bytes.
func Uint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// UUID encodes a 128-bit identifier as its 16 raw bytes, most significant
// bits first. This is the AAGUID layout used in attested credential data.
func UUID(id uuid.UUID) []byte {
	buf := make([]byte, 16)
	copy(buf, id[:])
	return buf
}

// Concat joins byte slices into a single buffer. The result is always a
// fresh allocation; inputs are never aliased.
func Concat(parts ...[]byte) []byte {
	size := 0
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}
