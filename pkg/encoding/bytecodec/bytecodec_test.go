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

package bytecodec

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestUint8(t *testing.T) {
	assert.Equal(t, []byte{0x00}, Uint8(0))
	assert.Equal(t, []byte{0x45}, Uint8(0x45))
	assert.Equal(t, []byte{0xff}, Uint8(255))

	assert.Panics(t, func() { Uint8(-1) })
	assert.Panics(t, func() { Uint8(256) })
}

func TestUint16(t *testing.T) {
	assert.Equal(t, []byte{0x00, 0x00}, Uint16(0))
	assert.Equal(t, []byte{0x01, 0x02}, Uint16(0x0102))
	assert.Equal(t, []byte{0xff, 0xff}, Uint16(65535))

	assert.Panics(t, func() { Uint16(-1) })
	assert.Panics(t, func() { Uint16(65536) })
}

func TestUint32(t *testing.T) {
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x01}, Uint32(1))
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, Uint32(0xdeadbeef))

	assert.Panics(t, func() { Uint32(-1) })
	assert.Panics(t, func() { Uint32(1 << 32) })
}

func TestUint64(t *testing.T) {
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0}, Uint64(0))
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, Uint64(0x0102030405060708))
}

func TestUUID(t *testing.T) {
	id := uuid.MustParse("01020304-0506-0708-090a-0b0c0d0e0f10")
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	assert.Equal(t, want, UUID(id))
}

func TestConcat(t *testing.T) {
	assert.Empty(t, Concat())
	assert.Equal(t, []byte{1, 2, 3, 4}, Concat([]byte{1, 2}, nil, []byte{3, 4}))

	// the result never aliases an input
	a := []byte{1, 2}
	out := Concat(a)
	out[0] = 9
	assert.Equal(t, byte(1), a[0])
}
