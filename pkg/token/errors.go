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
	"errors"
	"fmt"
)

// ErrTokenValidation is the base class of all recoverable token failures.
// Every specific failure below unwraps to it, so callers can match either
// the broad category or the precise cause.
var ErrTokenValidation = errors.New("token validation failed")

var (
	// ErrKeyIDMismatch is returned when a token or envelope names a key id
	// other than the key offered for the operation.
	ErrKeyIDMismatch = fmt.Errorf("%w: key id mismatch", ErrTokenValidation)

	// ErrExpired is returned when a token's expiry claim is in the past.
	ErrExpired = fmt.Errorf("%w: token expired", ErrTokenValidation)

	// ErrBadSignature is returned when a token's signature does not verify.
	ErrBadSignature = fmt.Errorf("%w: bad signature", ErrTokenValidation)

	// ErrUndecryptable is returned when an envelope cannot be parsed or
	// decrypted.
	ErrUndecryptable = fmt.Errorf("%w: undecryptable envelope", ErrTokenValidation)

	// ErrEmptyToken is returned when an empty token or envelope is offered.
	ErrEmptyToken = fmt.Errorf("%w: empty token", ErrTokenValidation)
)

// ErrUnsupportedKey is returned when a key record's type or curve has no
// algorithm suite.
var ErrUnsupportedKey = errors.New("token: unsupported key")
