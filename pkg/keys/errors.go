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

import "errors"

var (
	// ErrKeyNotFound is returned when a key id is absent from both the
	// cache and the backing store.
	ErrKeyNotFound = errors.New("keys: key not found")

	// ErrDuplicateKey is returned when saving a key whose id already exists.
	ErrDuplicateKey = errors.New("keys: key already exists")

	// ErrUnsupportedKeyType is returned when a key type or strength outside
	// the supported set is requested.
	ErrUnsupportedKeyType = errors.New("keys: unsupported key type")
)
