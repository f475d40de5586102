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
	"errors"
	"fmt"
)

// Sentinel errors for authenticator and device operations.
var (
	// ErrConflict is returned when a credential already exists for a
	// (user, relying party) pair during registration.
	ErrConflict = errors.New("credential already exists for user and relying party")

	// ErrDuplicateCredential is returned when adding a credential whose id
	// is already present in the store.
	ErrDuplicateCredential = errors.New("credential already exists")

	// ErrCredentialNotFound is returned when a credential cannot be found.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrAlgorithmMismatch is returned when none of the requested signature
	// algorithms are supported by the authenticator.
	ErrAlgorithmMismatch = errors.New("no matching signature algorithm")

	// ErrCredentialMismatch is returned when no stored credential appears in
	// the assertion allow-list.
	ErrCredentialMismatch = errors.New("no stored credential matches allow list")

	// ErrAuthenticatorNotFound is returned when a device has no
	// authenticator with the given id.
	ErrAuthenticatorNotFound = errors.New("authenticator not found")

	// ErrDuplicateAuthenticator is returned when adding an authenticator
	// whose id already exists on the device.
	ErrDuplicateAuthenticator = errors.New("authenticator already exists")

	// ErrDeviceNotFound is returned when the registry has no device with
	// the given id.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDuplicateDevice is returned when registering a device whose id is
	// already taken.
	ErrDuplicateDevice = errors.New("device already exists")

	// ErrBadRequest is returned when ceremony options are malformed.
	ErrBadRequest = errors.New("malformed ceremony options")
)

// Error wraps an error with the operation that produced it.
type Error struct {
	Op  string
	Err error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new Error with the given operation and cause.
func NewError(op string, err error) error {
	return &Error{Op: op, Err: err}
}
