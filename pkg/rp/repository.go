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

// Package rp exposes the credential repository the external relying-party
// ceremony engine consumes: username to credential descriptors, user handle
// to username, and credential lookup with a strict ownership check.
package rp

import (
	"bytes"
	"context"
	"errors"

	"github.com/go-webauthn/webauthn/protocol"
)

var (
	// ErrUserNotFound is returned when a username or user handle is unknown.
	ErrUserNotFound = errors.New("rp: user not found")

	// ErrCredentialNotFound is returned when a credential id is unknown or
	// does not belong to the given user handle. Ownership violations mask
	// as not-found so a caller cannot probe other users' credentials.
	ErrCredentialNotFound = errors.New("rp: credential not found")

	// ErrDuplicateUser is returned when registering a username that exists.
	ErrDuplicateUser = errors.New("rp: user already exists")
)

// RegisteredCredential is a credential as the relying party sees it: the
// public half plus the verification state the ceremony engine needs.
type RegisteredCredential struct {
	CredentialID []byte
	UserHandle   []byte
	PublicKey    []byte // COSE-encoded
	SignCount    uint32
	Transports   []protocol.AuthenticatorTransport
}

// Descriptor converts the credential to the wire descriptor used in
// ceremony allow- and exclude-lists.
func (c *RegisteredCredential) Descriptor() protocol.CredentialDescriptor {
	return protocol.CredentialDescriptor{
		Type:         protocol.PublicKeyCredentialType,
		CredentialID: c.CredentialID,
		Transport:    c.Transports,
	}
}

// BelongsTo reports whether the credential is owned by the given handle.
func (c *RegisteredCredential) BelongsTo(userHandle []byte) bool {
	return bytes.Equal(c.UserHandle, userHandle)
}

// Repository is the credential repository boundary consumed by the ceremony
// engine. Implementations are storage-backed; all lookups are synchronous.
type Repository interface {
	// RegisterUser creates a user entry for the given handle and username.
	RegisterUser(ctx context.Context, userHandle []byte, username string) error

	// AddCredential attaches a credential to the user that owns its handle.
	AddCredential(ctx context.Context, cred *RegisteredCredential) error

	// Descriptors returns the credential descriptors registered to a
	// username, or ErrUserNotFound.
	Descriptors(ctx context.Context, username string) ([]protocol.CredentialDescriptor, error)

	// UsernameForHandle resolves a user handle to its username, or
	// ErrUserNotFound.
	UsernameForHandle(ctx context.Context, userHandle []byte) (string, error)

	// Lookup returns the credential with the given id if and only if it
	// belongs to the given user handle, else ErrCredentialNotFound.
	Lookup(ctx context.Context, credentialID, userHandle []byte) (*RegisteredCredential, error)

	// UpdateSignCount records the counter observed in a validated
	// assertion, honoring the same ownership check as Lookup.
	UpdateSignCount(ctx context.Context, credentialID, userHandle []byte, signCount uint32) error
}
