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

package rp

import (
	"context"
	"sync"

	"github.com/go-webauthn/webauthn/protocol"
)

// Directory is an in-memory Repository for tests and single-node
// deployments. Credentials are kept per user in registration order.
type Directory struct {
	mu       sync.RWMutex
	byName   map[string]*userEntry
	byHandle map[string]string // handle -> username
}

type userEntry struct {
	handle      []byte
	username    string
	credentials []*RegisteredCredential
}

// NewDirectory creates an empty user directory.
func NewDirectory() *Directory {
	return &Directory{
		byName:   make(map[string]*userEntry),
		byHandle: make(map[string]string),
	}
}

// RegisterUser creates a user entry, failing with ErrDuplicateUser if the
// username or handle is taken.
func (d *Directory) RegisterUser(_ context.Context, userHandle []byte, username string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byName[username]; ok {
		return ErrDuplicateUser
	}
	if _, ok := d.byHandle[string(userHandle)]; ok {
		return ErrDuplicateUser
	}
	d.byName[username] = &userEntry{
		handle:   append([]byte(nil), userHandle...),
		username: username,
	}
	d.byHandle[string(userHandle)] = username
	return nil
}

// AddCredential attaches a credential to the user owning its handle.
func (d *Directory) AddCredential(_ context.Context, cred *RegisteredCredential) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	username, ok := d.byHandle[string(cred.UserHandle)]
	if !ok {
		return ErrUserNotFound
	}
	entry := d.byName[username]
	entry.credentials = append(entry.credentials, cred)
	return nil
}

// Descriptors returns the credential descriptors registered to a username.
func (d *Directory) Descriptors(_ context.Context, username string) ([]protocol.CredentialDescriptor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.byName[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	descriptors := make([]protocol.CredentialDescriptor, 0, len(entry.credentials))
	for _, cred := range entry.credentials {
		descriptors = append(descriptors, cred.Descriptor())
	}
	return descriptors, nil
}

// UsernameForHandle resolves a user handle to its username.
func (d *Directory) UsernameForHandle(_ context.Context, userHandle []byte) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	username, ok := d.byHandle[string(userHandle)]
	if !ok {
		return "", ErrUserNotFound
	}
	return username, nil
}

// Lookup returns the credential with the given id if it belongs to the
// given user handle. A credential owned by another handle masks as
// not-found.
func (d *Directory) Lookup(_ context.Context, credentialID, userHandle []byte) (*RegisteredCredential, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lookupLocked(credentialID, userHandle)
}

// UpdateSignCount records the counter from a validated assertion.
func (d *Directory) UpdateSignCount(_ context.Context, credentialID, userHandle []byte, signCount uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cred, err := d.lookupLocked(credentialID, userHandle)
	if err != nil {
		return err
	}
	cred.SignCount = signCount
	return nil
}

func (d *Directory) lookupLocked(credentialID, userHandle []byte) (*RegisteredCredential, error) {
	username, ok := d.byHandle[string(userHandle)]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	for _, cred := range d.byName[username].credentials {
		if string(cred.CredentialID) == string(credentialID) {
			return cred, nil
		}
	}
	return nil, ErrCredentialNotFound
}
