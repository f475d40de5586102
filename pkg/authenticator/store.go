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
	"encoding/json"
	"sync"
)

// Store is a per-authenticator credential store: an insertion-ordered map
// from credential id to credential. At most one credential exists per id;
// iteration order is the insertion order, which makes exports and the
// "first matching credential" assertion rule deterministic.
//
// All operations are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*Credential
	order   []string
}

// NewStore creates an empty credential store.
func NewStore() *Store {
	return &Store{byID: make(map[string]*Credential)}
}

// Add inserts a credential. Returns ErrDuplicateCredential if a credential
// with the same id is already present.
func (s *Store) Add(cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(cred.CredentialID)
	if _, ok := s.byID[key]; ok {
		return NewError("store.Add", ErrDuplicateCredential)
	}
	s.byID[key] = cred
	s.order = append(s.order, key)
	return nil
}

// Find returns the credential with the given id, or false if absent.
func (s *Store) Find(credentialID []byte) (*Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.byID[string(credentialID)]
	return cred, ok
}

// FindByOwner returns the credential for a (user, relying party) pair via
// the derived composite id, or false if absent.
func (s *Store) FindByOwner(userID, relyingPartyID []byte) (*Credential, bool) {
	return s.Find(CompositeID(userID, relyingPartyID))
}

// Remove deletes the credential for a (user, relying party) pair and
// returns it, or false if absent.
func (s *Store) Remove(userID, relyingPartyID []byte) (*Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(CompositeID(userID, relyingPartyID))
	cred, ok := s.byID[key]
	if !ok {
		return nil, false
	}
	delete(s.byID, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return cred, true
}

// CredentialIDs returns all credential ids in insertion order.
func (s *Store) CredentialIDs() [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([][]byte, 0, len(s.order))
	for _, key := range s.order {
		ids = append(ids, []byte(key))
	}
	return ids
}

// Credentials returns all credentials in insertion order.
func (s *Store) Credentials() []*Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creds := make([]*Credential, 0, len(s.order))
	for _, key := range s.order {
		creds = append(creds, s.byID[key])
	}
	return creds
}

// Len returns the number of stored credentials.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// MarshalJSON serializes the store as an ordered credential array.
func (s *Store) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Credentials())
}

// UnmarshalJSON restores a store serialized by MarshalJSON, preserving
// order.
func (s *Store) UnmarshalJSON(data []byte) error {
	var creds []*Credential
	if err := json.Unmarshal(data, &creds); err != nil {
		return NewError("store.UnmarshalJSON", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]*Credential, len(creds))
	s.order = s.order[:0]
	for _, cred := range creds {
		key := string(cred.CredentialID)
		if _, ok := s.byID[key]; ok {
			return NewError("store.UnmarshalJSON", ErrDuplicateCredential)
		}
		s.byID[key] = cred
		s.order = append(s.order, key)
	}
	return nil
}
