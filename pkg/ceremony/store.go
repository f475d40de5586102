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

package ceremony

import (
	"context"
	"sync"
)

// RequestStore is the persistent ceremony request store boundary.
type RequestStore interface {
	// Save persists a record. Fails with ErrDuplicateRequest if the request
	// id exists.
	Save(ctx context.Context, record *Record) error

	// Get returns the record with the given request id, or ErrNotFound.
	Get(ctx context.Context, requestID string) (*Record, error)

	// Delete removes the record with the given request id. Deleting an
	// absent id is not an error.
	Delete(ctx context.Context, requestID string) error
}

// MemoryRequestStore is an in-memory RequestStore for tests and single-node
// deployments.
type MemoryRequestStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryRequestStore creates an empty in-memory request store.
func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{records: make(map[string]*Record)}
}

// Save persists a record, failing with ErrDuplicateRequest on collision.
func (s *MemoryRequestStore) Save(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.RequestID]; ok {
		return ErrDuplicateRequest
	}
	s.records[record.RequestID] = record
	return nil
}

// Get returns the record with the given request id, or ErrNotFound.
func (s *MemoryRequestStore) Get(_ context.Context, requestID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	return record, nil
}

// Delete removes the record with the given request id.
func (s *MemoryRequestStore) Delete(_ context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, requestID)
	return nil
}
