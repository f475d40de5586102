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

import (
	"context"
	"sync"
	"time"
)

// Store is the persistent key store boundary. Implementations are external
// synchronous stores; the lifecycle service layers its cache on top.
type Store interface {
	// Save persists a record. Fails with ErrDuplicateKey if the kid exists.
	Save(ctx context.Context, record *Record) error

	// Get returns the record with the given kid, or ErrKeyNotFound.
	Get(ctx context.Context, kid string) (*Record, error)

	// Delete removes the record with the given kid. Deleting an absent kid
	// is not an error.
	Delete(ctx context.Context, kid string) error

	// LatestByUse returns the unexpired record of the given use with the
	// most distant expiry, or ErrKeyNotFound if none exists.
	LatestByUse(ctx context.Context, use KeyUse, now time.Time) (*Record, error)

	// List returns all records. Order is not specified.
	List(ctx context.Context) ([]*Record, error)
}

// MemoryStore is an in-memory Store for tests and single-node deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory key store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Save persists a record, failing with ErrDuplicateKey on a kid collision.
func (s *MemoryStore) Save(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.Kid]; ok {
		return ErrDuplicateKey
	}
	s.records[record.Kid] = record
	return nil
}

// Get returns the record with the given kid, or ErrKeyNotFound.
func (s *MemoryStore) Get(_ context.Context, kid string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[kid]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return record, nil
}

// Delete removes the record with the given kid.
func (s *MemoryStore) Delete(_ context.Context, kid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, kid)
	return nil
}

// LatestByUse returns the unexpired record of the given use with the most
// distant expiry.
func (s *MemoryStore) LatestByUse(_ context.Context, use KeyUse, now time.Time) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *Record
	for _, record := range s.records {
		if record.Use != use || record.Expired(now) {
			continue
		}
		if latest == nil || record.ExpiresAt.After(latest.ExpiresAt) {
			latest = record
		}
	}
	if latest == nil {
		return nil, ErrKeyNotFound
	}
	return latest, nil
}

// List returns all records.
func (s *MemoryStore) List(_ context.Context) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record)
	}
	return out, nil
}
