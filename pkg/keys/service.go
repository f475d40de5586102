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
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/jeremyhahn/go-webauthn-rp/pkg/adapters/logger"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/cache"
)

const (
	// DefaultLifetime is how long a generated key remains current.
	DefaultLifetime = 30 * 24 * time.Hour

	// cache bounds for key lookups
	cacheCapacity = 1000
	cacheTTL      = 24 * time.Hour
)

// Service is the key lifecycle service. It generates keys, persists them
// through the external store, serves lookups through a bounded cache and
// resolves the current key per use with expiry-driven lazy rotation.
//
// The current-key references are read by every token operation and written
// only on rotation or removal, so they are atomically swapped pointers with
// a mutex guarding the store round-trip on the slow path.
type Service struct {
	store    Store
	cache    *cache.TTL[*Record]
	lifetime time.Duration
	log      logger.Logger
	now      func() time.Time

	mu           sync.Mutex
	latestByUse  map[KeyUse]*atomic.Pointer[Record]
	defaultTypes map[KeyUse]KeyType
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLifetime overrides the default key lifetime.
func WithLifetime(lifetime time.Duration) ServiceOption {
	return func(s *Service) {
		s.lifetime = lifetime
	}
}

// WithLogger sets the service logger.
func WithLogger(log logger.Logger) ServiceOption {
	return func(s *Service) {
		s.log = log
	}
}

// WithClock overrides the service's time source. Intended for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// WithDefaultKeyType sets the key type latestKey generates when no key of
// the given use exists. Signature keys default to EC, encryption keys to RSA.
func WithDefaultKeyType(use KeyUse, keyType KeyType) ServiceOption {
	return func(s *Service) {
		s.defaultTypes[use] = keyType
	}
}

// NewService creates a key lifecycle service over the given store.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		cache:    cache.NewTTL[*Record](cacheCapacity, cacheTTL),
		lifetime: DefaultLifetime,
		log:      logger.NewNoopLogger(),
		now:      time.Now,
		latestByUse: map[KeyUse]*atomic.Pointer[Record]{
			UseSignature:  {},
			UseEncryption: {},
		},
		defaultTypes: map[KeyUse]KeyType{
			UseSignature:  KeyTypeEC,
			UseEncryption: KeyTypeRSA,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateKey generates a key of the given type and strength, persists it and
// caches it. A strength of zero selects the default for the key type.
func (s *Service) CreateKey(ctx context.Context, keyType KeyType, use KeyUse, strength int) (*Record, error) {
	key, err := Generate(keyType, use, strength)
	if err != nil {
		return nil, err
	}
	now := s.now()
	record := &Record{
		Kid:       key.KeyID,
		KeyType:   keyType,
		Use:       use,
		CreatedAt: now,
		ExpiresAt: now.Add(s.lifetime),
		Key:       key,
	}
	if err := s.store.Save(ctx, record); err != nil {
		return nil, err
	}
	s.cache.Put(record.Kid, record)
	s.log.Info("key created",
		logger.String("kid", record.Kid),
		logger.String("keyType", string(keyType)),
		logger.String("use", string(use)))
	return record, nil
}

// SaveKey persists an externally generated record, failing with
// ErrDuplicateKey if its kid is already taken.
func (s *Service) SaveKey(ctx context.Context, record *Record) error {
	if err := s.store.Save(ctx, record); err != nil {
		return err
	}
	s.cache.Put(record.Kid, record)
	s.log.Info("key imported", logger.String("kid", record.Kid))
	return nil
}

// GetEntity returns the record with the given kid, cache-first. A miss
// falls through to the store and repopulates the cache.
func (s *Service) GetEntity(ctx context.Context, kid string) (*Record, error) {
	if record, ok := s.cache.Get(kid); ok {
		return record, nil
	}
	record, err := s.store.Get(ctx, kid)
	if err != nil {
		return nil, err
	}
	s.cache.Put(kid, record)
	return record, nil
}

// LatestKey resolves the current key for the given use. A cached unexpired
// current key is returned as-is; otherwise the store is queried for the
// most-recently-expiring unexpired key, and if none exists a new key of the
// default type for the use is generated.
func (s *Service) LatestKey(ctx context.Context, use KeyUse) (*Record, error) {
	ref, ok := s.latestByUse[use]
	if !ok {
		return nil, ErrUnsupportedKeyType
	}

	now := s.now()
	if record := ref.Load(); record != nil && !record.Expired(now) {
		return record, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have refreshed while this one waited.
	if record := ref.Load(); record != nil && !record.Expired(now) {
		return record, nil
	}

	record, err := s.store.LatestByUse(ctx, use, now)
	if errors.Is(err, ErrKeyNotFound) {
		record, err = s.CreateKey(ctx, s.defaultTypes[use], use, 0)
	}
	if err != nil {
		return nil, err
	}
	ref.Store(record)
	return record, nil
}

// RemoveKey deletes the record from the store, invalidates its cache entry
// and clears a matching current-key reference so the next LatestKey call
// re-resolves.
func (s *Service) RemoveKey(ctx context.Context, kid string) error {
	if err := s.store.Delete(ctx, kid); err != nil {
		return err
	}
	s.cache.Invalidate(kid)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range s.latestByUse {
		if record := ref.Load(); record != nil && record.Kid == kid {
			ref.Store(nil)
		}
	}
	s.log.Info("key removed", logger.String("kid", kid))
	return nil
}

// JWKS exports the public halves of all stored keys as a JWK set.
func (s *Service) JWKS(ctx context.Context) (jose.JSONWebKeySet, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return jose.JSONWebKeySet{}, err
	}
	set := jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(records))}
	for _, record := range records {
		set.Keys = append(set.Keys, record.Public())
	}
	return set, nil
}
