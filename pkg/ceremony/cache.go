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
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/jeremyhahn/go-webauthn-rp/pkg/adapters/logger"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/cache"
)

const (
	// DefaultExpiry bounds how long a ceremony may stay in flight.
	DefaultExpiry = 10 * time.Minute

	cacheCapacity = 10000
)

// Cache is the ceremony request cache: a typed save/load front over the
// persistent request store with a bounded in-memory cache. The payload set
// is closed because both the relying-party engine and the wire format are
// fixed externally; saving any other type is a programmer error and panics.
type Cache struct {
	store  RequestStore
	memory *cache.TTL[*Record]
	log    logger.Logger
	now    func() time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithLogger sets the cache logger.
func WithLogger(log logger.Logger) CacheOption {
	return func(c *Cache) {
		c.log = log
	}
}

// WithClock overrides the cache's time source. Intended for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a ceremony request cache over the given store.
func NewCache(store RequestStore, opts ...CacheOption) *Cache {
	c := &Cache{
		store:  store,
		memory: cache.NewTTL[*Record](cacheCapacity, DefaultExpiry),
		log:    logger.NewNoopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Save persists ceremony options under the given request id. The request
// type is derived from the payload variant; the expiry is the payload's own
// timeout when it specifies a shorter one, else the default. Fails with
// ErrDuplicateRequest if the request id already exists.
func (c *Cache) Save(ctx context.Context, requestID string, payload interface{}) error {
	requestType, timeout := classify(payload)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ceremony: serialize request: %w", err)
	}

	now := c.now()
	expiry := DefaultExpiry
	if timeout > 0 && timeout < expiry {
		expiry = timeout
	}
	record := &Record{
		RequestID: requestID,
		Type:      requestType,
		CreatedAt: now,
		ExpiresAt: now.Add(expiry),
		Payload:   data,
	}

	if err := c.store.Save(ctx, record); err != nil {
		return err
	}
	c.memory.Put(requestID, record)
	c.log.Debug("ceremony request saved",
		logger.String("requestId", requestID),
		logger.String("requestType", string(requestType)))
	return nil
}

// LoadRegistration returns the registration ceremony options stored under
// the request id. Fails with ErrNotFound if the record is absent, expired
// or holds an assertion request.
func (c *Cache) LoadRegistration(ctx context.Context, requestID string) (*protocol.CredentialCreation, error) {
	record, err := c.load(ctx, requestID, Registration)
	if err != nil {
		return nil, err
	}
	options := &protocol.CredentialCreation{}
	if err := json.Unmarshal(record.Payload, options); err != nil {
		return nil, fmt.Errorf("ceremony: deserialize request: %w", err)
	}
	return options, nil
}

// LoadAssertion returns the assertion ceremony request stored under the
// request id. Fails with ErrNotFound if the record is absent, expired or
// holds registration options.
func (c *Cache) LoadAssertion(ctx context.Context, requestID string) (*protocol.CredentialAssertion, error) {
	record, err := c.load(ctx, requestID, Assertion)
	if err != nil {
		return nil, err
	}
	options := &protocol.CredentialAssertion{}
	if err := json.Unmarshal(record.Payload, options); err != nil {
		return nil, fmt.Errorf("ceremony: deserialize request: %w", err)
	}
	return options, nil
}

// Remove deletes a ceremony request from the cache and the store.
func (c *Cache) Remove(ctx context.Context, requestID string) error {
	c.memory.Invalidate(requestID)
	return c.store.Delete(ctx, requestID)
}

// load resolves a record cache-first, falling back to the store and
// repopulating the cache on a miss. A record of the wrong type or past its
// expiry masks as not-found.
func (c *Cache) load(ctx context.Context, requestID string, expected RequestType) (*Record, error) {
	record, ok := c.memory.Get(requestID)
	if !ok {
		var err error
		record, err = c.store.Get(ctx, requestID)
		if err != nil {
			return nil, err
		}
		c.memory.Put(requestID, record)
	}

	if record.Expired(c.now()) {
		return nil, ErrNotFound
	}
	if record.Type != expected {
		c.log.Warn("ceremony request type mismatch",
			logger.String("requestId", requestID),
			logger.String("stored", string(record.Type)),
			logger.String("expected", string(expected)))
		return nil, ErrNotFound
	}
	return record, nil
}

// classify maps a payload variant to its request type and declared timeout.
func classify(payload interface{}) (RequestType, time.Duration) {
	switch p := payload.(type) {
	case *protocol.CredentialCreation:
		return Registration, time.Duration(p.Response.Timeout) * time.Millisecond
	case *protocol.CredentialAssertion:
		return Assertion, time.Duration(p.Response.Timeout) * time.Millisecond
	default:
		panic(fmt.Sprintf("ceremony: unsupported payload type %T", payload))
	}
}
