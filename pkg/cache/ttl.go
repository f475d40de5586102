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

// Package cache provides a size- and time-bounded in-memory cache. Entries
// expire a fixed duration after they are written; when the capacity is
// reached, the oldest entry by write time is evicted. Callers must treat a
// miss as transparent: the authoritative copy always lives in a backing
// store.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// TTL is a thread-safe cache bounded by entry count and write-time expiry.
type TTL[V any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[string]*list.Element
	order    *list.List // write order, oldest at front

	// now is swappable in tests.
	now func() time.Time
}

type ttlEntry[V any] struct {
	key       string
	value     V
	writtenAt time.Time
}

// NewTTL creates a cache that keeps at most capacity entries, each for at
// most ttl after its last write.
func NewTTL[V any](capacity int, ttl time.Duration) *TTL[V] {
	if capacity <= 0 {
		panic("cache: capacity must be positive")
	}
	if ttl <= 0 {
		panic("cache: ttl must be positive")
	}
	return &TTL[V]{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Put stores value under key, overwriting any previous entry and resetting
// its expiry.
func (c *TTL[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*ttlEntry[V])
		entry.value = value
		entry.writtenAt = c.now()
		c.order.MoveToBack(elem)
		return
	}

	if len(c.entries) >= c.capacity {
		c.evictOldest()
	}

	elem := c.order.PushBack(&ttlEntry[V]{key: key, value: value, writtenAt: c.now()})
	c.entries[key] = elem
}

// Get returns the cached value for key, or false if the key is absent or
// its entry has expired. Expired entries are removed on access.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	entry := elem.Value.(*ttlEntry[V])
	if c.now().Sub(entry.writtenAt) > c.ttl {
		c.removeLocked(elem, entry.key)
		return zero, false
	}
	return entry.value, true
}

// Invalidate removes key from the cache if present.
func (c *TTL[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem, key)
	}
}

// Len returns the number of entries currently held, including any that have
// expired but not yet been evicted.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *TTL[V]) evictOldest() {
	if elem := c.order.Front(); elem != nil {
		c.removeLocked(elem, elem.Value.(*ttlEntry[V]).key)
	}
}

func (c *TTL[V]) removeLocked(elem *list.Element, key string) {
	c.order.Remove(elem)
	delete(c.entries, key)
}

// SetClock overrides the cache's time source. Intended for tests.
func (c *TTL[V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
