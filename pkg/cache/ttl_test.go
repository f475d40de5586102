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

package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPutGet(t *testing.T) {
	c := NewTTL[string](10, time.Minute)

	c.Put("a", "1")
	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", got)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestOverwriteResetsExpiry(t *testing.T) {
	c := NewTTL[string](10, time.Minute)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })

	c.Put("a", "1")
	now = now.Add(50 * time.Second)
	c.Put("a", "2")

	now = now.Add(30 * time.Second)
	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "2", got)
}

func TestExpiry(t *testing.T) {
	c := NewTTL[int](10, time.Minute)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })

	c.Put("a", 1)
	now = now.Add(time.Minute + time.Second)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCapacityEviction(t *testing.T) {
	c := NewTTL[int](3, time.Minute)
	for i := 0; i < 4; i++ {
		c.Put(fmt.Sprintf("k%d", i), i)
	}

	assert.Equal(t, 3, c.Len())
	_, ok := c.Get("k0")
	assert.False(t, ok)
	got, ok := c.Get("k3")
	assert.True(t, ok)
	assert.Equal(t, 3, got)
}

func TestInvalidate(t *testing.T) {
	c := NewTTL[int](10, time.Minute)
	c.Put("a", 1)
	c.Invalidate("a")
	c.Invalidate("absent")

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestInvalidBounds(t *testing.T) {
	assert.Panics(t, func() { NewTTL[int](0, time.Minute) })
	assert.Panics(t, func() { NewTTL[int](1, 0) })
}
