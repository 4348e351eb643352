// Package token produces a usable bearer token for API calls, trying a fixed
// strategy order and caching the winner.
package token

import (
	"sync"
	"time"
)

// CacheEntry is the single in-memory token record. It is never persisted.
type CacheEntry struct {
	Token     string
	FetchedAt time.Time
}

// Cache holds at most one CacheEntry per process.
type Cache struct {
	mu    sync.Mutex
	entry *CacheEntry
}

func NewCache() *Cache {
	return &Cache{}
}

// Get returns the cached token when it was fetched less than ttl ago.
func (c *Cache) Get(now time.Time, ttl time.Duration) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entry == nil {
		return "", false
	}
	if now.Sub(c.entry.FetchedAt) >= ttl {
		return "", false
	}
	return c.entry.Token, true
}

// Put replaces the entry.
func (c *Cache) Put(token string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = &CacheEntry{Token: token, FetchedAt: now}
}

// Clear drops the entry unconditionally.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = nil
}
