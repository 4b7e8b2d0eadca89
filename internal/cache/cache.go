// Package cache provides the ephemeral in-memory stream cache. Entries
// expire after a configurable TTL so dead upstream links age out without
// manual invalidation.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"streamvault/models"
)

// StreamCache holds resolved stream links keyed by content identity.
type StreamCache struct {
	lru *expirable.LRU[string, []models.StreamLink]
}

// NewStreamCache creates a cache holding up to maxEntries identities, each
// expiring ttl after insertion.
func NewStreamCache(maxEntries int, ttl time.Duration) *StreamCache {
	return &StreamCache{
		lru: expirable.NewLRU[string, []models.StreamLink](maxEntries, nil, ttl),
	}
}

// Get returns the cached links for an identity, if present and unexpired.
func (c *StreamCache) Get(id models.ContentIdentity) ([]models.StreamLink, bool) {
	return c.lru.Get(id.CacheKey())
}

// Put stores the full resolved link set for an identity. Empty result sets
// are not cached so a transient upstream outage does not pin a negative
// answer for the whole TTL.
func (c *StreamCache) Put(id models.ContentIdentity, links []models.StreamLink) {
	if len(links) == 0 {
		return
	}
	c.lru.Add(id.CacheKey(), links)
}

// Remove evicts an identity, if cached.
func (c *StreamCache) Remove(id models.ContentIdentity) {
	c.lru.Remove(id.CacheKey())
}

// Contains reports whether an identity is cached without updating recency.
func (c *StreamCache) Contains(id models.ContentIdentity) bool {
	return c.lru.Contains(id.CacheKey())
}

// Len returns the number of live entries.
func (c *StreamCache) Len() int {
	return c.lru.Len()
}
