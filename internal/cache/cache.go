// Package cache provides the tagged view cache backing team list and
// detail reads. Entries are stored under a key and associated with tags;
// mutations invalidate whole tags ("teams", "team:{id}") rather than
// individual keys.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache stores serialized view payloads with tag-based invalidation.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, tags []string)
	Invalidate(ctx context.Context, tags ...string)
	Close()
}

// Tag helpers shared by services.
const TagTeams = "teams"

// TagTeam returns the detail tag for one team.
func TagTeam(teamID string) string { return "team:" + teamID }

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

type memoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	tags    map[string]map[string]struct{}
}

// NewMemoryCache returns an in-process Cache, used in tests and as a
// fallback when Redis is not configured.
func NewMemoryCache(ttl time.Duration) Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &memoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		tags:    make(map[string]map[string]struct{}),
	}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, tags []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(c.ttl)}
	for _, tag := range tags {
		if _, ok := c.tags[tag]; !ok {
			c.tags[tag] = make(map[string]struct{})
		}
		c.tags[tag][key] = struct{}{}
	}
}

func (c *memoryCache) Invalidate(_ context.Context, tags ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tag := range tags {
		for key := range c.tags[tag] {
			delete(c.entries, key)
		}
		delete(c.tags, tag)
	}
}

func (c *memoryCache) Close() {}
