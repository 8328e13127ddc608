package syncer

import (
	"context"
	"sync"

	"github.com/mosaicdocs/mosaic/pkg/permissions"
)

// MemoryCache is an in-memory CacheStore for tests.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[cacheKey]permissions.Mask

	ReplaceErr error
}

type cacheKey struct {
	ObjectType string
	ObjectID   string
	UserID     string
}

// NewMemoryCache creates an empty in-memory permission cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[cacheKey]permissions.Mask)}
}

func (c *MemoryCache) ReplaceForObject(_ context.Context, objectType, objectID string, entries []Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReplaceErr != nil {
		return c.ReplaceErr
	}
	for k := range c.entries {
		if k.ObjectType == objectType && k.ObjectID == objectID {
			delete(c.entries, k)
		}
	}
	c.insert(entries)
	return nil
}

func (c *MemoryCache) ReplaceForUser(_ context.Context, userID string, entries []Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReplaceErr != nil {
		return c.ReplaceErr
	}
	for k := range c.entries {
		if k.UserID == userID {
			delete(c.entries, k)
		}
	}
	c.insert(entries)
	return nil
}

func (c *MemoryCache) insert(entries []Entry) {
	for _, e := range entries {
		c.entries[cacheKey{e.ObjectType, e.ObjectID, e.UserID}] = e.Mask
	}
}

// Mask returns the cached mask for one (object, user) pair, zero when absent.
func (c *MemoryCache) Mask(objectType, objectID, userID string) permissions.Mask {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[cacheKey{objectType, objectID, userID}]
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
