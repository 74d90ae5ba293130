package dedup

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxKeys is the memory cache size past which the whole set is cleared.
const DefaultMaxKeys = 10_000

// MemoryCache is an in-process Store. When it holds more than max keys it is
// cleared wholesale before the next insert, so duplicates straddling a clear
// are admitted again.
type MemoryCache struct {
	mu   sync.Mutex
	seen map[string]struct{}
	max  int

	// Now is the clock used for hour buckets.
	Now func() time.Time
}

func NewMemoryCache(max int) *MemoryCache {
	if max <= 0 {
		max = DefaultMaxKeys
	}
	return &MemoryCache{seen: make(map[string]struct{}), max: max, Now: time.Now}
}

func (c *MemoryCache) FirstSeen(_ context.Context, key string) (bool, error) {
	k := bucketKey(key, c.Now())

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[k]; ok {
		return false, nil
	}
	if len(c.seen) > c.max {
		clear(c.seen)
	}
	c.seen[k] = struct{}{}
	return true, nil
}

// Len returns the number of keys currently held.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
