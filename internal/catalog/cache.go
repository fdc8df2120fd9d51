package catalog

import (
	"context"
	"sync"
	"time"
)

type cachedChain struct {
	chain   EpisodeChain
	expires time.Time
}

// CachedStore memoises EpisodeChain lookups for a fixed TTL. Content and
// Episode go straight to the wrapped store because the movie path reads
// total_views and must not see a stale row. Misses are not cached.
type CachedStore struct {
	Store

	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	chains map[string]cachedChain
}

// NewCachedStore wraps next. ttl <= 0 disables caching.
func NewCachedStore(next Store, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Store:  next,
		ttl:    ttl,
		now:    time.Now,
		chains: make(map[string]cachedChain),
	}
}

// EpisodeChain returns a cached chain when one is still fresh.
func (c *CachedStore) EpisodeChain(ctx context.Context, uuid string) (EpisodeChain, error) {
	if c.ttl <= 0 {
		return c.Store.EpisodeChain(ctx, uuid)
	}

	now := c.now()
	c.mu.Lock()
	if e, ok := c.chains[uuid]; ok && now.Before(e.expires) {
		c.mu.Unlock()
		return e.chain, nil
	}
	c.mu.Unlock()

	ch, err := c.Store.EpisodeChain(ctx, uuid)
	if err != nil {
		return EpisodeChain{}, err
	}

	c.mu.Lock()
	c.chains[uuid] = cachedChain{chain: ch, expires: now.Add(c.ttl)}
	c.mu.Unlock()
	return ch, nil
}

// Purge drops expired entries and returns how many remain.
func (c *CachedStore) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.chains {
		if !now.Before(e.expires) {
			delete(c.chains, k)
		}
	}
	return len(c.chains)
}

// Len reports the number of cached chains, fresh or not.
func (c *CachedStore) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chains)
}
