package quote

import (
	"sync"
	"time"

	"github.com/mtlprog/kosh/internal/domain"
)

type cacheKey struct {
	network domain.Network
	dest    domain.AssetKey
	amount  string
}

type cacheEntry struct {
	quote     domain.Quote
	expiresAt time.Time
}

type quoteCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[cacheKey]cacheEntry
	now     func() time.Time
}

func newQuoteCache(ttl time.Duration) *quoteCache {
	return &quoteCache{
		ttl:     ttl,
		entries: make(map[cacheKey]cacheEntry),
		now:     time.Now,
	}
}

func (c *quoteCache) get(key cacheKey) (domain.Quote, bool) {
	if c.ttl <= 0 {
		return domain.Quote{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expiresAt) {
		return domain.Quote{}, false
	}
	return entry.quote, true
}

func (c *quoteCache) set(key cacheKey, q domain.Quote) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		quote:     q,
		expiresAt: c.now().Add(c.ttl),
	}
}
