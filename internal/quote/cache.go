// Package quote provides the upstream price source adapter and a short-TTL
// in-memory cache that suppresses duplicate network lookups.
package quote

import (
	"strings"
	"sync"
	"time"

	"github.com/foliotrack/portfolio-engine/internal/model"
)

// DefaultTTL is how long a cached quote stays fresh.
const DefaultTTL = 30 * time.Second

type cacheEntry struct {
	quote    model.Quote
	insertAt time.Time
}

// Cache is a mutex-guarded TTL cache of recently fetched quotes, keyed by
// upper-cased symbol. Entries past their TTL are treated as absent and
// evicted lazily on access. The cache is advisory only — the persisted
// quote store remains the system of record.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewCache creates a cache with the given TTL. A non-positive TTL falls
// back to DefaultTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached quote for a symbol if it is still within its TTL.
func (c *Cache) Get(symbol string) (model.Quote, bool) {
	key := strings.ToUpper(symbol)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return model.Quote{}, false
	}
	if c.now().Sub(e.insertAt) >= c.ttl {
		delete(c.entries, key)
		return model.Quote{}, false
	}
	return e.quote, true
}

// Put stores a quote, restarting its TTL from now.
func (c *Cache) Put(q model.Quote) {
	key := strings.ToUpper(q.Symbol)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{quote: q, insertAt: c.now()}
}

// Remove drops a symbol's entry, if present.
func (c *Cache) Remove(symbol string) {
	key := strings.ToUpper(symbol)

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}
