// Package microcache keeps whole rendered responses for a short, fixed time.
//
// Entries expire a fixed TTL after they were stored and are evicted LRU once
// the capacity is reached. There is no invalidation API: staleness is
// bounded by the TTL alone. Concurrent misses for the same key are not
// coalesced, each one renders and the last store wins.
package microcache

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultTTL and DefaultSize apply when New is given non-positive values.
const (
	DefaultTTL  = 10 * time.Minute
	DefaultSize = 500
)

// Entry is one captured response.
type Entry struct {
	Status    int
	Header    http.Header
	Body      []byte
	CreatedAt time.Time
}

// Stats is a snapshot of the cache counters.
type Stats struct {
	Hits   int64
	Misses int64
	Sets   int64
	Size   int
}

// Cache is a TTL-bounded LRU of responses keyed by request URL.
type Cache struct {
	entries *expirable.LRU[string, *Entry]
	ttl     time.Duration

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

// New creates a cache holding at most size entries for ttl each.
func New(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Cache{
		entries: expirable.NewLRU[string, *Entry](size, nil, ttl),
		ttl:     ttl,
	}
}

// Get returns the live entry for key.
func (c *Cache) Get(key string) (*Entry, bool) {
	entry, ok := c.entries.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)

	return entry, true
}

// Set stores entry under key. The TTL starts now.
func (c *Cache) Set(key string, entry *Entry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	c.entries.Add(key, entry)
	c.sets.Add(1)
}

// TTL returns the fixed entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Sets:   c.sets.Load(),
		Size:   c.entries.Len(),
	}
}
