package renderer

import (
	"bytes"
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/a-h/templ"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ComponentCache holds rendered component markup, bounded by entry count
// and age. Least recently used entries go first once it is full.
type ComponentCache struct {
	entries *expirable.LRU[string, string]
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewComponentCache creates a cache of at most max entries, each living
// at most maxAge.
func NewComponentCache(max int, maxAge time.Duration) *ComponentCache {
	if max <= 0 {
		max = 1000
	}
	if maxAge <= 0 {
		maxAge = 15 * time.Minute
	}

	return &ComponentCache{
		entries: expirable.NewLRU[string, string](max, nil, maxAge),
	}
}

// Len returns the number of cached components.
func (c *ComponentCache) Len() int {
	return c.entries.Len()
}

// Hits and Misses report lookups since creation.
func (c *ComponentCache) Hits() int64   { return c.hits.Load() }
func (c *ComponentCache) Misses() int64 { return c.misses.Load() }

type cacheKey struct{}

// WithCache makes c available to Cached components rendered under ctx.
func WithCache(ctx context.Context, c *ComponentCache) context.Context {
	return context.WithValue(ctx, cacheKey{}, c)
}

func cacheFrom(ctx context.Context) *ComponentCache {
	c, _ := ctx.Value(cacheKey{}).(*ComponentCache)
	return c
}

// Cached wraps component so its output is stored under key in the cache
// found on the render context. Without a cache it renders normally. Only
// successful renders are stored.
func Cached(key string, component templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		cache := cacheFrom(ctx)
		if cache == nil {
			return component.Render(ctx, w)
		}

		if html, ok := cache.entries.Get(key); ok {
			cache.hits.Add(1)
			_, err := io.WriteString(w, html)
			return err
		}
		cache.misses.Add(1)

		var buf bytes.Buffer
		if err := component.Render(ctx, &buf); err != nil {
			return err
		}
		cache.entries.Add(key, buf.String())

		_, err := w.Write(buf.Bytes())
		return err
	})
}
