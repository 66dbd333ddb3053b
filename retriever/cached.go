package retriever

import (
	"context"
	"time"

	"github.com/higress-group/expertbot/cache"
	"github.com/higress-group/expertbot/metrics"
)

// Cached memoizes successful searches of another client. Failures are not cached.
type Cached struct {
	Next  Client
	Cache cache.Cache[[]Document]
	TTL   time.Duration
}

// NewCached wraps next with an LRU of the given capacity and entry lifetime.
func NewCached(next Client, capacity int, ttl time.Duration) *Cached {
	return &Cached{Next: next, Cache: cache.NewLRU[[]Document](capacity, ttl), TTL: ttl}
}

func (c *Cached) Type() string { return c.Next.Type() }

func (c *Cached) key(req Request) string {
	return c.Next.Type() + "\x00" + req.Alias + "\x00" + req.Query
}

func (c *Cached) Search(ctx context.Context, req Request) ([]Document, error) {
	k := c.key(req)
	if docs, ok := c.Cache.Get(k); ok {
		metrics.IncCacheLookup(c.Type(), true)
		return docs, nil
	}
	metrics.IncCacheLookup(c.Type(), false)
	docs, err := c.Next.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	c.Cache.Set(k, docs, c.TTL)
	return docs, nil
}
