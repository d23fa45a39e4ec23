package search

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hyperifyio/quoteshelf/internal/catalog"
)

// CachedDetails decorates a provider with an in-memory LRU of Details
// results. Search calls pass straight through. Failures are not cached.
type CachedDetails struct {
	Provider
	cache *lru.Cache[string, catalog.Item]
}

// WithDetailsCache wraps p. A size below 1 returns p unchanged.
func WithDetailsCache(p Provider, size int) Provider {
	if size < 1 {
		return p
	}
	c, err := lru.New[string, catalog.Item](size)
	if err != nil {
		return p
	}
	return &CachedDetails{Provider: p, cache: c}
}

func (c *CachedDetails) Details(ctx context.Context, id string) (catalog.Item, error) {
	if it, ok := c.cache.Get(id); ok {
		return it, nil
	}
	it, err := c.Provider.Details(ctx, id)
	if err != nil {
		return catalog.Item{}, err
	}
	c.cache.Add(id, it)
	return it, nil
}

// Len reports the number of cached records.
func (c *CachedDetails) Len() int { return c.cache.Len() }
