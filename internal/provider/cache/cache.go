package cache

import (
	"context"
	"sync"
	"time"

	"pricewidget/internal/provider"
)

// DefaultMaxItems caps the cache when MaxItems is not set.
const DefaultMaxItems = 256

type entry struct {
	expiresAt time.Time
	quote     provider.Quote
}

// Provider caches successful quotes per asset for a TTL, so a burst of
// forced refreshes costs one upstream request. Errors are never cached.
type Provider struct {
	provider.Provider
	TTL      time.Duration
	MaxItems int

	mu    sync.RWMutex
	items map[string]entry // key: asset id
}

func Wrap(p provider.Provider, ttl time.Duration) provider.Provider {
	if ttl <= 0 {
		return p
	}
	return &Provider{Provider: p, TTL: ttl, MaxItems: DefaultMaxItems}
}

func (c *Provider) Fetch(ctx context.Context, asset provider.AssetRef) (provider.Quote, error) {
	if c.TTL <= 0 {
		return c.Provider.Fetch(ctx, asset)
	}

	now := time.Now()
	c.mu.RLock()
	e, ok := c.items[asset.AssetID]
	c.mu.RUnlock()
	if ok && now.Before(e.expiresAt) {
		return e.quote, nil
	}

	q, err := c.Provider.Fetch(ctx, asset)
	if err != nil {
		return q, err
	}

	c.mu.Lock()
	if c.items == nil {
		c.items = make(map[string]entry)
	}
	c.items[asset.AssetID] = entry{expiresAt: now.Add(c.TTL), quote: q}
	c.evict(now)
	c.mu.Unlock()
	return q, nil
}

// evict removes expired entries first, then arbitrary ones, until under MaxItems. Caller holds mu.
func (c *Provider) evict(now time.Time) {
	limit := c.MaxItems
	if limit <= 0 {
		limit = DefaultMaxItems
	}
	if len(c.items) <= limit {
		return
	}
	for k, v := range c.items {
		if now.After(v.expiresAt) {
			delete(c.items, k)
		}
	}
	for k := range c.items {
		if len(c.items) <= limit {
			break
		}
		delete(c.items, k)
	}
}

func (c *Provider) Canonical(symbol string) (provider.AssetRef, bool) {
	if cz, ok := c.Provider.(provider.Canonicalizer); ok {
		return cz.Canonical(symbol)
	}
	return provider.AssetRef{}, false
}
