// Package catalog holds the instrument listing of every registered provider.
// It is filled once at startup, off the caller's path, and read-only afterwards.
package catalog

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pricewidget/internal/provider"
)

type Catalog struct {
	mu         sync.RWMutex
	byProvider map[string][]provider.AssetRef
	ready      chan struct{}
}

// New builds a complete catalog from explicit listings.
func New(listings map[string][]provider.AssetRef) *Catalog {
	c := &Catalog{
		byProvider: make(map[string][]provider.AssetRef, len(listings)),
		ready:      make(chan struct{}),
	}
	for id, l := range listings {
		c.byProvider[id] = append([]provider.AssetRef(nil), l...)
	}
	close(c.ready)
	return c
}

// Start lists instruments from every provider in the background and returns
// at once. Each listing becomes visible as soon as it arrives; Ready is
// closed when all of them are in.
// A failed or empty listing falls back to the provider's default asset, and
// timeout bounds each provider separately.
func Start(ctx context.Context, reg *provider.Registry, timeout time.Duration) *Catalog {
	c := &Catalog{
		byProvider: make(map[string][]provider.AssetRef, reg.Len()),
		ready:      make(chan struct{}),
	}
	go func() {
		defer close(c.ready)
		start := time.Now()
		g, gctx := errgroup.WithContext(ctx)
		for _, p := range reg.All() {
			g.Go(func() error {
				list := listOne(gctx, p, timeout)
				c.mu.Lock()
				c.byProvider[p.ID()] = list
				c.mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
		log.Printf("[INFO] catalog: ready after %s", time.Since(start).Round(time.Millisecond))
	}()
	return c
}

// Populate is Start followed by waiting for every listing. It never fails.
func Populate(ctx context.Context, reg *provider.Registry, timeout time.Duration) *Catalog {
	c := Start(ctx, reg, timeout)
	<-c.ready
	return c
}

// Ready is closed once every provider's listing has been stored.
func (c *Catalog) Ready() <-chan struct{} {
	return c.ready
}

// IsReady reports whether population has finished.
func (c *Catalog) IsReady() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

func listOne(ctx context.Context, p provider.Provider, timeout time.Duration) []provider.AssetRef {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	list, err := p.ListInstruments(ctx)
	if err != nil {
		log.Printf("[WARN] catalog: %s listing failed, using default asset: %v", p.ID(), err)
		return []provider.AssetRef{p.DefaultAsset()}
	}
	if len(list) == 0 {
		log.Printf("[WARN] catalog: %s returned no instruments, using default asset", p.ID())
		return []provider.AssetRef{p.DefaultAsset()}
	}
	log.Printf("[INFO] catalog: %s listed %d instruments in %s", p.ID(), len(list), time.Since(start).Round(time.Millisecond))
	return list
}

// Instruments returns a copy of the provider's listing, empty until it has arrived.
func (c *Catalog) Instruments(providerID string) []provider.AssetRef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]provider.AssetRef(nil), c.byProvider[providerID]...)
}

// Lookup returns the first instrument whose symbol equals symbol, case-insensitively.
func (c *Catalog) Lookup(providerID, symbol string) (provider.AssetRef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.byProvider[providerID] {
		if strings.EqualFold(a.Symbol, symbol) {
			return a, true
		}
	}
	return provider.AssetRef{}, false
}
