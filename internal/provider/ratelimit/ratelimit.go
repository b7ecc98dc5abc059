package ratelimit

import (
	"context"
	"sync"
	"time"

	"pricewidget/internal/provider"
)

// MinInterval wraps a provider and enforces a minimum time between upstream calls.
// Concurrent calls wait until the interval has elapsed since the last call,
// or return early if the context is canceled.
type MinInterval struct {
	provider.Provider
	Interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func (m *MinInterval) Fetch(ctx context.Context, asset provider.AssetRef) (provider.Quote, error) {
	if err := m.wait(ctx); err != nil {
		return provider.Quote{}, provider.TransportError(m.ID(), asset, err)
	}
	defer m.touch()
	return m.Provider.Fetch(ctx, asset)
}

func (m *MinInterval) ListInstruments(ctx context.Context) ([]provider.AssetRef, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	defer m.touch()
	return m.Provider.ListInstruments(ctx)
}

func (m *MinInterval) Canonical(symbol string) (provider.AssetRef, bool) {
	return canonical(m.Provider, symbol)
}

func (m *MinInterval) wait(ctx context.Context) error {
	if m.Interval <= 0 {
		return nil
	}
	m.mu.Lock()
	wait := time.Until(m.last.Add(m.Interval))
	m.mu.Unlock()
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (m *MinInterval) touch() {
	if m.Interval <= 0 {
		return
	}
	m.mu.Lock()
	m.last = time.Now()
	m.mu.Unlock()
}

func canonical(p provider.Provider, symbol string) (provider.AssetRef, bool) {
	if c, ok := p.(provider.Canonicalizer); ok {
		return c.Canonical(symbol)
	}
	return provider.AssetRef{}, false
}

// Wrap applies the configured gate to p: a token bucket when rpm > 0,
// otherwise a min-interval gate when minInterval > 0, otherwise p unchanged.
func Wrap(p provider.Provider, rpm, burst int, minInterval time.Duration) provider.Provider {
	if rpm > 0 {
		if burst <= 0 {
			burst = 1
		}
		return &TokenBucketProvider{Provider: p, TB: NewTokenBucket(float64(rpm)/60.0, burst)}
	}
	if minInterval > 0 {
		return &MinInterval{Provider: p, Interval: minInterval}
	}
	return p
}
