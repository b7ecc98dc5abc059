package aggregate

import (
	"sort"
	"sync"
	"time"

	"pricewidget/internal/provider"
)

// Key identifies one instrument on one provider.
type Key struct {
	ProviderID string
	AssetID    string
}

// Latest is the newest known quote for a Key.
type Latest struct {
	Provider       string    `json:"provider"`
	AssetID        string    `json:"asset_id"`
	Symbol         string    `json:"symbol"`
	Name           string    `json:"name"`
	Currency       string    `json:"currency"`
	CurrencySymbol string    `json:"currency_symbol"`
	Price          float64   `json:"price"`
	Change24h      float64   `json:"change_24h"`
	FetchedAt      time.Time `json:"fetched_at"`
}

func latestOf(q provider.Quote, ts time.Time) Latest {
	return Latest{
		Provider:       q.Asset.ProviderID,
		AssetID:        q.Asset.AssetID,
		Symbol:         q.Asset.Symbol,
		Name:           q.Asset.Name,
		Currency:       q.Currency,
		CurrencySymbol: q.CurrencySymbol,
		Price:          q.Price,
		Change24h:      q.ChangePercent24h,
		FetchedAt:      ts,
	}
}

// LatestByAsset collapses quotes by (provider, asset) keeping the newest.
// For equal timestamps, later input wins. Zero timestamps are replaced with time.Now().UTC().
func LatestByAsset(quotes []provider.Quote) []Latest {
	now := time.Now().UTC()
	latest := make(map[Key]Latest, len(quotes))
	for _, q := range quotes {
		merge(latest, q, now)
	}
	return sorted(latest)
}

// merge stores q in m unless m holds a newer quote for the same instrument.
func merge(m map[Key]Latest, q provider.Quote, now time.Time) {
	ts := q.FetchedAt
	if ts.IsZero() {
		ts = now
	}
	key := Key{ProviderID: q.Asset.ProviderID, AssetID: q.Asset.AssetID}
	if cur, ok := m[key]; ok && ts.Before(cur.FetchedAt) {
		return
	}
	m[key] = latestOf(q, ts)
}

func sorted(m map[Key]Latest) []Latest {
	out := make([]Latest, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// Book remembers the newest quote of every instrument seen this session,
// so a surface can show recently viewed prices after a switch.
type Book struct {
	mu     sync.RWMutex
	latest map[Key]Latest
}

func NewBook() *Book {
	return &Book{latest: make(map[Key]Latest)}
}

// Add records q unless the book already holds a newer quote for the same instrument.
func (b *Book) Add(q provider.Quote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	merge(b.latest, q, time.Now().UTC())
}

// Latest returns the book sorted by provider, then symbol.
func (b *Book) Latest() []Latest {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sorted(b.latest)
}
