package coindcx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"pricewidget/internal/httpx"
	"pricewidget/internal/provider"
)

// ID is the registry key of the CoinDCX provider.
const ID = "coindcx"

const quoteAsset = "INR"

// flightTimeout bounds a shared ticker download, which no single caller's
// context may cancel.
const flightTimeout = 30 * time.Second

// Config controls the CoinDCX provider behavior.
type Config struct {
	URL string // base URL, default https://api.coindcx.com
	// TickerTTL caches the full ticker payload for this long so a quote fetch
	// right after catalog population does not download it twice.
	// Zero or negative disables the cache.
	TickerTTL time.Duration
}

// Provider quotes INR markets from the CoinDCX ticker endpoint.
// The endpoint returns every market at once; Fetch filters it.
type Provider struct {
	cfg    Config
	client httpx.HTTPClient

	mu      sync.RWMutex
	tickers map[string]ticker // key: market, e.g. BTCINR
	until   time.Time

	// coalesce concurrent refreshes of the full payload
	sf singleflight.Group
}

func New(cfg Config, hc httpx.HTTPClient) *Provider {
	if cfg.URL == "" {
		cfg.URL = "https://api.coindcx.com"
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Provider{cfg: cfg, client: hc}
}

var defaultAsset = market("btc", "Bitcoin")

var canonical = map[string]provider.AssetRef{
	"btc":  defaultAsset,
	"eth":  market("eth", "Ethereum"),
	"sol":  market("sol", "Solana"),
	"xrp":  market("xrp", "XRP"),
	"bnb":  market("bnb", "BNB"),
	"doge": market("doge", "Dogecoin"),
	"ada":  market("ada", "Cardano"),
	"ltc":  market("ltc", "Litecoin"),
	"dot":  market("dot", "Polkadot"),
	"usdt": market("usdt", "Tether"),
}

func market(symbol, name string) provider.AssetRef {
	return provider.AssetRef{ProviderID: ID, AssetID: strings.ToUpper(symbol) + quoteAsset, Symbol: symbol, Name: name}
}

func (p *Provider) ID() string             { return ID }
func (p *Provider) Name() string           { return "CoinDCX (INR)" }
func (p *Provider) Currency() string       { return quoteAsset }
func (p *Provider) CurrencySymbol() string { return "₹" }

func (p *Provider) DefaultAsset() provider.AssetRef { return defaultAsset }

func (p *Provider) Canonical(symbol string) (provider.AssetRef, bool) {
	a, ok := canonical[symbol]
	return a, ok
}

// ticker is one element of GET /exchange/ticker. Numeric fields arrive as
// strings or numbers depending on the market, decimal accepts both.
type ticker struct {
	Market    string              `json:"market"`
	LastPrice decimal.NullDecimal `json:"last_price"`
	Change24h decimal.NullDecimal `json:"change_24_hour"`
}

func (p *Provider) Fetch(ctx context.Context, asset provider.AssetRef) (provider.Quote, error) {
	tickers, err := p.loadTickers(ctx)
	if err != nil {
		if isDecode(err) {
			return provider.Quote{}, provider.DataShapeError(ID, asset, "%v", err)
		}
		return provider.Quote{}, provider.TransportError(ID, asset, err)
	}

	t, ok := tickers[asset.AssetID]
	if !ok {
		return provider.Quote{}, provider.DataShapeError(ID, asset, "%s market not found in CoinDCX response", asset.AssetID)
	}
	if !t.LastPrice.Valid {
		return provider.Quote{}, provider.DataShapeError(ID, asset, "%s: missing last_price", asset.AssetID)
	}
	if !t.Change24h.Valid {
		return provider.Quote{}, provider.DataShapeError(ID, asset, "%s: missing change_24_hour", asset.AssetID)
	}

	price, _ := t.LastPrice.Decimal.Float64()
	change, _ := t.Change24h.Decimal.Float64()
	q := provider.Quote{
		Price:            price,
		ChangePercent24h: change,
		Currency:         p.Currency(),
		CurrencySymbol:   p.CurrencySymbol(),
		Asset:            asset,
		FetchedAt:        time.Now().UTC(),
	}
	if err := q.Validate(); err != nil {
		return provider.Quote{}, provider.DataShapeError(ID, asset, "%v", err)
	}
	return q, nil
}

// ListInstruments returns every INR market in the ticker payload.
func (p *Provider) ListInstruments(ctx context.Context) ([]provider.AssetRef, error) {
	tickers, err := p.loadTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: list instruments: %w", ID, err)
	}
	out := make([]provider.AssetRef, 0, len(tickers))
	for m := range tickers {
		base, ok := strings.CutSuffix(m, quoteAsset)
		if !ok || base == "" {
			continue
		}
		sym := strings.ToLower(base)
		if c, ok := canonical[sym]; ok {
			out = append(out, c)
			continue
		}
		out = append(out, provider.AssetRef{ProviderID: ID, AssetID: m, Symbol: sym, Name: base})
	}
	sortAssets(out)
	return out, nil
}

func (p *Provider) loadTickers(ctx context.Context) (map[string]ticker, error) {
	if p.cfg.TickerTTL > 0 {
		p.mu.RLock()
		tickers, until := p.tickers, p.until
		p.mu.RUnlock()
		if tickers != nil && time.Now().Before(until) {
			return tickers, nil
		}
	}

	ch := p.sf.DoChan("ticker", func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
		defer cancel()
		return p.fetchTickers(fctx)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	tickers := res.Val.(map[string]ticker)
	if p.cfg.TickerTTL > 0 {
		p.mu.Lock()
		p.tickers = tickers
		p.until = time.Now().Add(p.cfg.TickerTTL)
		p.mu.Unlock()
	}
	return tickers, nil
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return fmt.Sprintf("decode: %v", e.err) }
func (e *decodeError) Unwrap() error { return e.err }

func isDecode(err error) bool {
	_, ok := err.(*decodeError)
	return ok
}

func (p *Provider) fetchTickers(ctx context.Context) (map[string]ticker, error) {
	u := p.cfg.URL + "/exchange/ticker"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s -> %d", u, resp.StatusCode)
	}
	var list []ticker
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, &decodeError{err}
	}
	out := make(map[string]ticker, len(list))
	for _, t := range list {
		if t.Market == "" {
			continue
		}
		out[t.Market] = t
	}
	return out, nil
}

// sortAssets orders by symbol so catalog scans are stable across restarts.
func sortAssets(a []provider.AssetRef) {
	sort.Slice(a, func(i, j int) bool {
		if a[i].Symbol != a[j].Symbol {
			return a[i].Symbol < a[j].Symbol
		}
		return a[i].AssetID < a[j].AssetID
	})
}
