package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pricewidget/internal/httpx"
	"pricewidget/internal/provider"
)

// ID is the registry key of the Binance provider.
const ID = "binance"

const quoteAsset = "USDT"

// errInvalidSymbol is Binance's error code for a symbol it does not list.
const errInvalidSymbol = -1121

type Config struct {
	URL string // default https://api.binance.com
}

// Provider quotes USDT spot pairs from the Binance public market data API.
type Provider struct {
	cfg    Config
	client httpx.HTTPClient
}

func New(cfg Config, hc httpx.HTTPClient) *Provider {
	if cfg.URL == "" {
		cfg.URL = "https://api.binance.com"
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Provider{cfg: cfg, client: hc}
}

var defaultAsset = pair("btc", "Bitcoin")

var canonical = map[string]provider.AssetRef{
	"btc":  defaultAsset,
	"eth":  pair("eth", "Ethereum"),
	"sol":  pair("sol", "Solana"),
	"xrp":  pair("xrp", "XRP"),
	"bnb":  pair("bnb", "BNB"),
	"doge": pair("doge", "Dogecoin"),
	"ada":  pair("ada", "Cardano"),
	"ltc":  pair("ltc", "Litecoin"),
	"dot":  pair("dot", "Polkadot"),
}

func pair(symbol, name string) provider.AssetRef {
	return provider.AssetRef{ProviderID: ID, AssetID: strings.ToUpper(symbol) + quoteAsset, Symbol: symbol, Name: name}
}

func (p *Provider) ID() string             { return ID }
func (p *Provider) Name() string           { return "Binance (USDT)" }
func (p *Provider) Currency() string       { return quoteAsset }
func (p *Provider) CurrencySymbol() string { return "₮" }

func (p *Provider) DefaultAsset() provider.AssetRef { return defaultAsset }

func (p *Provider) Canonical(symbol string) (provider.AssetRef, bool) {
	a, ok := canonical[symbol]
	return a, ok
}

type ticker24h struct {
	Symbol             string              `json:"symbol"`
	LastPrice          decimal.NullDecimal `json:"lastPrice"`
	PriceChangePercent decimal.NullDecimal `json:"priceChangePercent"`
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (p *Provider) Fetch(ctx context.Context, asset provider.AssetRef) (provider.Quote, error) {
	u := fmt.Sprintf("%s/api/v3/ticker/24hr?symbol=%s", p.cfg.URL, url.QueryEscape(asset.AssetID))
	body, status, err := p.get(ctx, u)
	if err != nil {
		return provider.Quote{}, provider.TransportError(ID, asset, err)
	}
	if status != http.StatusOK {
		var ae apiError
		if json.Unmarshal(body, &ae) == nil && ae.Code == errInvalidSymbol {
			return provider.Quote{}, provider.DataShapeError(ID, asset, "%s not listed: %s", asset.AssetID, ae.Msg)
		}
		return provider.Quote{}, provider.TransportError(ID, asset, fmt.Errorf("API error [%s]: %d - %s", asset.AssetID, status, string(body)))
	}

	var t ticker24h
	if err := json.Unmarshal(body, &t); err != nil {
		return provider.Quote{}, provider.DataShapeError(ID, asset, "JSON parse error [%s]: %v", asset.AssetID, err)
	}
	if t.Symbol != asset.AssetID {
		return provider.Quote{}, provider.DataShapeError(ID, asset, "response for %q, want %q", t.Symbol, asset.AssetID)
	}
	if !t.LastPrice.Valid || !t.PriceChangePercent.Valid {
		return provider.Quote{}, provider.DataShapeError(ID, asset, "incomplete ticker for %s", asset.AssetID)
	}

	price, _ := t.LastPrice.Decimal.Float64()
	change, _ := t.PriceChangePercent.Decimal.Float64()
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

type priceTicker struct {
	Symbol string `json:"symbol"`
}

// ListInstruments returns every USDT spot pair.
func (p *Provider) ListInstruments(ctx context.Context) ([]provider.AssetRef, error) {
	body, status, err := p.get(ctx, p.cfg.URL+"/api/v3/ticker/price")
	if err != nil {
		return nil, fmt.Errorf("%s: list instruments: %w", ID, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s: list instruments: status %d", ID, status)
	}
	var list []priceTicker
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("%s: list instruments: decode: %w", ID, err)
	}
	out := make([]provider.AssetRef, 0, len(list))
	for _, t := range list {
		base, ok := strings.CutSuffix(t.Symbol, quoteAsset)
		if !ok || base == "" {
			continue
		}
		sym := strings.ToLower(base)
		if c, ok := canonical[sym]; ok {
			out = append(out, c)
			continue
		}
		out = append(out, provider.AssetRef{ProviderID: ID, AssetID: t.Symbol, Symbol: sym, Name: base})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (p *Provider) get(ctx context.Context, u string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("body read error: %w", err)
	}
	return body, resp.StatusCode, nil
}
