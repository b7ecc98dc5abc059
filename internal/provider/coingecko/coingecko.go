package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pricewidget/internal/provider"
)

var defaultAsset = provider.AssetRef{ProviderID: ID, AssetID: "bitcoin", Symbol: "btc", Name: "Bitcoin"}

// canonical maps common tickers to coin ids. The /coins/list listing holds
// many tokens sharing a ticker, so the well-known ones are pinned here.
var canonical = map[string]provider.AssetRef{
	"btc":  defaultAsset,
	"eth":  {ProviderID: ID, AssetID: "ethereum", Symbol: "eth", Name: "Ethereum"},
	"sol":  {ProviderID: ID, AssetID: "solana", Symbol: "sol", Name: "Solana"},
	"xrp":  {ProviderID: ID, AssetID: "ripple", Symbol: "xrp", Name: "XRP"},
	"bnb":  {ProviderID: ID, AssetID: "binancecoin", Symbol: "bnb", Name: "BNB"},
	"doge": {ProviderID: ID, AssetID: "dogecoin", Symbol: "doge", Name: "Dogecoin"},
	"ada":  {ProviderID: ID, AssetID: "cardano", Symbol: "ada", Name: "Cardano"},
	"ltc":  {ProviderID: ID, AssetID: "litecoin", Symbol: "ltc", Name: "Litecoin"},
	"dot":  {ProviderID: ID, AssetID: "polkadot", Symbol: "dot", Name: "Polkadot"},
	"usdt": {ProviderID: ID, AssetID: "tether", Symbol: "usdt", Name: "Tether"},
}

func (p *Provider) ID() string             { return ID }
func (p *Provider) Name() string           { return "CoinGecko (USD)" }
func (p *Provider) Currency() string       { return "USD" }
func (p *Provider) CurrencySymbol() string { return "$" }

func (p *Provider) DefaultAsset() provider.AssetRef { return defaultAsset }

func (p *Provider) Canonical(symbol string) (provider.AssetRef, bool) {
	a, ok := canonical[symbol]
	return a, ok
}

// simplePrice is one entry of the /simple/price response, e.g.
//
//	{"bitcoin": {"usd": 65000.1, "usd_24h_change": 2.35}}
type simplePrice struct {
	USD       *float64 `json:"usd"`
	Change24h *float64 `json:"usd_24h_change"`
}

func (p *Provider) Fetch(ctx context.Context, asset provider.AssetRef) (provider.Quote, error) {
	query := url.Values{}
	query.Set("ids", asset.AssetID)
	query.Set("vs_currencies", "usd")
	query.Set("include_24hr_change", "true")

	var body map[string]simplePrice
	if err := p.get(ctx, "/simple/price?"+query.Encode(), &body); err != nil {
		return provider.Quote{}, wrap(asset, err)
	}

	data, ok := body[asset.AssetID]
	if !ok {
		return provider.Quote{}, provider.DataShapeError(ID, asset, "coin %q not found in response", asset.AssetID)
	}
	if data.USD == nil {
		return provider.Quote{}, provider.DataShapeError(ID, asset, "missing usd price for %q", asset.AssetID)
	}
	if data.Change24h == nil {
		return provider.Quote{}, provider.DataShapeError(ID, asset, "missing usd_24h_change for %q", asset.AssetID)
	}

	q := provider.Quote{
		Price:            *data.USD,
		ChangePercent24h: *data.Change24h,
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

// coin is one entry of /coins/list.
type coin struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

func (p *Provider) ListInstruments(ctx context.Context) ([]provider.AssetRef, error) {
	var coins []coin
	if err := p.get(ctx, "/coins/list", &coins); err != nil {
		return nil, fmt.Errorf("%s: list instruments: %w", ID, err)
	}
	out := make([]provider.AssetRef, 0, len(coins))
	for _, c := range coins {
		if c.ID == "" || c.Symbol == "" {
			continue
		}
		out = append(out, provider.AssetRef{
			ProviderID: ID,
			AssetID:    c.ID,
			Symbol:     strings.ToLower(c.Symbol),
			Name:       c.Name,
		})
	}
	return out, nil
}

type statusError struct{ code int }

func (e statusError) Error() string { return fmt.Sprintf("unexpected status code: %d", e.code) }

type decodeError struct{ err error }

func (e decodeError) Error() string { return fmt.Sprintf("decoding response: %v", e.err) }
func (e decodeError) Unwrap() error { return e.err }

func (p *Provider) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header = p.header.Clone()

	res, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited: %w", statusError{res.StatusCode})
	default:
		return statusError{res.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(res.Body, 64<<20)).Decode(out); err != nil {
		return decodeError{err}
	}
	return nil
}

func wrap(asset provider.AssetRef, err error) error {
	var de decodeError
	if errors.As(err, &de) {
		return provider.DataShapeError(ID, asset, "%v", err)
	}
	return provider.TransportError(ID, asset, err)
}
