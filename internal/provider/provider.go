package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// AssetRef identifies a tracked instrument within one provider's namespace.
type AssetRef struct {
	ProviderID string `json:"provider_id" yaml:"provider_id"`
	AssetID    string `json:"asset_id" yaml:"asset_id"`
	Symbol     string `json:"symbol" yaml:"symbol"`
	Name       string `json:"name" yaml:"name"`
}

func (a AssetRef) IsZero() bool { return a.AssetID == "" }

// Same reports whether both refs point at the same instrument of the same provider.
func (a AssetRef) Same(b AssetRef) bool {
	return a.ProviderID == b.ProviderID && a.AssetID == b.AssetID
}

func (a AssetRef) String() string {
	if a.ProviderID == "" {
		return a.AssetID
	}
	return a.ProviderID + ":" + a.AssetID
}

// Quote is the normalized shape returned by all providers.
type Quote struct {
	Price            float64   `json:"price"`
	ChangePercent24h float64   `json:"change_percent_24h"`
	Currency         string    `json:"currency"`
	CurrencySymbol   string    `json:"currency_symbol"`
	Asset            AssetRef  `json:"asset"`
	FetchedAt        time.Time `json:"fetched_at"`
}

// Validate rejects quotes a provider must never hand out.
func (q Quote) Validate() error {
	if math.IsNaN(q.Price) || math.IsInf(q.Price, 0) || q.Price < 0 {
		return fmt.Errorf("invalid price %v", q.Price)
	}
	if math.IsNaN(q.ChangePercent24h) || math.IsInf(q.ChangePercent24h, 0) {
		return fmt.Errorf("invalid 24h change %v", q.ChangePercent24h)
	}
	if q.Currency == "" || q.CurrencySymbol == "" {
		return errors.New("missing currency")
	}
	if q.Asset.IsZero() {
		return errors.New("missing asset")
	}
	if q.FetchedAt.IsZero() {
		return errors.New("missing fetch time")
	}
	return nil
}

// Provider is a single price source.
// Implementations are stateless with respect to the asset being queried:
// the asset is supplied on every call.
//
//go:generate mockgen -destination=mock_provider/mock_provider.go -package=mock_provider -source=provider.go
type Provider interface {
	ID() string
	Name() string
	Currency() string
	CurrencySymbol() string
	DefaultAsset() AssetRef
	Fetch(ctx context.Context, asset AssetRef) (Quote, error)
	// ListInstruments is best-effort and may return a partial listing.
	ListInstruments(ctx context.Context) ([]AssetRef, error)
}

// Canonicalizer is implemented by providers that ship a built-in
// ticker -> instrument table for common symbols.
type Canonicalizer interface {
	Canonical(symbol string) (AssetRef, bool)
}
