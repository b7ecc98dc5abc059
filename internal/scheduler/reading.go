package scheduler

import (
	"time"

	"pricewidget/internal/provider"
)

// ErrorInfo describes the last failed fetch and the selection it was made for.
type ErrorInfo struct {
	ProviderID string    `json:"provider_id"`
	AssetID    string    `json:"asset_id"`
	Message    string    `json:"message"`
	At         time.Time `json:"at"`
}

// For reports whether e was raised fetching assetID from providerID.
func (e *ErrorInfo) For(providerID, assetID string) bool {
	return e != nil && e.ProviderID == providerID && e.AssetID == assetID
}

// Reading is the scheduler's view of the current price.
// A failed fetch keeps LastQuote and sets LastError.
type Reading struct {
	LastQuote   *provider.Quote `json:"last_quote,omitempty"`
	LastError   *ErrorInfo      `json:"last_error,omitempty"`
	LastFetchAt time.Time       `json:"last_fetch_at"`
}

// clone returns a copy that shares no pointers with r.
func (r Reading) clone() Reading {
	out := Reading{LastFetchAt: r.LastFetchAt}
	if r.LastQuote != nil {
		q := *r.LastQuote
		out.LastQuote = &q
	}
	if r.LastError != nil {
		e := *r.LastError
		out.LastError = &e
	}
	return out
}
