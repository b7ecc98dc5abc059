// Package presenter turns the scheduler's reading into display strings
// and pushes them to whatever surface is attached.
package presenter

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pricewidget/internal/provider"
	"pricewidget/internal/scheduler"
)

// Placeholder stands in for a price or change that is not known.
const Placeholder = "—"

// DisplayModel is everything a display surface needs to show the reading.
type DisplayModel struct {
	Price          string            `json:"price"`
	Change         string            `json:"change"`
	Label          string            `json:"label"`
	Title          string            `json:"title"`
	ProviderID     string            `json:"provider_id"`
	ProviderName   string            `json:"provider_name"`
	CurrencyCode   string            `json:"currency_code"`
	CurrencySymbol string            `json:"currency_symbol"`
	Asset          provider.AssetRef `json:"asset"`
	IsError        bool              `json:"is_error"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	RawPrice       *float64          `json:"raw_price,omitempty"`
	RawChange      *float64          `json:"raw_change,omitempty"`
	FetchedAt      *time.Time        `json:"fetched_at,omitempty"`
}

// Format renders r against the active provider p and its selected asset.
// A quote or error for any other provider or asset is not shown.
func Format(r scheduler.Reading, p provider.Provider, asset provider.AssetRef) DisplayModel {
	sym := strings.ToUpper(asset.Symbol)
	dm := DisplayModel{
		Price:          Placeholder,
		Change:         Placeholder,
		Label:          fmt.Sprintf("%s (%s/%s)", displayName(asset), sym, p.Currency()),
		ProviderID:     p.ID(),
		ProviderName:   p.Name(),
		CurrencyCode:   p.Currency(),
		CurrencySymbol: p.CurrencySymbol(),
		Asset:          asset,
	}

	if q := r.LastQuote; q != nil && q.Asset.Same(asset) && q.Asset.ProviderID == p.ID() {
		dm.Price = FormatPrice(p.CurrencySymbol(), q.Price)
		dm.Change = FormatChange(q.ChangePercent24h)
		price, change, at := q.Price, q.ChangePercent24h, q.FetchedAt
		dm.RawPrice, dm.RawChange, dm.FetchedAt = &price, &change, &at
	}
	if r.LastError.For(p.ID(), asset.AssetID) {
		dm.IsError = true
		dm.ErrorMessage = r.LastError.Message
	}
	dm.Title = fmt.Sprintf("%s/%s: %s (%s)", sym, p.Currency(), dm.Price, dm.Change)
	return dm
}

func displayName(a provider.AssetRef) string {
	if a.Name != "" {
		return a.Name
	}
	return strings.ToUpper(a.Symbol)
}

// FormatPrice prefixes symbol and groups thousands: 65000 -> "$65,000.00".
func FormatPrice(symbol string, price float64) string {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return Placeholder
	}
	s := decimal.NewFromFloat(price).StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(symbol)
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// FormatChange renders a signed percentage: 2.345 -> "+2.35%", -1.1 -> "-1.10%".
func FormatChange(change float64) string {
	if math.IsNaN(change) || math.IsInf(change, 0) {
		return Placeholder
	}
	s := decimal.NewFromFloat(change).StringFixed(2)
	if s == "-0.00" {
		s = "0.00"
	}
	if !strings.HasPrefix(s, "-") {
		s = "+" + s
	}
	return s + "%"
}
