package provider

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubProvider struct{ id string }

func (s stubProvider) ID() string              { return s.id }
func (s stubProvider) Name() string            { return s.id }
func (s stubProvider) Currency() string        { return "USD" }
func (s stubProvider) CurrencySymbol() string  { return "$" }
func (s stubProvider) DefaultAsset() AssetRef  { return AssetRef{ProviderID: s.id, AssetID: "x"} }
func (s stubProvider) Fetch(context.Context, AssetRef) (Quote, error) { return Quote{}, nil }
func (s stubProvider) ListInstruments(context.Context) ([]AssetRef, error) { return nil, nil }

func validQuote() Quote {
	return Quote{
		Price:            65000,
		ChangePercent24h: -1.5,
		Currency:         "USD",
		CurrencySymbol:   "$",
		Asset:            AssetRef{ProviderID: "p", AssetID: "bitcoin", Symbol: "btc"},
		FetchedAt:        time.Unix(1700000000, 0),
	}
}

func TestQuote_Validate(t *testing.T) {
	require.NoError(t, validQuote().Validate())

	cases := map[string]func(*Quote){
		"negative price": func(q *Quote) { q.Price = -1 },
		"nan price":      func(q *Quote) { q.Price = math.NaN() },
		"inf price":      func(q *Quote) { q.Price = math.Inf(1) },
		"nan change":     func(q *Quote) { q.ChangePercent24h = math.NaN() },
		"no currency":    func(q *Quote) { q.Currency = "" },
		"no asset":       func(q *Quote) { q.Asset = AssetRef{} },
		"no timestamp":   func(q *Quote) { q.FetchedAt = time.Time{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			q := validQuote()
			mutate(&q)
			require.Error(t, q.Validate())
		})
	}
}

func TestQuote_ZeroPriceIsValid(t *testing.T) {
	q := validQuote()
	q.Price = 0
	require.NoError(t, q.Validate())
}

func TestFetchError_Kinds(t *testing.T) {
	asset := AssetRef{ProviderID: "coindcx", AssetID: "BTCINR"}
	cause := errors.New("boom")

	err := TransportError("coindcx", asset, cause)
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrDataShape)
	require.Equal(t, "coindcx: fetch BTCINR failed: boom", err.Error())

	err = DataShapeError("coindcx", asset, "%s market not found", "BTCINR")
	require.ErrorIs(t, err, ErrDataShape)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, "BTCINR", fe.Asset)
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(stubProvider{"coingecko"}, stubProvider{"coindcx"})
	require.NoError(t, err)

	require.Equal(t, "coingecko", r.Default().ID())
	require.True(t, r.Has("coindcx"))
	require.False(t, r.Has("kraken"))
	require.Equal(t, []string{"coindcx", "coingecko"}, r.IDs())
	require.Len(t, r.All(), 2)
	require.Equal(t, "coingecko", r.All()[0].ID())

	require.Error(t, r.Register(stubProvider{"coindcx"}))
	require.Error(t, r.Register(stubProvider{""}))
}

func TestRegistry_Empty(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	require.Nil(t, r.Default())
	require.Zero(t, r.Len())
}

func TestAssetRef_Same(t *testing.T) {
	a := AssetRef{ProviderID: "coingecko", AssetID: "bitcoin", Symbol: "btc", Name: "Bitcoin"}
	b := AssetRef{ProviderID: "coingecko", AssetID: "bitcoin"}
	require.True(t, a.Same(b))
	require.False(t, a.Same(AssetRef{ProviderID: "coindcx", AssetID: "bitcoin"}))
	require.Equal(t, "coingecko:bitcoin", a.String())
}
