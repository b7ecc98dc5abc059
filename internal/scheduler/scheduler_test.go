package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"pricewidget/internal/metrics"
	"pricewidget/internal/provider"
	"pricewidget/internal/provider/mock_provider"
	"pricewidget/internal/selection"
	"pricewidget/internal/store"
)

var (
	btcUSD = provider.AssetRef{ProviderID: "gecko", AssetID: "bitcoin", Symbol: "btc", Name: "Bitcoin"}
	ethUSD = provider.AssetRef{ProviderID: "gecko", AssetID: "ethereum", Symbol: "eth", Name: "Ethereum"}
	btcINR = provider.AssetRef{ProviderID: "dcx", AssetID: "BTCINR", Symbol: "btc", Name: "Bitcoin"}
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func mockProvider(ctrl *gomock.Controller, id string, def provider.AssetRef) *mock_provider.MockProvider {
	p := mock_provider.NewMockProvider(ctrl)
	p.EXPECT().ID().Return(id).AnyTimes()
	p.EXPECT().DefaultAsset().Return(def).AnyTimes()
	return p
}

func quote(asset provider.AssetRef, price, change float64) provider.Quote {
	return provider.Quote{
		Price:            price,
		ChangePercent24h: change,
		Currency:         "USD",
		CurrencySymbol:   "$",
		Asset:            asset,
		FetchedAt:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

type fixture struct {
	s     *Scheduler
	sel   *selection.State
	clock *fakeClock
	m     *metrics.Metrics
	gecko *mock_provider.MockProvider
	dcx   *mock_provider.MockProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	gecko := mockProvider(ctrl, "gecko", btcUSD)
	dcx := mockProvider(ctrl, "dcx", btcINR)
	reg, err := provider.NewRegistry(gecko, dcx)
	require.NoError(t, err)
	sel, err := selection.Load(store.NewMemory(), reg, nil)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := metrics.New(nil)
	s := New(sel, WithClock(clock.Now), WithMetrics(m))
	return &fixture{s: s, sel: sel, clock: clock, m: m, gecko: gecko, dcx: dcx}
}

// drain runs the next queued command, normally a fetch result.
func drain(t *testing.T, s *Scheduler) {
	t.Helper()
	select {
	case cmd := <-s.cmds:
		cmd(s)
	case <-time.After(2 * time.Second):
		t.Fatal("no command queued")
	}
}

func TestTick_UnforcedWithinIntervalIsNoop(t *testing.T) {
	f := newFixture(t)
	f.gecko.EXPECT().Fetch(gomock.Any(), btcUSD).Return(quote(btcUSD, 65000, 2.35), nil).Times(1)

	f.s.tick(true)
	drain(t, f.s)
	first := f.s.Snapshot().LastFetchAt

	f.clock.Advance(30 * time.Second)
	f.s.tick(false)

	require.Equal(t, first, f.s.Snapshot().LastFetchAt)
	require.Empty(t, f.s.cmds)
	require.Equal(t, 1.0, testutil.ToFloat64(f.m.SkippedTicks))
}

func TestTick_ForcedIgnoresInterval(t *testing.T) {
	f := newFixture(t)
	f.gecko.EXPECT().Fetch(gomock.Any(), btcUSD).Return(quote(btcUSD, 65000, 2.35), nil).Times(2)

	f.s.tick(true)
	drain(t, f.s)

	f.clock.Advance(10 * time.Second)
	f.s.tick(true)
	drain(t, f.s)

	require.Equal(t, f.clock.Now(), f.s.Snapshot().LastFetchAt)
	require.Zero(t, testutil.ToFloat64(f.m.SkippedTicks))
}

func TestTick_UnforcedAfterInterval(t *testing.T) {
	f := newFixture(t)
	f.gecko.EXPECT().Fetch(gomock.Any(), btcUSD).Return(quote(btcUSD, 65000, 2.35), nil)
	f.gecko.EXPECT().Fetch(gomock.Any(), btcUSD).Return(quote(btcUSD, 66000, 3.1), nil)

	f.s.tick(false)
	drain(t, f.s)

	f.clock.Advance(DefaultInterval)
	f.s.tick(false)
	drain(t, f.s)

	r := f.s.Snapshot()
	require.Equal(t, 66000.0, r.LastQuote.Price)
	require.Equal(t, f.clock.Now(), r.LastFetchAt)
}

func TestApply_FailureKeepsLastQuote(t *testing.T) {
	f := newFixture(t)
	good := quote(btcUSD, 65000, 2.35)
	f.gecko.EXPECT().Fetch(gomock.Any(), btcUSD).Return(good, nil)
	f.gecko.EXPECT().Fetch(gomock.Any(), btcUSD).
		Return(provider.Quote{}, provider.DataShapeError("gecko", btcUSD, "bitcoin missing from payload"))

	f.s.tick(true)
	drain(t, f.s)

	f.clock.Advance(DefaultInterval)
	failedAt := f.clock.Now()
	f.s.tick(false)
	drain(t, f.s)

	r := f.s.Snapshot()
	require.NotNil(t, r.LastQuote)
	require.Equal(t, good, *r.LastQuote)
	require.NotNil(t, r.LastError)
	require.Contains(t, r.LastError.Message, "bitcoin missing from payload")
	require.Equal(t, failedAt, r.LastFetchAt)
	require.Equal(t, 1.0, testutil.ToFloat64(f.m.FetchTotal.WithLabelValues("gecko", metrics.ResultDataShape)))

	// the failed attempt still counts against the rate window
	f.clock.Advance(30 * time.Second)
	f.s.tick(false)
	require.Empty(t, f.s.cmds)
}

func TestApply_SuccessClearsError(t *testing.T) {
	f := newFixture(t)
	f.gecko.EXPECT().Fetch(gomock.Any(), btcUSD).
		Return(provider.Quote{}, provider.TransportError("gecko", btcUSD, context.DeadlineExceeded))
	f.gecko.EXPECT().Fetch(gomock.Any(), btcUSD).Return(quote(btcUSD, 65000, 2.35), nil)

	f.s.tick(true)
	drain(t, f.s)
	r := f.s.Snapshot()
	require.Nil(t, r.LastQuote)
	require.NotNil(t, r.LastError)

	f.s.tick(true)
	drain(t, f.s)
	r = f.s.Snapshot()
	require.NotNil(t, r.LastQuote)
	require.Nil(t, r.LastError)
}

func TestApply_DiscardsResultForOldSelection(t *testing.T) {
	f := newFixture(t)
	f.gecko.EXPECT().Fetch(gomock.Any(), btcUSD).Return(quote(btcUSD, 65000, 2.35), nil)

	f.s.tick(true)
	// selection moves on before the result is applied
	require.NoError(t, f.sel.SetAsset("gecko", ethUSD))
	drain(t, f.s)

	require.Nil(t, f.s.Snapshot().LastQuote)
	require.Equal(t, 1.0, testutil.ToFloat64(f.m.DiscardedResults.WithLabelValues("gecko")))
}

func TestSwitchProvider_DropsPreviousProviderError(t *testing.T) {
	f := newFixture(t)
	f.gecko.EXPECT().Fetch(gomock.Any(), btcUSD).
		Return(provider.Quote{}, provider.TransportError("gecko", btcUSD, context.DeadlineExceeded))
	blocked := make(chan struct{})
	defer close(blocked)
	f.dcx.EXPECT().Fetch(gomock.Any(), btcINR).DoAndReturn(func(ctx context.Context, _ provider.AssetRef) (provider.Quote, error) {
		<-blocked
		return provider.Quote{}, ctx.Err()
	})

	var last Reading
	f.s.render = func(r Reading, _ provider.Provider, _ provider.AssetRef) { last = r }

	f.s.tick(true)
	drain(t, f.s)
	require.True(t, f.s.Snapshot().LastError.For("gecko", "bitcoin"))

	// the dcx fetch stays in flight; the render after the switch must not carry gecko's error
	errc := make(chan error, 1)
	go func() { errc <- f.s.SwitchProvider(t.Context(), "dcx") }()
	drain(t, f.s)
	require.NoError(t, <-errc)

	require.Nil(t, last.LastError)
	require.Nil(t, f.s.Snapshot().LastError)
}

func TestSwitchAsset_KeepsErrorForSameSelection(t *testing.T) {
	f := newFixture(t)
	f.gecko.EXPECT().Fetch(gomock.Any(), btcUSD).
		Return(provider.Quote{}, provider.TransportError("gecko", btcUSD, context.DeadlineExceeded)).Times(2)

	f.s.tick(true)
	drain(t, f.s)

	errc := make(chan error, 1)
	go func() { errc <- f.s.SwitchAsset(t.Context(), "gecko", btcUSD) }()
	drain(t, f.s)
	require.NoError(t, <-errc)
	require.True(t, f.s.Snapshot().LastError.For("gecko", "bitcoin"))
	drain(t, f.s)
}

func TestSnapshot_IsACopy(t *testing.T) {
	f := newFixture(t)
	f.gecko.EXPECT().Fetch(gomock.Any(), btcUSD).Return(quote(btcUSD, 65000, 2.35), nil)
	f.s.tick(true)
	drain(t, f.s)

	r := f.s.Snapshot()
	r.LastQuote.Price = 1
	require.Equal(t, 65000.0, f.s.Snapshot().LastQuote.Price)
}

type rendered struct {
	reading    Reading
	providerID string
	asset      provider.AssetRef
}

func TestRun_SwitchesAndRenders(t *testing.T) {
	ctrl := gomock.NewController(t)
	gecko := mockProvider(ctrl, "gecko", btcUSD)
	dcx := mockProvider(ctrl, "dcx", btcINR)
	reg, err := provider.NewRegistry(gecko, dcx)
	require.NoError(t, err)
	sel, err := selection.Load(store.NewMemory(), reg, nil)
	require.NoError(t, err)

	gecko.EXPECT().Fetch(gomock.Any(), btcUSD).Return(quote(btcUSD, 65000, 2.35), nil)
	inr := quote(btcINR, 5500000, -1.1)
	inr.Currency, inr.CurrencySymbol = "INR", "₹"
	dcx.EXPECT().Fetch(gomock.Any(), btcINR).Return(inr, nil)

	renders := make(chan rendered, 16)
	var hooked []provider.Quote
	s := New(sel,
		WithInterval(time.Hour),
		WithRenderer(func(r Reading, p provider.Provider, a provider.AssetRef) {
			renders <- rendered{reading: r, providerID: p.ID(), asset: a}
		}),
		WithQuoteHook(func(q provider.Quote) { hooked = append(hooked, q) }),
	)

	ctx, cancel := context.WithCancel(t.Context())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	next := func() rendered {
		t.Helper()
		select {
		case r := <-renders:
			return r
		case <-time.After(2 * time.Second):
			t.Fatal("no render")
			return rendered{}
		}
	}

	// initial placeholder render, then the startup fetch
	require.Nil(t, next().reading.LastQuote)
	r := next()
	require.Equal(t, "gecko", r.providerID)
	require.Equal(t, 65000.0, r.reading.LastQuote.Price)

	require.ErrorIs(t, s.SwitchProvider(t.Context(), "kraken"), selection.ErrUnknownProvider)

	require.NoError(t, s.SwitchProvider(t.Context(), "dcx"))
	r = next()
	require.Equal(t, "dcx", r.providerID)
	require.Equal(t, btcINR, r.asset)
	// the previous provider's quote is still the last known one
	require.Equal(t, "gecko", r.reading.LastQuote.Asset.ProviderID)

	r = next()
	require.Equal(t, 5500000.0, r.reading.LastQuote.Price)

	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
	require.Len(t, hooked, 2)
	require.Error(t, s.Refresh(t.Context()))
}
