package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch results.
const (
	ResultOK        = "ok"
	ResultTransport = "transport_error"
	ResultDataShape = "data_shape_error"
)

// Metrics holds the scheduler's prometheus collectors.
type Metrics struct {
	FetchTotal       *prometheus.CounterVec
	FetchDuration    *prometheus.HistogramVec
	SkippedTicks     prometheus.Counter
	DiscardedResults *prometheus.CounterVec
	LastPrice        *prometheus.GaugeVec
	LastChange       *prometheus.GaugeVec
	ProviderSwitches *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg uses a private registry,
// so tests can build as many instances as they like.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		FetchTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewidget_fetch_total",
				Help: "Quote fetches by provider and result",
			},
			[]string{"provider", "result"},
		),
		FetchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricewidget_fetch_duration_seconds",
				Help:    "Quote fetch latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		SkippedTicks: f.NewCounter(
			prometheus.CounterOpts{
				Name: "pricewidget_ticks_skipped_total",
				Help: "Unforced ticks dropped by the rate gate",
			},
		),
		DiscardedResults: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewidget_results_discarded_total",
				Help: "Fetch results that arrived after the selection changed",
			},
			[]string{"provider"},
		),
		LastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pricewidget_last_price",
				Help: "Last fetched price in the provider's currency",
			},
			[]string{"provider", "asset"},
		),
		LastChange: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pricewidget_last_change_percent_24h",
				Help: "Last fetched 24h change in percent",
			},
			[]string{"provider", "asset"},
		),
		ProviderSwitches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewidget_provider_switches_total",
				Help: "Provider switches by target provider",
			},
			[]string{"provider"},
		),
	}
}

// ObserveFetch records one finished fetch.
func (m *Metrics) ObserveFetch(providerID, result string, took time.Duration) {
	m.FetchTotal.WithLabelValues(providerID, result).Inc()
	m.FetchDuration.WithLabelValues(providerID).Observe(took.Seconds())
}

func (m *Metrics) ObserveQuote(providerID, assetID string, price, change float64) {
	m.LastPrice.WithLabelValues(providerID, assetID).Set(price)
	m.LastChange.WithLabelValues(providerID, assetID).Set(change)
}
