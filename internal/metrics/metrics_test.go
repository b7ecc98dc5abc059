package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveFetch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveFetch("coingecko", ResultOK, 120*time.Millisecond)
	m.ObserveFetch("coingecko", ResultOK, 80*time.Millisecond)
	m.ObserveFetch("coingecko", ResultTransport, time.Second)

	require.Equal(t, 2.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues("coingecko", ResultOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues("coingecko", ResultTransport)))
	require.Equal(t, 1, testutil.CollectAndCount(m.FetchDuration))
}

func TestObserveQuote(t *testing.T) {
	m := New(nil)
	m.ObserveQuote("coindcx", "BTCINR", 5500000, -1.1)
	require.Equal(t, 5500000.0, testutil.ToFloat64(m.LastPrice.WithLabelValues("coindcx", "BTCINR")))
	require.Equal(t, -1.1, testutil.ToFloat64(m.LastChange.WithLabelValues("coindcx", "BTCINR")))
}

func TestNew_TwiceOnSeparateRegistries(t *testing.T) {
	require.NotPanics(t, func() {
		New(nil)
		New(nil)
	})
}
