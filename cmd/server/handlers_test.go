package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pricewidget/internal/aggregate"
	"pricewidget/internal/app"
	"pricewidget/internal/presenter"
	"pricewidget/internal/provider"
	"pricewidget/internal/selection"
)

type fakeWidget struct {
	mu        sync.Mutex
	dm        presenter.DisplayModel
	menu      presenter.Menu
	refreshes int
	providers []string
	assets    []string
}

func (f *fakeWidget) Display() (presenter.DisplayModel, presenter.Menu) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dm, f.menu
}

func (f *fakeWidget) Quotes() []aggregate.Latest {
	return []aggregate.Latest{{Provider: "coingecko", AssetID: "bitcoin", Symbol: "btc", Price: 65000}}
}

func (f *fakeWidget) Instruments(providerID string) (app.CatalogListing, error) {
	if providerID != "coingecko" {
		return app.CatalogListing{}, fmt.Errorf("catalog %q: %w", providerID, selection.ErrUnknownProvider)
	}
	list := []provider.AssetRef{{ProviderID: "coingecko", AssetID: "bitcoin", Symbol: "btc", Name: "Bitcoin"}}
	return app.CatalogListing{Provider: providerID, Ready: true, Count: len(list), Instruments: list}, nil
}

func (f *fakeWidget) SelectionSnapshot() selection.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return selection.Snapshot{
		ProviderID: f.dm.ProviderID,
		Assets:     map[string]provider.AssetRef{"coingecko": {ProviderID: "coingecko", AssetID: "bitcoin", Symbol: "btc"}},
	}
}

func (f *fakeWidget) Refresh(context.Context) error {
	f.mu.Lock()
	f.refreshes++
	f.mu.Unlock()
	return nil
}

func (f *fakeWidget) SwitchProvider(_ context.Context, id string) error {
	if id != "coingecko" && id != "coindcx" {
		return fmt.Errorf("set provider %q: %w", id, selection.ErrUnknownProvider)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers = append(f.providers, id)
	f.dm.ProviderID = id
	return nil
}

func (f *fakeWidget) SwitchAsset(_ context.Context, providerID, raw string) (provider.AssetRef, error) {
	if raw != "eth" {
		return provider.AssetRef{}, &selection.SymbolNotFoundError{Symbol: raw, Provider: "coingecko"}
	}
	f.mu.Lock()
	f.assets = append(f.assets, raw)
	f.mu.Unlock()
	return provider.AssetRef{ProviderID: "coingecko", AssetID: "ethereum", Symbol: "eth", Name: "Ethereum"}, nil
}

func newTestServer(t *testing.T, w widget) *httptest.Server {
	t.Helper()
	h := withJSONHeaders(withGzip(recoverPanic(limitBody(newMux(w, prometheus.NewRegistry(), time.Second), 1024))))
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestDisplay(t *testing.T) {
	w := &fakeWidget{dm: presenter.DisplayModel{Price: "$65,000.00", Change: "+2.35%", Label: "Bitcoin (BTC/USD)"}}
	srv := newTestServer(t, w)

	resp, err := http.Get(srv.URL + "/api/display")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var dm presenter.DisplayModel
	if err := json.NewDecoder(resp.Body).Decode(&dm); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dm.Price != "$65,000.00" || dm.Change != "+2.35%" {
		t.Fatalf("unexpected display: %+v", dm)
	}
}

func TestSwitchProvider(t *testing.T) {
	w := &fakeWidget{}
	srv := newTestServer(t, w)

	if resp := post(t, srv.URL+"/api/provider", `{"id":"coindcx"}`); resp.StatusCode != 200 {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	w.mu.Lock()
	providers := append([]string(nil), w.providers...)
	w.mu.Unlock()
	if len(providers) != 1 || providers[0] != "coindcx" {
		t.Fatalf("switch not forwarded: %v", providers)
	}

	if resp := post(t, srv.URL+"/api/provider", `{"id":"kraken"}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown provider: status=%d", resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/api/provider", `{"id":""}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty id: status=%d", resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/api/provider", `{"name":"x"}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field: status=%d", resp.StatusCode)
	}
}

func TestSwitchAsset(t *testing.T) {
	w := &fakeWidget{}
	srv := newTestServer(t, w)

	resp := post(t, srv.URL+"/api/asset", `{"symbol":"eth"}`)
	if resp.StatusCode != 200 {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var got assetResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Asset.AssetID != "ethereum" {
		t.Fatalf("unexpected asset: %+v", got.Asset)
	}

	resp = post(t, srv.URL+"/api/asset", `{"symbol":"nonexistentcoin"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("not found: status=%d", resp.StatusCode)
	}
	var e errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if e.Error == "" {
		t.Fatal("missing error message")
	}
}

func TestCatalogAndSelection(t *testing.T) {
	w := &fakeWidget{dm: presenter.DisplayModel{ProviderID: "coingecko"}}
	srv := newTestServer(t, w)

	resp, err := http.Get(srv.URL + "/api/catalog/coingecko")
	if err != nil {
		t.Fatalf("get catalog: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("catalog status=%d", resp.StatusCode)
	}
	var l app.CatalogListing
	if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
		t.Fatalf("decode catalog: %v", err)
	}
	if !l.Ready || l.Count != 1 || l.Instruments[0].AssetID != "bitcoin" {
		t.Fatalf("unexpected listing: %+v", l)
	}

	resp2, err := http.Get(srv.URL + "/api/catalog/kraken")
	if err != nil {
		t.Fatalf("get catalog: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown provider: status=%d", resp2.StatusCode)
	}

	resp3, err := http.Get(srv.URL + "/api/selection")
	if err != nil {
		t.Fatalf("get selection: %v", err)
	}
	defer resp3.Body.Close()
	var snap selection.Snapshot
	if err := json.NewDecoder(resp3.Body).Decode(&snap); err != nil {
		t.Fatalf("decode selection: %v", err)
	}
	if snap.ProviderID != "coingecko" || snap.Assets["coingecko"].AssetID != "bitcoin" {
		t.Fatalf("unexpected selection: %+v", snap)
	}
}

func TestRefresh(t *testing.T) {
	w := &fakeWidget{}
	srv := newTestServer(t, w)

	if resp := post(t, srv.URL+"/api/refresh", ``); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	w.mu.Lock()
	n := w.refreshes
	w.mu.Unlock()
	if n != 1 {
		t.Fatalf("refreshes=%d", n)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/refresh", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET refresh: status=%d", resp.StatusCode)
	}
}

func TestGzipAndBodyLimit(t *testing.T) {
	w := &fakeWidget{}
	srv := newTestServer(t, w)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/quotes", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		t.Fatalf("roundtrip: %v", err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Content-Encoding") != "gzip" {
		t.Fatalf("missing gzip encoding: %v", resp.Header)
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	var q quotesResponse
	if err := json.NewDecoder(zr).Decode(&q); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(q.Quotes) != 1 {
		t.Fatalf("quotes=%+v", q.Quotes)
	}

	big := `{"symbol":"` + string(bytes.Repeat([]byte("x"), 4096)) + `"}`
	if resp := post(t, srv.URL+"/api/asset", big); resp.StatusCode != http.StatusBadRequest {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("oversized body: status=%d body=%s", resp.StatusCode, body)
	}
}
