package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pricewidget/internal/aggregate"
	"pricewidget/internal/app"
	"pricewidget/internal/presenter"
	"pricewidget/internal/provider"
	"pricewidget/internal/selection"
)

// widget is the part of app.Coordinator the HTTP surface drives.
type widget interface {
	Display() (presenter.DisplayModel, presenter.Menu)
	Quotes() []aggregate.Latest
	Instruments(providerID string) (app.CatalogListing, error)
	SelectionSnapshot() selection.Snapshot
	Refresh(ctx context.Context) error
	SwitchProvider(ctx context.Context, id string) error
	SwitchAsset(ctx context.Context, providerID, raw string) (provider.AssetRef, error)
}

type errorResponse struct {
	Error string `json:"error"`
}

type providerBody struct {
	ID string `json:"id"`
}

type assetBody struct {
	Symbol   string `json:"symbol"`
	Provider string `json:"provider,omitempty"`
}

type assetResponse struct {
	Asset   provider.AssetRef      `json:"asset"`
	Display presenter.DisplayModel `json:"display"`
}

type quotesResponse struct {
	Quotes []aggregate.Latest `json:"quotes"`
}

func newMux(w widget, g prometheus.Gatherer, timeout time.Duration) *http.ServeMux {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{DisableCompression: true}))

	mux.HandleFunc("GET /api/display", func(rw http.ResponseWriter, r *http.Request) {
		dm, _ := w.Display()
		writeJSON(rw, http.StatusOK, dm)
	})
	mux.HandleFunc("GET /api/menu", func(rw http.ResponseWriter, r *http.Request) {
		_, menu := w.Display()
		writeJSON(rw, http.StatusOK, menu)
	})
	mux.HandleFunc("GET /api/quotes", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, quotesResponse{Quotes: w.Quotes()})
	})
	mux.HandleFunc("GET /api/selection", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, w.SelectionSnapshot())
	})
	mux.HandleFunc("GET /api/catalog/{provider}", func(rw http.ResponseWriter, r *http.Request) {
		l, err := w.Instruments(r.PathValue("provider"))
		if err != nil {
			writeError(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, l)
	})

	mux.HandleFunc("POST /api/refresh", func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := w.Refresh(ctx); err != nil {
			writeError(rw, err)
			return
		}
		rw.WriteHeader(http.StatusAccepted)
		_, _ = rw.Write([]byte(`{"status":"refreshing"}`))
	})

	mux.HandleFunc("POST /api/provider", func(rw http.ResponseWriter, r *http.Request) {
		var b providerBody
		if !decode(rw, r, &b) {
			return
		}
		if strings.TrimSpace(b.ID) == "" {
			writeJSON(rw, http.StatusBadRequest, errorResponse{Error: "id cannot be empty"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := w.SwitchProvider(ctx, b.ID); err != nil {
			writeError(rw, err)
			return
		}
		dm, _ := w.Display()
		writeJSON(rw, http.StatusOK, dm)
	})

	mux.HandleFunc("POST /api/asset", func(rw http.ResponseWriter, r *http.Request) {
		var b assetBody
		if !decode(rw, r, &b) {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		a, err := w.SwitchAsset(ctx, b.Provider, b.Symbol)
		if err != nil {
			writeError(rw, err)
			return
		}
		dm, _ := w.Display()
		writeJSON(rw, http.StatusOK, assetResponse{Asset: a, Display: dm})
	})
	return mux
}

func decode(rw http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(rw, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}

// writeError maps core errors to HTTP statuses.
func writeError(rw http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, selection.ErrSymbolNotFound):
		status = http.StatusNotFound
	case errors.Is(err, selection.ErrUnknownProvider):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	default:
		log.Printf("[ERROR] request: %v", err)
	}
	writeJSON(rw, status, errorResponse{Error: err.Error()})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.WriteHeader(status)
	enc := json.NewEncoder(rw)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		log.Printf("[WARN] encode response: %v", err)
	}
}
