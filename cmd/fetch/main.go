package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pricewidget/internal/aggregate"
	"pricewidget/internal/app"
	"pricewidget/internal/catalog"
	"pricewidget/internal/config"
	"pricewidget/internal/httpx"
	"pricewidget/internal/presenter"
	"pricewidget/internal/provider"
	"pricewidget/internal/scheduler"
)

type row struct {
	Provider string          `json:"provider"`
	Symbol   string          `json:"symbol"`
	Price    string          `json:"price,omitempty"`
	Change   string          `json:"change,omitempty"`
	Quote    *provider.Quote `json:"quote,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func main() {
	var (
		symbolsCSV string
		only       string
		timeout    int
		configPath string
	)
	flag.StringVar(&symbolsCSV, "symbols", getenv("SYMBOLS", "btc"), "comma-separated tickers, e.g. btc,eth")
	flag.StringVar(&only, "provider", "", "limit to one provider id")
	flag.IntVar(&timeout, "timeout", 15, "overall timeout seconds")
	flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.json or config.yaml (optional)")
	flag.Parse()

	cfg, err := config.Load(configPath, ".env")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	symbols := splitCSV(symbolsCSV)
	if len(symbols) == 0 {
		log.Fatal("no symbols provided")
	}

	reg, err := provider.NewRegistry(app.BuildProviders(cfg, httpx.New(cfg.HTTPTimeout()))...)
	if err != nil {
		log.Fatalf("providers: %v", err)
	}
	providers := reg.All()
	if only != "" {
		p, ok := reg.Get(only)
		if !ok {
			log.Fatalf("provider %q not enabled; have %v", only, reg.IDs())
		}
		providers = []provider.Provider{p}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	var (
		mu     sync.Mutex
		rows   []row
		quotes []provider.Quote
		cat    *catalog.Catalog
		once   sync.Once
	)
	lookup := func(p provider.Provider, sym string) (provider.AssetRef, bool) {
		if c, ok := p.(provider.Canonicalizer); ok {
			if a, ok := c.Canonical(sym); ok {
				return a, true
			}
		}
		// only list instruments when a ticker is not in a canonical table
		once.Do(func() { cat = catalog.Populate(ctx, reg, cfg.CatalogTimeout()) })
		return cat.Lookup(p.ID(), sym)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range providers {
		for _, sym := range symbols {
			g.Go(func() error {
				r := row{Provider: p.ID(), Symbol: sym}
				asset, ok := lookup(p, sym)
				if !ok {
					r.Error = "symbol not found"
				} else if q, err := p.Fetch(gctx, asset); err != nil {
					r.Error = err.Error()
				} else {
					dm := presenter.Format(scheduler.Reading{LastQuote: &q}, p, asset)
					r.Price, r.Change, r.Quote = dm.Price, dm.Change, &q
				}
				mu.Lock()
				rows = append(rows, r)
				if r.Quote != nil {
					quotes = append(quotes, *r.Quote)
				}
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	failed := 0
	for _, r := range rows {
		if r.Error != "" {
			failed++
			log.Printf("%s %s error: %s", r.Provider, r.Symbol, r.Error)
		}
	}
	// tickers that resolve to the same instrument collapse to one entry
	b, _ := json.MarshalIndent(struct {
		Rows   []row              `json:"rows"`
		Latest []aggregate.Latest `json:"latest"`
	}{Rows: rows, Latest: aggregate.LatestByAsset(quotes)}, "", "  ")
	fmt.Println(string(b))
	if failed == len(rows) {
		os.Exit(1)
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
