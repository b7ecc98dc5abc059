package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"pricewidget/internal/app"
	"pricewidget/internal/config"
	"pricewidget/internal/httpx"
	"pricewidget/internal/provider"
)

type dump struct {
	Provider    string              `json:"provider"`
	Name        string              `json:"name"`
	Currency    string              `json:"currency"`
	GeneratedAt time.Time           `json:"generated_at"`
	Count       int                 `json:"count"`
	Instruments []provider.AssetRef `json:"instruments"`
}

func main() {
	var (
		id      string
		outPath string
		cfgPath string
		timeout int
	)
	flag.StringVar(&id, "provider", "coingecko", "provider id to list")
	flag.StringVar(&outPath, "out", "", "output JSON file path (default <provider>_instruments.json)")
	flag.StringVar(&cfgPath, "config", "", "path to config.json or config.yaml (optional)")
	flag.IntVar(&timeout, "timeout", 60, "timeout seconds")
	flag.Parse()

	cfg, err := config.Load(cfgPath, ".env")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if outPath == "" {
		outPath = id + "_instruments.json"
	}

	reg, err := provider.NewRegistry(app.BuildProviders(cfg, httpx.New(time.Duration(timeout)*time.Second))...)
	if err != nil {
		log.Fatalf("providers: %v", err)
	}
	p, ok := reg.Get(id)
	if !ok {
		log.Fatalf("provider %q not enabled; have %v", id, reg.IDs())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	start := time.Now()
	list, err := p.ListInstruments(ctx)
	if err != nil {
		log.Fatalf("list %s: %v", id, err)
	}
	log.Printf("%s: %d instruments in %s", id, len(list), time.Since(start).Round(time.Millisecond))

	outFile, err := os.Create(outPath)
	if err != nil {
		log.Fatalf("create %s: %v", outPath, err)
	}
	defer outFile.Close()
	bw := bufio.NewWriterSize(outFile, 1<<20)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dump{
		Provider:    p.ID(),
		Name:        p.Name(),
		Currency:    p.Currency(),
		GeneratedAt: time.Now().UTC(),
		Count:       len(list),
		Instruments: list,
	}); err != nil {
		log.Fatalf("encode: %v", err)
	}
	if err := bw.Flush(); err != nil {
		log.Fatalf("flush: %v", err)
	}
	log.Printf("wrote %s", outPath)
}
