package app

import (
	"log"

	"pricewidget/internal/config"
	"pricewidget/internal/httpx"
	"pricewidget/internal/provider"
	"pricewidget/internal/provider/binance"
	"pricewidget/internal/provider/cache"
	"pricewidget/internal/provider/coindcx"
	"pricewidget/internal/provider/coingecko"
	"pricewidget/internal/provider/ratelimit"
)

// BuildProviders constructs the enabled providers in menu order, each
// wrapped with its request gate and quote cache.
func BuildProviders(cfg config.Config, hc *httpx.Client) []provider.Provider {
	var providers []provider.Provider

	if s := cfg.CoinGecko; s.Enabled {
		options := []coingecko.Option{
			coingecko.WithBaseURL(s.BaseURL),
			coingecko.WithHTTPClient(hc),
		}
		if s.APIKey != "" {
			options = append(options, coingecko.WithAPIKey(s.APIKey))
		}
		providers = append(providers, decorate(coingecko.New(options...), s))
	}
	if s := cfg.CoinDCX; s.Enabled {
		// the ticker cache inside the provider replaces the quote cache
		p := coindcx.New(coindcx.Config{URL: s.BaseURL, TickerTTL: s.CacheTTL()}, hc)
		providers = append(providers, ratelimit.Wrap(p, s.MaxRequestsPerMinute, s.Burst, s.MinInterval()))
	}
	if s := cfg.Binance; s.Enabled {
		p := binance.New(binance.Config{URL: s.BaseURL}, hc)
		providers = append(providers, decorate(p, s))
	}

	for _, p := range providers {
		log.Printf("[INFO] provider enabled: %s (%s)", p.ID(), p.Name())
	}
	return providers
}

func decorate(p provider.Provider, s config.Source) provider.Provider {
	p = ratelimit.Wrap(p, s.MaxRequestsPerMinute, s.Burst, s.MinInterval())
	return cache.Wrap(p, s.CacheTTL())
}
