package coingecko

import (
	"net/http"

	"pricewidget/internal/httpx"
)

const (
	// ID is the registry key of the CoinGecko provider.
	ID = "coingecko"

	baseURL = "https://api.coingecko.com/api/v3"
)

// Provider quotes assets in USD using the CoinGecko public API.
type Provider struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient is the HTTP client.
	httpClient httpx.HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
}

// Option is a configuration option for the CoinGecko provider.
type Option func(*Provider)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		if baseURL != "" {
			p.baseURL = baseURL
		}
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient httpx.HTTPClient) Option {
	return func(p *Provider) {
		p.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(p *Provider) {
		for key, values := range header {
			for _, value := range values {
				p.header.Add(key, value)
			}
		}
	}
}

// WithAPIKey sends a demo API key, which lifts the anonymous rate limit.
func WithAPIKey(key string) Option {
	return func(p *Provider) {
		if key != "" {
			// https://docs.coingecko.com/v3.0.1/reference/authentication
			p.header.Set("x-cg-demo-api-key", key)
		}
	}
}

// New creates a new CoinGecko provider.
func New(options ...Option) *Provider {
	var p = &Provider{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
	}
	for _, option := range options {
		option(p)
	}
	return p
}
