package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. PRICEWIDGET_SERVER_PORT.
const EnvPrefix = "PRICEWIDGET"

type Server struct {
	Port              string `json:"port" yaml:"port" split_words:"true"`
	RequestTimeoutSec int    `json:"request_timeout_sec" yaml:"request_timeout_sec" split_words:"true"`
	MaxBodyBytes      int64  `json:"max_body_bytes" yaml:"max_body_bytes" split_words:"true"`
}

type Store struct {
	Driver string `json:"driver" yaml:"driver" split_words:"true"` // file | sqlite | memory
	Path   string `json:"path" yaml:"path" split_words:"true"`
}

type Scheduler struct {
	IntervalSec       int `json:"interval_sec" yaml:"interval_sec" split_words:"true"`
	HTTPTimeoutSec    int `json:"http_timeout_sec" yaml:"http_timeout_sec" split_words:"true"`
	CatalogTimeoutSec int `json:"catalog_timeout_sec" yaml:"catalog_timeout_sec" split_words:"true"`
}

// Source configures one price provider.
type Source struct {
	Enabled               bool   `json:"enabled" yaml:"enabled" split_words:"true"`
	BaseURL               string `json:"base_url" yaml:"base_url" split_words:"true"`
	APIKey                string `json:"api_key" yaml:"api_key" split_words:"true"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute" yaml:"max_requests_per_minute" split_words:"true"`
	Burst                 int    `json:"burst" yaml:"burst" split_words:"true"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec" yaml:"min_request_interval_sec" split_words:"true"`
	CacheTTLSeconds       int    `json:"cache_ttl_sec" yaml:"cache_ttl_sec" split_words:"true"`
}

type Log struct {
	File string `json:"file" yaml:"file" split_words:"true"`
}

type Config struct {
	Server    Server    `json:"server" yaml:"server" envconfig:"SERVER"`
	Store     Store     `json:"store" yaml:"store" envconfig:"STORE"`
	Scheduler Scheduler `json:"scheduler" yaml:"scheduler" envconfig:"SCHEDULER"`
	CoinGecko Source    `json:"coingecko" yaml:"coingecko" envconfig:"COINGECKO"`
	CoinDCX   Source    `json:"coindcx" yaml:"coindcx" envconfig:"COINDCX"`
	Binance   Source    `json:"binance" yaml:"binance" envconfig:"BINANCE"`
	Log       Log       `json:"log" yaml:"log" envconfig:"LOG"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 10, MaxBodyBytes: 1 << 16},
		Store:  Store{Driver: "file", Path: "pricewidget.json"},
		Scheduler: Scheduler{
			IntervalSec:       60,
			HTTPTimeoutSec:    10,
			CatalogTimeoutSec: 15,
		},
		CoinGecko: Source{
			Enabled:              true,
			BaseURL:              "https://api.coingecko.com/api/v3",
			MaxRequestsPerMinute: 10,
			Burst:                2,
		},
		CoinDCX: Source{
			Enabled:         true,
			BaseURL:         "https://api.coindcx.com",
			CacheTTLSeconds: 5,
		},
		Binance: Source{
			Enabled:               false,
			BaseURL:               "https://api.binance.com",
			MinRequestIntervalSec: 1,
		},
	}
}

// Load builds the config in layers: defaults, then the JSON or YAML file at
// path, then variables from envFile, then PRICEWIDGET_* environment overrides.
// An empty path tries config.json and config.yaml in the working directory.
// Missing files are not an error.
func Load(path, envFile string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = firstExisting("config.json", "config.yaml", "config.yml")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("load env file: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("env overrides: %w", err)
	}
	// PORT is what most hosting platforms set
	if v := os.Getenv("PORT"); v != "" && os.Getenv(EnvPrefix+"_SERVER_PORT") == "" {
		cfg.Server.Port = v
	}
	return cfg, cfg.Validate()
}

func firstExisting(names ...string) string {
	for _, n := range names {
		if _, err := os.Stat(n); err == nil {
			return n
		}
	}
	return ""
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	default:
		err = json.Unmarshal(b, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Scheduler.IntervalSec < 1 {
		errs = append(errs, fmt.Errorf("scheduler.interval_sec must be >= 1, got %d", c.Scheduler.IntervalSec))
	}
	if c.Scheduler.HTTPTimeoutSec < 1 {
		errs = append(errs, fmt.Errorf("scheduler.http_timeout_sec must be >= 1, got %d", c.Scheduler.HTTPTimeoutSec))
	}
	switch c.Store.Driver {
	case "file", "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store.path is required for driver %q", c.Store.Driver))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of file, sqlite, memory", c.Store.Driver))
	}
	if !c.CoinGecko.Enabled && !c.CoinDCX.Enabled && !c.Binance.Enabled {
		errs = append(errs, errors.New("at least one provider must be enabled"))
	}
	return errors.Join(errs...)
}

func (c Config) Interval() time.Duration { return time.Duration(c.Scheduler.IntervalSec) * time.Second }

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Scheduler.HTTPTimeoutSec) * time.Second
}

func (c Config) CatalogTimeout() time.Duration {
	return time.Duration(c.Scheduler.CatalogTimeoutSec) * time.Second
}

func (s Source) MinInterval() time.Duration {
	return time.Duration(s.MinRequestIntervalSec) * time.Second
}

func (s Source) CacheTTL() time.Duration { return time.Duration(s.CacheTTLSeconds) * time.Second }
