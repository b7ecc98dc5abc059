// Package app owns every state object of a running widget and exposes the
// inbound triggers a display surface can fire.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"pricewidget/internal/aggregate"
	"pricewidget/internal/catalog"
	"pricewidget/internal/config"
	"pricewidget/internal/httpx"
	"pricewidget/internal/metrics"
	"pricewidget/internal/presenter"
	"pricewidget/internal/provider"
	"pricewidget/internal/scheduler"
	"pricewidget/internal/selection"
	"pricewidget/internal/store"
)

type Coordinator struct {
	Registry  *provider.Registry
	Catalog   *catalog.Catalog
	Selection *selection.State
	Scheduler *scheduler.Scheduler
	Publisher *presenter.Publisher
	Latest    *presenter.LatestSink
	Book      *aggregate.Book
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer

	store store.Store
}

type options struct {
	providers []provider.Provider
	custom    bool
	store     store.Store
	sinks     []presenter.Sink
	schedOpts []scheduler.Option
}

type Option func(*options)

// WithProviders replaces the providers built from config.
func WithProviders(ps ...provider.Provider) Option {
	return func(o *options) { o.providers, o.custom = ps, true }
}

// WithStore replaces the store opened from config. The coordinator closes it.
func WithStore(st store.Store) Option {
	return func(o *options) { o.store = st }
}

func WithSinks(sinks ...presenter.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sinks...) }
}

func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(o *options) { o.schedOpts = append(o.schedOpts, opts...) }
}

// New wires the graph: providers, catalog, persisted selection, scheduler and
// presenter. It does not wait for the catalog: listings are fetched in the
// background under ctx, and symbol lookups use the canonical tables until
// they arrive.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Coordinator, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if !o.custom {
		hc := httpx.New(cfg.HTTPTimeout())
		o.providers = BuildProviders(cfg, hc)
	}
	reg, err := provider.NewRegistry(o.providers...)
	if err != nil {
		return nil, err
	}
	if reg.Len() == 0 {
		return nil, errors.New("no providers enabled")
	}

	st := o.store
	if st == nil {
		st, err = store.Open(cfg.Store.Driver, cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}

	cat := catalog.Start(ctx, reg, cfg.CatalogTimeout())

	sel, err := selection.Load(st, reg, cat)
	if err != nil {
		if sel == nil {
			st.Close()
			return nil, err
		}
		log.Printf("[ERROR] selection: %v", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	latest := &presenter.LatestSink{}
	pub := presenter.NewPublisher(reg, append([]presenter.Sink{latest}, o.sinks...)...)
	book := aggregate.NewBook()

	schedOpts := append([]scheduler.Option{
		scheduler.WithInterval(cfg.Interval()),
		scheduler.WithRenderer(pub.Render),
		scheduler.WithMetrics(m),
		scheduler.WithQuoteHook(book.Add),
	}, o.schedOpts...)

	c := &Coordinator{
		Registry:  reg,
		Catalog:   cat,
		Selection: sel,
		Scheduler: scheduler.New(sel, schedOpts...),
		Publisher: pub,
		Latest:    latest,
		Book:      book,
		Metrics:   m,
		Gatherer:  promReg,
		store:     st,
	}
	id, asset := sel.Active()
	log.Printf("[INFO] coordinator ready: %d providers, active %s tracking %s", reg.Len(), id, asset.AssetID)
	return c, nil
}

// Run drives the scheduler until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	return c.Scheduler.Run(ctx)
}

func (c *Coordinator) Refresh(ctx context.Context) error {
	return c.Scheduler.Refresh(ctx)
}

func (c *Coordinator) SwitchProvider(ctx context.Context, id string) error {
	return c.Scheduler.SwitchProvider(ctx, id)
}

// SwitchAsset resolves raw against providerID (the active provider when
// empty) and tracks the result.
func (c *Coordinator) SwitchAsset(ctx context.Context, providerID, raw string) (provider.AssetRef, error) {
	if providerID == "" {
		providerID, _ = c.Selection.Active()
	}
	asset, err := c.Selection.ResolveSymbol(providerID, raw)
	if err != nil {
		return provider.AssetRef{}, err
	}
	if err := c.Scheduler.SwitchAsset(ctx, providerID, asset); err != nil {
		return provider.AssetRef{}, err
	}
	return asset, nil
}

// CatalogListing is one provider's instrument listing as currently known.
type CatalogListing struct {
	Provider    string              `json:"provider"`
	Ready       bool                `json:"ready"`
	Count       int                 `json:"count"`
	Instruments []provider.AssetRef `json:"instruments"`
}

// Instruments returns what the catalog holds for providerID. Ready is false
// while the startup listing is still running.
func (c *Coordinator) Instruments(providerID string) (CatalogListing, error) {
	if !c.Registry.Has(providerID) {
		return CatalogListing{}, fmt.Errorf("catalog %q: %w", providerID, selection.ErrUnknownProvider)
	}
	ready := c.Catalog.IsReady()
	list := c.Catalog.Instruments(providerID)
	return CatalogListing{Provider: providerID, Ready: ready, Count: len(list), Instruments: list}, nil
}

// SelectionSnapshot returns the active provider and the asset chosen on each provider.
func (c *Coordinator) SelectionSnapshot() selection.Snapshot {
	return c.Selection.Snapshot()
}

// Display returns the last pushed model, or formats the current reading when
// nothing has been pushed yet.
func (c *Coordinator) Display() (presenter.DisplayModel, presenter.Menu) {
	if dm, menu, ok := c.Latest.Latest(); ok {
		return dm, menu
	}
	p := c.Selection.ActiveProvider()
	dm := presenter.Format(c.Scheduler.Snapshot(), p, c.Selection.Asset(p.ID()))
	return dm, presenter.BuildMenu(c.Registry, p.ID(), dm)
}

func (c *Coordinator) Close() error {
	return c.store.Close()
}

// Quotes lists the newest quote of every instrument fetched this session.
func (c *Coordinator) Quotes() []aggregate.Latest {
	return c.Book.Latest()
}
