// Package scheduler polls the active provider and owns the current Reading.
//
// All state changes run on one goroutine (Run) which consumes a command
// queue. The cron timer, user refreshes and selection switches are producers
// on that queue; fetches run in their own goroutines and post their result
// back as another command.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"pricewidget/internal/metrics"
	"pricewidget/internal/provider"
	"pricewidget/internal/selection"
)

// DefaultInterval is both the timer period and the minimum spacing of unforced fetches.
const DefaultInterval = 60 * time.Second

// Renderer receives the reading after every change, together with the
// selection it should be displayed against. It runs on the scheduler goroutine.
type Renderer func(r Reading, p provider.Provider, asset provider.AssetRef)

type command func(s *Scheduler)

// tag identifies the selection a fetch was issued for.
type tag struct {
	requestID  string
	providerID string
	assetID    string
}

type Scheduler struct {
	sel      *selection.State
	interval time.Duration
	clock    func() time.Time
	render   Renderer
	onQuote  func(provider.Quote)
	metrics  *metrics.Metrics

	cmds chan command
	done chan struct{}
	ctx  context.Context

	mu      sync.RWMutex // readers only; the loop is the single writer
	reading Reading
}

type Option func(*Scheduler)

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.clock = now }
}

func WithRenderer(r Renderer) Option {
	return func(s *Scheduler) { s.render = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithQuoteHook registers fn to receive every applied successful quote.
func WithQuoteHook(fn func(provider.Quote)) Option {
	return func(s *Scheduler) { s.onQuote = fn }
}

func New(sel *selection.State, options ...Option) *Scheduler {
	s := &Scheduler{
		sel:      sel,
		interval: DefaultInterval,
		clock:    time.Now,
		render:   func(Reading, provider.Provider, provider.AssetRef) {},
		onQuote:  func(provider.Quote) {},
		cmds:     make(chan command, 16),
		done:     make(chan struct{}),
		ctx:      context.Background(),
	}
	for _, option := range options {
		option(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	return s
}

// Run consumes the command queue until ctx is done. It renders once, fetches
// immediately, then enqueues an unforced tick every interval.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	defer close(s.done)

	c := cron.New()
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := c.AddFunc(spec, func() { s.post(func(s *Scheduler) { s.tick(false) }) }); err != nil {
		return fmt.Errorf("register tick %q: %w", spec, err)
	}
	c.Start()
	defer c.Stop()
	log.Printf("[INFO] scheduler started, interval %s", s.interval)

	s.emit()
	s.tick(true)

	for {
		select {
		case <-ctx.Done():
			log.Println("[INFO] scheduler stopped")
			return ctx.Err()
		case cmd := <-s.cmds:
			cmd(s)
		}
	}
}

// post enqueues cmd unless the loop has exited.
func (s *Scheduler) post(cmd command) bool {
	select {
	case s.cmds <- cmd:
		return true
	case <-s.done:
		return false
	}
}

// call runs fn on the loop and waits for its error.
func (s *Scheduler) call(ctx context.Context, fn func(s *Scheduler) error) error {
	reply := make(chan error, 1)
	cmd := func(s *Scheduler) { reply <- fn(s) }
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return errors.New("scheduler stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return errors.New("scheduler stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh requests a fetch that bypasses the rate gate.
func (s *Scheduler) Refresh(ctx context.Context) error {
	return s.call(ctx, func(s *Scheduler) error {
		s.tick(true)
		return nil
	})
}

// SwitchProvider activates id and fetches its selected asset right away.
func (s *Scheduler) SwitchProvider(ctx context.Context, id string) error {
	return s.call(ctx, func(s *Scheduler) error {
		if err := s.sel.SetProvider(id); err != nil {
			if errors.Is(err, selection.ErrUnknownProvider) {
				return err
			}
			log.Printf("[ERROR] scheduler: %v", err)
		}
		s.metrics.ProviderSwitches.WithLabelValues(id).Inc()
		log.Printf("[INFO] scheduler: provider switched to %s", id)
		s.dropStaleError()
		s.emit()
		s.tick(true)
		return nil
	})
}

// SwitchAsset tracks asset on providerID and fetches right away.
func (s *Scheduler) SwitchAsset(ctx context.Context, providerID string, asset provider.AssetRef) error {
	return s.call(ctx, func(s *Scheduler) error {
		if err := s.sel.SetAsset(providerID, asset); err != nil {
			if errors.Is(err, selection.ErrUnknownProvider) {
				return err
			}
			log.Printf("[ERROR] scheduler: %v", err)
		}
		log.Printf("[INFO] scheduler: %s now tracks %s", providerID, asset.AssetID)
		s.dropStaleError()
		s.emit()
		s.tick(true)
		return nil
	})
}

// Snapshot returns a copy of the current reading.
func (s *Scheduler) Snapshot() Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reading.clone()
}

func (s *Scheduler) update(fn func(r *Reading)) {
	s.mu.Lock()
	fn(&s.reading)
	s.mu.Unlock()
}

// tick starts a fetch of the active selection. Unforced ticks are dropped
// while the last fetch is younger than the interval.
func (s *Scheduler) tick(force bool) {
	now := s.clock()
	last := s.reading.LastFetchAt
	if !force && !last.IsZero() && now.Sub(last) < s.interval {
		s.metrics.SkippedTicks.Inc()
		log.Printf("[INFO] scheduler: tick skipped, last fetch %s ago", now.Sub(last).Round(time.Second))
		return
	}
	s.update(func(r *Reading) { r.LastFetchAt = now })

	p := s.sel.ActiveProvider()
	asset := s.sel.Asset(p.ID())
	t := tag{requestID: uuid.NewString(), providerID: p.ID(), assetID: asset.AssetID}
	ctx := s.ctx

	go func() {
		start := time.Now()
		q, err := p.Fetch(ctx, asset)
		took := time.Since(start)
		s.post(func(s *Scheduler) { s.apply(t, q, err, took) })
	}()
}

func (s *Scheduler) apply(t tag, q provider.Quote, err error, took time.Duration) {
	s.metrics.ObserveFetch(t.providerID, result(err), took)

	id, asset := s.sel.Active()
	if t.providerID != id || t.assetID != asset.AssetID {
		s.metrics.DiscardedResults.WithLabelValues(t.providerID).Inc()
		log.Printf("[INFO] scheduler: discarding %s result for %s:%s, selection is now %s:%s",
			t.requestID, t.providerID, t.assetID, id, asset.AssetID)
		return
	}

	if err != nil {
		log.Printf("[WARN] scheduler: fetch %s failed after %s: %v", t.requestID, took.Round(time.Millisecond), err)
		at := s.clock()
		s.update(func(r *Reading) {
			r.LastError = &ErrorInfo{ProviderID: t.providerID, AssetID: t.assetID, Message: err.Error(), At: at}
		})
	} else {
		s.update(func(r *Reading) {
			r.LastQuote = &q
			r.LastError = nil
		})
		s.metrics.ObserveQuote(t.providerID, t.assetID, q.Price, q.ChangePercent24h)
		s.onQuote(q)
	}
	s.emit()
}

// dropStaleError forgets an error raised for a selection that is no longer active.
func (s *Scheduler) dropStaleError() {
	id, asset := s.sel.Active()
	if s.reading.LastError != nil && !s.reading.LastError.For(id, asset.AssetID) {
		s.update(func(r *Reading) { r.LastError = nil })
	}
}

func (s *Scheduler) emit() {
	p := s.sel.ActiveProvider()
	s.render(s.Snapshot(), p, s.sel.Asset(p.ID()))
}

func result(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, provider.ErrDataShape):
		return metrics.ResultDataShape
	default:
		return metrics.ResultTransport
	}
}
