package presenter

import (
	"log"
	"sync"

	"pricewidget/internal/provider"
	"pricewidget/internal/scheduler"
)

// Sink is a display surface.
type Sink interface {
	Push(dm DisplayModel, menu Menu)
}

// Publisher formats every reading and fans it out to its sinks.
type Publisher struct {
	reg *provider.Registry

	mu    sync.Mutex
	sinks []Sink
}

func NewPublisher(reg *provider.Registry, sinks ...Sink) *Publisher {
	return &Publisher{reg: reg, sinks: sinks}
}

func (p *Publisher) Attach(s Sink) {
	p.mu.Lock()
	p.sinks = append(p.sinks, s)
	p.mu.Unlock()
}

// Render has the scheduler.Renderer signature.
func (p *Publisher) Render(r scheduler.Reading, active provider.Provider, asset provider.AssetRef) {
	dm := Format(r, active, asset)
	menu := BuildMenu(p.reg, active.ID(), dm)
	if dm.IsError {
		log.Printf("[WARN] presenter: %s showing last known value: %s", dm.Label, dm.ErrorMessage)
	}

	p.mu.Lock()
	sinks := append([]Sink(nil), p.sinks...)
	p.mu.Unlock()
	for _, s := range sinks {
		s.Push(dm, menu)
	}
}

// LatestSink keeps the last pushed model for readers such as an HTTP handler.
type LatestSink struct {
	mu   sync.RWMutex
	dm   DisplayModel
	menu Menu
	ok   bool
}

func (l *LatestSink) Push(dm DisplayModel, menu Menu) {
	l.mu.Lock()
	l.dm, l.menu, l.ok = dm, menu, true
	l.mu.Unlock()
}

// Latest reports false until the first push.
func (l *LatestSink) Latest() (DisplayModel, Menu, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dm, l.menu, l.ok
}

// LogSink writes the title line on every push.
type LogSink struct{}

func (LogSink) Push(dm DisplayModel, _ Menu) {
	log.Printf("[INFO] %s", dm.Title)
}
