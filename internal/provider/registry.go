package provider

import (
	"fmt"
	"sort"
)

// Registry holds the known providers keyed by ID, in registration order.
// The first registered provider is the default one.
type Registry struct {
	byID  map[string]Provider
	order []string
}

func NewRegistry(ps ...Provider) (*Registry, error) {
	r := &Registry{byID: make(map[string]Provider, len(ps))}
	for _, p := range ps {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(p Provider) error {
	if p == nil || p.ID() == "" {
		return fmt.Errorf("register provider: empty id")
	}
	if _, dup := r.byID[p.ID()]; dup {
		return fmt.Errorf("register provider: duplicate id %q", p.ID())
	}
	r.byID[p.ID()] = p
	r.order = append(r.order, p.ID())
	return nil
}

func (r *Registry) Get(id string) (Provider, bool) {
	p, ok := r.byID[id]
	return p, ok
}

func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Default returns the first registered provider, or nil for an empty registry.
func (r *Registry) Default() Provider {
	if len(r.order) == 0 {
		return nil
	}
	return r.byID[r.order[0]]
}

func (r *Registry) All() []Provider {
	out := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// IDs returns the provider ids sorted alphabetically.
func (r *Registry) IDs() []string {
	ids := append([]string(nil), r.order...)
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int { return len(r.order) }
