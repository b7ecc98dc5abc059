// Package selection tracks which provider is active and which asset is
// selected on every provider. Each mutation is written through to the store.
package selection

import (
	"fmt"
	"log"
	"maps"
	"strings"
	"sync"

	"pricewidget/internal/catalog"
	"pricewidget/internal/provider"
	"pricewidget/internal/store"
)

const (
	KeyProvider = "selectedProviderId"
	KeyAssets   = "selectedAssetByProvider"
)

// State is the user's selection. Writes happen on the scheduler goroutine;
// the lock only protects readers elsewhere.
type State struct {
	store   store.Store
	reg     *provider.Registry
	catalog *catalog.Catalog

	mu     sync.RWMutex
	active string
	assets map[string]provider.AssetRef
}

// Snapshot is a copy of the selection.
type Snapshot struct {
	ProviderID string                       `json:"provider_id"`
	Assets     map[string]provider.AssetRef `json:"assets"`
}

// Load restores the selection from st. An absent or unregistered provider
// falls back to the registry default, which is then persisted.
func Load(st store.Store, reg *provider.Registry, cat *catalog.Catalog) (*State, error) {
	if reg.Len() == 0 {
		return nil, fmt.Errorf("load selection: no providers registered")
	}
	s := &State{
		store:   st,
		reg:     reg,
		catalog: cat,
		assets:  make(map[string]provider.AssetRef),
	}

	var assets map[string]provider.AssetRef
	if _, err := st.Get(KeyAssets, &assets); err != nil {
		log.Printf("[WARN] selection: ignoring stored assets: %v", err)
		assets = nil
	}
	for id, a := range assets {
		if !reg.Has(id) || a.IsZero() {
			continue
		}
		a.ProviderID = id
		s.assets[id] = a
	}

	var id string
	found, err := st.Get(KeyProvider, &id)
	if err != nil {
		log.Printf("[WARN] selection: ignoring stored provider: %v", err)
		found = false
	}
	if !found || !reg.Has(id) {
		if found {
			log.Printf("[WARN] selection: stored provider %q is not registered, using %s", id, reg.Default().ID())
		}
		s.active = reg.Default().ID()
		if err := st.Set(KeyProvider, s.active); err != nil {
			return s, fmt.Errorf("persist default provider: %w", err)
		}
		return s, nil
	}
	s.active = id
	return s, nil
}

// SetProvider makes id the active provider.
func (s *State) SetProvider(id string) error {
	if !s.reg.Has(id) {
		return fmt.Errorf("set provider %q: %w", id, ErrUnknownProvider)
	}
	s.mu.Lock()
	s.active = id
	s.mu.Unlock()
	if err := s.store.Set(KeyProvider, id); err != nil {
		return fmt.Errorf("persist provider: %w", err)
	}
	return nil
}

// SetAsset replaces the tracked asset of providerID, active or not.
func (s *State) SetAsset(providerID string, a provider.AssetRef) error {
	if !s.reg.Has(providerID) {
		return fmt.Errorf("set asset for %q: %w", providerID, ErrUnknownProvider)
	}
	a.ProviderID = providerID
	s.mu.Lock()
	s.assets[providerID] = a
	assets := maps.Clone(s.assets)
	s.mu.Unlock()
	if err := s.store.Set(KeyAssets, assets); err != nil {
		return fmt.Errorf("persist assets: %w", err)
	}
	return nil
}

// Asset returns the selected asset of providerID, or its default asset.
func (s *State) Asset(providerID string) provider.AssetRef {
	s.mu.RLock()
	a, ok := s.assets[providerID]
	s.mu.RUnlock()
	if ok {
		return a
	}
	if p, ok := s.reg.Get(providerID); ok {
		return p.DefaultAsset()
	}
	return provider.AssetRef{}
}

func (s *State) ActiveProvider() provider.Provider {
	s.mu.RLock()
	id := s.active
	s.mu.RUnlock()
	p, _ := s.reg.Get(id)
	return p
}

// Active returns the active provider id and its selected asset.
func (s *State) Active() (string, provider.AssetRef) {
	s.mu.RLock()
	id := s.active
	s.mu.RUnlock()
	return id, s.Asset(id)
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{ProviderID: s.active, Assets: maps.Clone(s.assets)}
}

// ResolveSymbol maps user input such as " ETH " to an asset of providerID.
// The provider's canonical table wins over the catalog; within the catalog
// the first symbol match wins.
func (s *State) ResolveSymbol(providerID, raw string) (provider.AssetRef, error) {
	p, ok := s.reg.Get(providerID)
	if !ok {
		return provider.AssetRef{}, fmt.Errorf("resolve %q: %w", raw, ErrUnknownProvider)
	}
	sym := strings.ToLower(strings.TrimSpace(raw))
	if sym == "" {
		return provider.AssetRef{}, &SymbolNotFoundError{Symbol: raw, Provider: providerID, ProviderName: p.Name()}
	}
	if c, ok := p.(provider.Canonicalizer); ok {
		if a, ok := c.Canonical(sym); ok {
			return a, nil
		}
	}
	if s.catalog != nil {
		if a, ok := s.catalog.Lookup(providerID, sym); ok {
			return a, nil
		}
	}
	return provider.AssetRef{}, &SymbolNotFoundError{Symbol: sym, Provider: providerID, ProviderName: p.Name()}
}
