package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds all configured providers in a stable priority order.
// The set is fixed after startup; availability is recomputed on every
// Available call because it depends on mutable external state.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
	byName    map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Provider),
	}
}

// Register adds a provider. Names must be unique and priorities must form
// a strict total order; ties are a configuration error.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[p.Name()]; exists {
		return fmt.Errorf("provider %q already registered", p.Name())
	}
	for _, q := range r.providers {
		if q.Priority() == p.Priority() {
			return fmt.Errorf("providers %q and %q share priority %d", q.Name(), p.Name(), p.Priority())
		}
	}

	r.byName[p.Name()] = p
	r.providers = append(r.providers, p)
	sort.SliceStable(r.providers, func(i, j int) bool {
		return r.providers[i].Priority() < r.providers[j].Priority()
	})
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// All returns every registered provider in ascending priority order.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Available re-checks every provider and returns the currently available
// subset in ascending priority order. The result is never cached:
// credentials and connectivity can change between calls.
func (r *Registry) Available() []Provider {
	all := r.All()
	out := make([]Provider, 0, len(all))
	for _, p := range all {
		if p.IsAvailable() {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
