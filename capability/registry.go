package capability

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds one Provider per Domain.
type Registry struct {
	mu        sync.RWMutex
	providers map[Domain]Provider
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[Domain]Provider)}
}

// Register binds p to domain.
// Returns an error if the domain already has a provider.
func (r *Registry) Register(domain Domain, p Provider) error {
	if p == nil {
		return fmt.Errorf("capability %q: nil provider", domain)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[domain]; exists {
		return fmt.Errorf("capability %q already registered", domain)
	}
	r.providers[domain] = p
	return nil
}

// Get returns the provider bound to domain.
func (r *Registry) Get(domain Domain) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[domain]
	return p, ok
}

// Domains returns the registered domains in sorted order.
func (r *Registry) Domains() []Domain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Domain, 0, len(r.providers))
	for d := range r.providers {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Unregister removes the provider bound to domain.
func (r *Registry) Unregister(domain Domain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[domain]; !exists {
		return fmt.Errorf("capability %q not found", domain)
	}
	delete(r.providers, domain)
	return nil
}
