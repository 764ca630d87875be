package venue

import (
	"fmt"
	"sync"

	"github.com/rangevault/rvm/internal/types"
)

// Registry resolves venue tags to adapter instances. It is consulted
// read-only by the core; registration happens at wiring time.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register binds an adapter to a venue tag. Re-registering a tag is an error;
// venue bindings are fixed for the process lifetime.
func (r *Registry) Register(tag string, a Adapter) error {
	if tag == "" || a == nil {
		return fmt.Errorf("%w: venue tag and adapter are required", types.ErrInvalidParameter)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.adapters[tag]; dup {
		return fmt.Errorf("%w: venue %q already registered", types.ErrInvalidParameter, tag)
	}
	r.adapters[tag] = a
	return nil
}

// Resolve returns the adapter for a venue tag.
func (r *Registry) Resolve(tag string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[tag]
	if !ok {
		return nil, fmt.Errorf("%w: venue %q", types.ErrNotFound, tag)
	}
	return a, nil
}

// ForRange resolves the adapter owning a range.
func (r *Registry) ForRange(rg *types.Range) (Adapter, error) {
	return r.Resolve(rg.Venue)
}
