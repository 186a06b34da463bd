package strategy

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Registry resolves adapter instances by id. Commands arriving over the wire
// name a strategy; the adapter itself is wired at boot.
type Registry struct {
	mu       sync.RWMutex
	adapters map[uuid.UUID]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[uuid.UUID]Adapter)}
}

// Register makes an adapter resolvable. Registering the same id twice fails.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[a.ID()]; exists {
		return fmt.Errorf("adapter %s already registered", a.ID())
	}
	r.adapters[a.ID()] = a
	return nil
}

// Lookup returns the adapter for id.
func (r *Registry) Lookup(id uuid.UUID) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}
