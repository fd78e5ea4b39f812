package adapters

import (
	"fmt"
	"sync"
)

// Registry maps strategy kinds to implementations.
type Registry struct {
	mu         sync.RWMutex
	strategies map[Kind]Strategy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[Kind]Strategy)}
}

// Register adds s under its own kind, replacing any previous one.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get returns the strategy for kind, or an error if none is registered.
func (r *Registry) Get(kind Kind) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[kind]
	if !ok {
		return nil, fmt.Errorf("no strategy registered for %s", kind)
	}
	return s, nil
}

// Kinds returns the registered kinds.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.strategies))
	for k := range r.strategies {
		kinds = append(kinds, k)
	}
	return kinds
}
