package genai

import (
	"fmt"
	"sync"

	"github.com/lumenly/coursegen"
)

// Registry maps provider names to adapter values. An adapter may
// implement any subset of the capability interfaces; Resolve checks the
// requested capability at lookup. Lookups happen at orchestrator
// construction time, so a missing or miswired provider is a startup
// error, not a call-time one.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]any
	fallback  string
}

// NewRegistry creates an empty provider registry. The fallback name is
// used when a job's provider selection leaves a capability blank.
func NewRegistry(fallback string) *Registry {
	return &Registry{
		providers: make(map[string]any),
		fallback:  fallback,
	}
}

// Register adds a provider adapter under its name. Re-registering a
// name replaces the adapter.
func (r *Registry) Register(name string, adapter any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = adapter
}

// Names returns all registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// Resolve returns the provider registered under name, asserting the
// capability T. An empty name resolves the registry's fallback.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func Resolve[T any](r *Registry, name string) (T, error) {
	var zero T

	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.fallback
	}
	adapter, ok := r.providers[name]
	if !ok {
		return zero, fmt.Errorf("%w: %q", coursegen.ErrProviderNotRegistered, name)
	}
	capability, ok := adapter.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q lacks capability %T", coursegen.ErrProviderNotRegistered, name, zero)
	}
	return capability, nil
}
