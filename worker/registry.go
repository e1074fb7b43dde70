// Package worker provides the queue-consuming side of the engine: a
// bounded pool of goroutines that pull job references, rehydrate
// payloads, and dispatch to the orchestrator registered for each job
// type.
package worker

import (
	"context"
	"sync"

	"github.com/lumenly/coursegen/job"
)

// HandlerFunc executes one job with its hydrated payload. Orchestrators
// register one per job type.
type HandlerFunc func(ctx context.Context, j *job.Job, p *job.Payload) error

// Registry maps job types to handler functions. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[job.Type]HandlerFunc
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[job.Type]HandlerFunc)}
}

// Register sets the handler for a job type, replacing any previous one.
func (r *Registry) Register(t job.Type, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

// Get returns the handler for the given job type.
func (r *Registry) Get(t job.Type) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// Types returns all registered job types.
func (r *Registry) Types() []job.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]job.Type, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
