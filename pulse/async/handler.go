package async

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/teranos/dataq/errors"
)

// JobHandler executes one kind of job. Domain packages implement it so the
// async infrastructure stays decoupled from domain logic.
type JobHandler interface {
	// Execute runs the job and returns any error encountered.
	// The handler should:
	// - Decode job.Payload into its own payload struct
	// - Report progress through the emitter it is given
	// - Return nil on success, error on failure
	//
	// Errors marked with a terminal dataq kind fail the job immediately;
	// others are retried up to MaxRetries.
	Execute(ctx context.Context, job *Job) error

	// Name returns the handler name (e.g. "dataset.process").
	// Used for handler registration and job routing.
	Name() string
}

// HandlerFunc adapts a function to JobHandler
type HandlerFunc struct {
	HandlerName string
	Fn          func(ctx context.Context, job *Job) error
}

func (h HandlerFunc) Name() string                                { return h.HandlerName }
func (h HandlerFunc) Execute(ctx context.Context, job *Job) error { return h.Fn(ctx, job) }

// HandlerRegistry manages job handlers by name.
// Thread-safe for concurrent handler registration and lookup.
type HandlerRegistry struct {
	handlers map[string]JobHandler // Handler name -> handler
	mu       sync.RWMutex
}

// NewHandlerRegistry creates an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]JobHandler),
	}
}

// Register adds a handler using its name.
// Panics if a handler is already registered with that name.
func (r *HandlerRegistry) Register(handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handlerName := handler.Name()
	if _, exists := r.handlers[handlerName]; exists {
		panic(fmt.Sprintf("handler already registered for name: %s", handlerName))
	}
	r.handlers[handlerName] = handler
}

// Get retrieves the handler for a handler name.
// Returns nil if no handler is registered.
func (r *HandlerRegistry) Get(handlerName string) JobHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[handlerName]
}

// Has checks if a handler is registered for a name.
func (r *HandlerRegistry) Has(handlerName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[handlerName]
	return exists
}

// Names returns all registered handler names, sorted.
func (r *HandlerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute dispatches job to its registered handler.
func (r *HandlerRegistry) Execute(ctx context.Context, job *Job) error {
	if job.HandlerName == "" {
		return errors.Mark(errors.Newf("job %s missing handler_name", job.ID), errors.ErrInvalidRequest)
	}

	handler := r.Get(job.HandlerName)
	if handler == nil {
		return errors.Mark(errors.Newf("no handler registered for handler name: %s", job.HandlerName), errors.ErrInvalidRequest)
	}
	return handler.Execute(ctx, job)
}
