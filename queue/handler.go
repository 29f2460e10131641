package queue

import (
	"context"
	"sync"

	"github.com/gavelbot/gavel/errors"
)

// Handler executes one job type. Stage handler packages implement
// this interface so the queue stays decoupled from governance logic.
//
// Handlers must tolerate redelivery: the queue guarantees at-least-once
// delivery, and two jobs in the same window may run within the same
// second. Guards belong in the handler, not here.
type Handler interface {
	// Type returns the job type this handler executes.
	Type() JobType

	// Execute runs the job. Returning nil marks the job completed;
	// returning an error triggers the retry policy.
	Execute(ctx context.Context, job *Job) error
}

// HandlerRegistry manages handlers by job type. Thread-safe for
// concurrent registration and lookup.
type HandlerRegistry struct {
	handlers map[JobType]Handler
	mu       sync.RWMutex
}

// NewHandlerRegistry creates an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[JobType]Handler),
	}
}

// Register adds a handler for its job type. Registering the same type
// twice is a programming error and panics.
func (r *HandlerRegistry) Register(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobType := handler.Type()
	if _, exists := r.handlers[jobType]; exists {
		panic("handler already registered for job type: " + string(jobType))
	}
	r.handlers[jobType] = handler
}

// Get retrieves the handler for a job type, or nil.
func (r *HandlerRegistry) Get(jobType JobType) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[jobType]
}

// Has checks if a handler is registered for a job type.
func (r *HandlerRegistry) Has(jobType JobType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[jobType]
	return exists
}

// Types returns all registered job types.
func (r *HandlerRegistry) Types() []JobType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]JobType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

// Execute dispatches a job to its registered handler.
func (r *HandlerRegistry) Execute(ctx context.Context, job *Job) error {
	handler := r.Get(job.Type)
	if handler == nil {
		return errors.Newf("no handler registered for job type %q", job.Type)
	}
	return handler.Execute(ctx, job)
}

// Notifier receives operator-facing queue events. The chat layer
// implements this to post permanent failures to the operator channel.
type Notifier interface {
	// JobFailed is called once when a job exhausts its retries.
	JobFailed(ctx context.Context, job *Job, jobErr error)

	// JobStalled is called when stall detection flags a job.
	JobStalled(ctx context.Context, job *Job)
}
