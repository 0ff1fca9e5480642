package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/petrijr/orchid/pkg/api"
)

// OrchestratorFunc is the body of an orchestration. It is re-run from the
// beginning on every invocation, so it must be deterministic: all external
// effects go through the OrchestrationContext, and the returned output must
// be a pure function of the context's history and input.
type OrchestratorFunc func(ctx *OrchestrationContext) (any, error)

// ActivityFunc is a single unit of externally-executed work. Unlike
// orchestrators, activities run exactly once per scheduling and may freely
// perform I/O; their result (or error) is recorded in history.
type ActivityFunc func(ctx context.Context, input json.RawMessage) (any, error)

// Registry maps names to orchestrator and activity functions. It is safe for
// concurrent use; registration typically happens once at startup.
type Registry struct {
	mu            sync.RWMutex
	orchestrators map[string]OrchestratorFunc
	activities    map[string]ActivityFunc
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		orchestrators: make(map[string]OrchestratorFunc),
		activities:    make(map[string]ActivityFunc),
	}
}

// AddOrchestrator registers an orchestrator function under the given name.
func (r *Registry) AddOrchestrator(name string, fn OrchestratorFunc) error {
	if name == "" {
		return fmt.Errorf("orchestrator name is required")
	}
	if fn == nil {
		return fmt.Errorf("orchestrator %q has nil function", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orchestrators[name]; exists {
		return fmt.Errorf("orchestrator already registered: %s", name)
	}
	r.orchestrators[name] = fn
	return nil
}

// AddActivity registers an activity function under the given name.
func (r *Registry) AddActivity(name string, fn ActivityFunc) error {
	if name == "" {
		return fmt.Errorf("activity name is required")
	}
	if fn == nil {
		return fmt.Errorf("activity %q has nil function", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.activities[name]; exists {
		return fmt.Errorf("activity already registered: %s", name)
	}
	r.activities[name] = fn
	return nil
}

// Orchestrator looks up a registered orchestrator function.
func (r *Registry) Orchestrator(name string) (OrchestratorFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.orchestrators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrOrchestratorNotFound, name)
	}
	return fn, nil
}

// Activity looks up a registered activity function.
func (r *Registry) Activity(name string) (ActivityFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.activities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrActivityNotFound, name)
	}
	return fn, nil
}
