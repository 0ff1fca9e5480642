package orchid

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/petrijr/orchid/internal/engine"
	"github.com/petrijr/orchid/internal/taskqueue"
	"github.com/petrijr/orchid/pkg/api"
	"github.com/petrijr/orchid/pkg/orchestrator"
)

// Re-export key types so users don't need to dig into pkg/api and
// pkg/orchestrator.

type (
	Engine                = api.Engine
	OrchestrationInstance = api.OrchestrationInstance
	InstanceListOptions   = api.InstanceListOptions
	Status                = api.Status
	HistoryEvent          = api.HistoryEvent
	EventType             = api.EventType
	Action                = api.Action
	RetryOptions          = api.RetryOptions
	TaskFailureError      = api.TaskFailureError
	Observer              = api.Observer
	LoggingObserver       = api.LoggingObserver
	BasicMetrics          = api.BasicMetrics
	BasicMetricsSnapshot  = api.BasicMetricsSnapshot
	CompositeObserver     = api.CompositeObserver
	NoopObserver          = api.NoopObserver

	Registry             = orchestrator.Registry
	OrchestrationContext = orchestrator.OrchestrationContext
	OrchestratorFunc     = orchestrator.OrchestratorFunc
	ActivityFunc         = orchestrator.ActivityFunc
	ActionFuture         = orchestrator.ActionFuture
	Future               = orchestrator.Future
	Result               = orchestrator.Result
	JoinAll              = orchestrator.JoinAll
	SelectAll            = orchestrator.SelectAll
)

// Re-export common helpers.

var (
	NewRegistry          = orchestrator.NewRegistry
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver

	// AsTaskFailure extracts the failure details of a failed activity or
	// sub-orchestration from an awaited error.
	AsTaskFailure = api.AsTaskFailure
)

// Re-export status values for convenience.

const (
	StatusPending    = api.StatusPending
	StatusRunning    = api.StatusRunning
	StatusCompleted  = api.StatusCompleted
	StatusFailed     = api.StatusFailed
	StatusTerminated = api.StatusTerminated
)

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores and
// an in-memory task queue. Use NewLocalRunner when you also want workers
// managed for you.
func NewInMemoryEngine(reg *Registry) Engine {
	return engine.NewInMemoryEngine(reg, taskqueue.NewInMemoryQueue())
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given Observer.
func NewInMemoryEngineWithObserver(reg *Registry, obs Observer) Engine {
	return engine.NewInMemoryEngineWithObserver(reg, taskqueue.NewInMemoryQueue(), obs)
}

// NewSQLiteEngine returns an Engine that persists instances, history, and
// queued tasks in a SQLite database.
func NewSQLiteEngine(db *sql.DB, reg *Registry) (Engine, error) {
	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}
	return engine.NewSQLiteEngine(db, reg, q)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, reg *Registry, obs Observer) (Engine, error) {
	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}
	return engine.NewSQLiteEngineWithObserver(db, reg, q, obs)
}

// NewPostgresEngine returns an Engine that persists instances and history in
// PostgreSQL. The task queue remains in-memory; a durable queue backend can
// be wired through internal/taskqueue the same way SQLite is.
func NewPostgresEngine(db *sql.DB, reg *Registry) (Engine, error) {
	return engine.NewPostgresEngine(db, reg, taskqueue.NewInMemoryQueue())
}

// Convenience helpers that just forward to the underlying Engine.

// Start creates a new orchestration instance and schedules its first pass.
func Start(ctx context.Context, eng Engine, name string, input any) (*OrchestrationInstance, error) {
	return eng.Start(ctx, name, input)
}

// RaiseEvent delivers an external event to a running instance.
func RaiseEvent(ctx context.Context, eng Engine, instanceID, eventName string, payload any) error {
	return eng.RaiseEvent(ctx, instanceID, eventName, payload)
}

// Terminate forcibly ends a running instance.
func Terminate(ctx context.Context, eng Engine, instanceID, reason string) error {
	return eng.Terminate(ctx, instanceID, reason)
}

// GetInstance fetches an instance by ID.
func GetInstance(ctx context.Context, eng Engine, id string) (*OrchestrationInstance, error) {
	return eng.GetInstance(ctx, id)
}

// ListInstances lists orchestration instances according to the given options.
func ListInstances(ctx context.Context, eng Engine, opts InstanceListOptions) ([]*OrchestrationInstance, error) {
	return eng.ListInstances(ctx, opts)
}

// WaitForCompletion polls until the instance reaches a terminal status or the
// context is cancelled. It is a convenience for tests and simple embeddings;
// long-running callers should watch instance status themselves.
func WaitForCompletion(ctx context.Context, eng Engine, id string) (*OrchestrationInstance, error) {
	for {
		inst, err := eng.GetInstance(ctx, id)
		if err != nil {
			return nil, err
		}
		if inst.Status.Terminal() {
			return inst, nil
		}

		select {
		case <-ctx.Done():
			return inst, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// ErrNotTerminal is returned by Output when the instance is still running.
var ErrNotTerminal = errors.New("orchid: instance has not reached a terminal status")

// Output unmarshals a completed instance's output into v.
func Output(inst *OrchestrationInstance, v any) error {
	if !inst.Status.Terminal() {
		return ErrNotTerminal
	}
	if len(inst.Output) == 0 {
		return nil
	}
	return json.Unmarshal(inst.Output, v)
}
