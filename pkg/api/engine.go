package api

import (
	"context"
	"encoding/json"
	"time"
)

// Engine is the host side of the replay protocol: it owns the durable
// instance records and history logs, drives replay passes, applies the
// actions each pass produces, and feeds completions back into history.
//
// The Run* methods are the worker-facing half: workers dequeue tasks and call
// them; everything else is the client-facing half.
type Engine interface {
	// Start creates a new orchestration instance and schedules its first
	// replay pass. The returned instance is in StatusPending until a worker
	// picks the pass up.
	Start(ctx context.Context, name string, input any) (*OrchestrationInstance, error)

	// RaiseEvent appends an external event to a running instance's history
	// and schedules a replay pass to observe it.
	RaiseEvent(ctx context.Context, instanceID, eventName string, payload any) error

	// Terminate forcibly ends a running instance. Queued tasks for the
	// instance become no-ops.
	Terminate(ctx context.Context, instanceID, reason string) error

	// GetInstance fetches the current instance record.
	GetInstance(ctx context.Context, id string) (*OrchestrationInstance, error)

	// ListInstances lists instance records according to the given options.
	ListInstances(ctx context.Context, opts InstanceListOptions) ([]*OrchestrationInstance, error)

	// GetHistory returns the instance's history log as currently persisted.
	GetHistory(ctx context.Context, id string) ([]HistoryEvent, error)

	// RunOrchestrationPass executes one replay pass for the instance:
	// deliver history, run the body, persist the resulting events, and
	// schedule the work the pass produced.
	RunOrchestrationPass(ctx context.Context, instanceID string) error

	// RunActivity executes a scheduled activity and appends its completion
	// (or failure) to the instance's history. Retries within the invocation's
	// budget are re-enqueued rather than recorded.
	RunActivity(ctx context.Context, inv ActivityInvocation) error

	// FireTimer appends a TimerFired event for a due timer.
	FireTimer(ctx context.Context, instanceID string, timerID int, fireAt time.Time) error
}

// ActivityInvocation is one attempt at a scheduled activity. TaskID is the
// EventID of the TaskScheduled event the result will correlate to. Attempt is
// 1-based; MaxAttempts includes the first attempt.
type ActivityInvocation struct {
	InstanceID    string
	TaskID        int
	Name          string
	Input         json.RawMessage
	Attempt       int
	MaxAttempts   int
	RetryInterval time.Duration
}
