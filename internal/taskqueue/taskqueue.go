package taskqueue

import (
	"context"
	"encoding/json"
	"time"
)

// TaskType identifies what the worker should do.
type TaskType string

const (
	// TaskTypeOrchestration asks a worker to run one replay pass.
	TaskTypeOrchestration TaskType = "orchestration"

	// TaskTypeActivity asks a worker to execute a scheduled activity.
	TaskTypeActivity TaskType = "activity"

	// TaskTypeTimer asks a worker to fire a durable timer. Timer tasks carry
	// a NotBefore equal to the timer's fire-at time, so the queue itself is
	// what makes timers durable.
	TaskTypeTimer TaskType = "timer"
)

// Task represents a unit of work for the worker.
type Task struct {
	ID         string
	Type       TaskType
	InstanceID string

	// TaskID is the EventID of the scheduling event this task originates
	// from (TaskScheduled for activities, TimerCreated for timers). Zero for
	// orchestration passes.
	TaskID int

	// Name is the activity function name. Empty for other task types.
	Name string

	// Input is the serialized activity input.
	Input json.RawMessage

	// Attempt and MaxAttempts track host-side activity retries. Attempt is
	// 1-based; MaxAttempts includes the first attempt. RetryInterval is the
	// delay before a retry becomes eligible.
	Attempt       int
	MaxAttempts   int
	RetryInterval time.Duration

	// FireAt is the requested fire time for timer tasks.
	FireAt time.Time

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task should be eligible
	// for processing. Zero value means "immediately" (i.e., at enqueue time).
	NotBefore time.Time
}

// Queue is a simple async task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next eligible task, blocking until one
	// is available or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}
