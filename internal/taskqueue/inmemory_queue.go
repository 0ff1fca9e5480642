package taskqueue

import (
	"context"
	"sync"
	"time"
)

// InMemoryQueue is a Queue implementation backed by a slice, safe for
// concurrent use. Unlike a plain channel it honors NotBefore, which durable
// timers depend on; Dequeue polls until a task becomes eligible.
type InMemoryQueue struct {
	mu           sync.Mutex
	tasks        []Task
	pollInterval time.Duration
}

// NewInMemoryQueue creates a new in-memory queue.
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		pollInterval: 10 * time.Millisecond,
	}
}

// Ensure InMemoryQueue implements Queue.
var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	if t.NotBefore.IsZero() {
		t.NotBefore = t.EnqueuedAt
	}

	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()
	return nil
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		if t := q.takeEligible(time.Now()); t != nil {
			return t, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

// takeEligible removes and returns the eligible task with the earliest
// NotBefore, or nil when nothing is due yet.
func (q *InMemoryQueue) takeEligible(now time.Time) *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	best := -1
	for i := range q.tasks {
		if q.tasks[i].NotBefore.After(now) {
			continue
		}
		if best < 0 || q.tasks[i].NotBefore.Before(q.tasks[best].NotBefore) {
			best = i
		}
	}
	if best < 0 {
		return nil
	}

	t := q.tasks[best]
	q.tasks = append(q.tasks[:best], q.tasks[best+1:]...)
	return &t
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
