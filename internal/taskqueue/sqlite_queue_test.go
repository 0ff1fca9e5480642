package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestSQLiteQueue(t *testing.T) *SQLiteQueue {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	q, err := NewSQLiteQueue(db)
	if err != nil {
		t.Fatalf("NewSQLiteQueue: %v", err)
	}
	return q
}

func TestSQLiteQueueRoundTrip(t *testing.T) {
	ctx := context.Background()
	q := newTestSQLiteQueue(t)

	task := Task{
		ID:         "t-1",
		Type:       TaskTypeActivity,
		InstanceID: "i-1",
		TaskID:     2,
		Name:       "Charge",
		Input:      []byte(`{"amount":100}`),
		Attempt:    1,
	}
	if err := q.Enqueue(ctx, task); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 task, got %d", q.Len())
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if got.ID != "t-1" || got.Type != TaskTypeActivity || got.Name != "Charge" {
		t.Fatalf("task not round-tripped: %+v", got)
	}
	if string(got.Input) != `{"amount":100}` {
		t.Fatalf("input not round-tripped: %q", got.Input)
	}
	if q.Len() != 0 {
		t.Fatalf("dequeued task still in the table, len=%d", q.Len())
	}
}

func TestSQLiteQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := newTestSQLiteQueue(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, Task{ID: id, Type: TaskTypeOrchestration, InstanceID: "i-1"}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	for _, want := range []string{"a", "b", "c"} {
		task, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if task.ID != want {
			t.Fatalf("expected task %q, got %q", want, task.ID)
		}
	}
}

func TestSQLiteQueueHonorsNotBefore(t *testing.T) {
	ctx := context.Background()
	q := newTestSQLiteQueue(t)

	now := time.Now()
	if err := q.Enqueue(ctx, Task{ID: "later", NotBefore: now.Add(80 * time.Millisecond)}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, Task{ID: "now"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	task, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if task.ID != "now" {
		t.Fatalf("expected the eligible task first, got %q", task.ID)
	}

	start := time.Now()
	task, err = q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if task.ID != "later" {
		t.Fatalf("expected deferred task, got %q", task.ID)
	}
	if waited := time.Since(start); waited < 50*time.Millisecond {
		t.Fatalf("deferred task delivered too early (waited %v)", waited)
	}
}

func TestSQLiteQueueDequeueCancellation(t *testing.T) {
	q := newTestSQLiteQueue(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}
