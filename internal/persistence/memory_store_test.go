package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/petrijr/orchid/pkg/api"
)

func TestInMemoryInstanceCRUD(t *testing.T) {
	s := NewInMemoryStore()

	inst := &api.OrchestrationInstance{ID: "i-1", Name: "Hello", Status: api.StatusPending}
	if err := s.SaveInstance(inst); err != nil {
		t.Fatalf("SaveInstance: %v", err)
	}

	got, err := s.GetInstance("i-1")
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if got.Name != "Hello" || got.Status != api.StatusPending {
		t.Fatalf("unexpected instance: %+v", got)
	}

	// The store hands out copies.
	got.Status = api.StatusFailed
	again, err := s.GetInstance("i-1")
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if again.Status != api.StatusPending {
		t.Fatalf("mutation leaked into the store: %+v", again)
	}

	inst.Status = api.StatusCompleted
	inst.Output = []byte(`"done"`)
	if err := s.UpdateInstance(inst); err != nil {
		t.Fatalf("UpdateInstance: %v", err)
	}
	got, err = s.GetInstance("i-1")
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if got.Status != api.StatusCompleted || string(got.Output) != `"done"` {
		t.Fatalf("update not applied: %+v", got)
	}
}

func TestInMemoryInstanceNotFound(t *testing.T) {
	s := NewInMemoryStore()

	if _, err := s.GetInstance("nope"); !errors.Is(err, ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound, got %v", err)
	}
	if err := s.UpdateInstance(&api.OrchestrationInstance{ID: "nope"}); !errors.Is(err, ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound, got %v", err)
	}
}

func TestInMemoryListInstancesFilters(t *testing.T) {
	s := NewInMemoryStore()
	seed := []*api.OrchestrationInstance{
		{ID: "a", Name: "Hello", Status: api.StatusRunning},
		{ID: "b", Name: "Hello", Status: api.StatusCompleted},
		{ID: "c", Name: "Other", Status: api.StatusRunning},
	}
	for _, inst := range seed {
		if err := s.SaveInstance(inst); err != nil {
			t.Fatalf("SaveInstance: %v", err)
		}
	}

	all, err := s.ListInstances(InstanceFilter{})
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 instances, got %d", len(all))
	}

	hellos, err := s.ListInstances(InstanceFilter{Name: "Hello"})
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if len(hellos) != 2 {
		t.Fatalf("expected 2 Hello instances, got %d", len(hellos))
	}

	running, err := s.ListInstances(InstanceFilter{Name: "Hello", Status: api.StatusRunning})
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if len(running) != 1 || running[0].ID != "a" {
		t.Fatalf("unexpected filter result: %+v", running)
	}
}

func TestInMemoryLease(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	acquired, err := s.TryAcquireLease(ctx, "i-1", "w1", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("first acquire: acquired=%v err=%v", acquired, err)
	}

	// A different owner is locked out while the lease is live.
	acquired, err = s.TryAcquireLease(ctx, "i-1", "w2", time.Minute)
	if err != nil {
		t.Fatalf("TryAcquireLease: %v", err)
	}
	if acquired {
		t.Fatal("w2 acquired a live lease owned by w1")
	}

	// Same owner is re-entrant.
	acquired, err = s.TryAcquireLease(ctx, "i-1", "w1", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("re-entrant acquire: acquired=%v err=%v", acquired, err)
	}

	if err := s.RenewLease(ctx, "i-1", "w1", time.Minute); err != nil {
		t.Fatalf("RenewLease: %v", err)
	}
	if err := s.RenewLease(ctx, "i-1", "w2", time.Minute); err == nil {
		t.Fatal("RenewLease by non-owner should fail")
	}

	// Release by non-owner is a no-op; the lease stays with w1.
	if err := s.ReleaseLease(ctx, "i-1", "w2"); err != nil {
		t.Fatalf("ReleaseLease: %v", err)
	}
	acquired, _ = s.TryAcquireLease(ctx, "i-1", "w2", time.Minute)
	if acquired {
		t.Fatal("release by non-owner dropped the lease")
	}

	if err := s.ReleaseLease(ctx, "i-1", "w1"); err != nil {
		t.Fatalf("ReleaseLease: %v", err)
	}
	acquired, err = s.TryAcquireLease(ctx, "i-1", "w2", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("acquire after release: acquired=%v err=%v", acquired, err)
	}
}

func TestInMemoryLeaseExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	acquired, err := s.TryAcquireLease(ctx, "i-1", "w1", 10*time.Millisecond)
	if err != nil || !acquired {
		t.Fatalf("acquire: acquired=%v err=%v", acquired, err)
	}

	time.Sleep(20 * time.Millisecond)

	acquired, err = s.TryAcquireLease(ctx, "i-1", "w2", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("expired lease should be stealable: acquired=%v err=%v", acquired, err)
	}
}

func TestInMemoryHistoryAppendAndReset(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	events := []api.HistoryEvent{
		{EventType: api.EventExecutionStarted, EventID: -1, Name: "Hello"},
		{EventType: api.EventOrchestratorStarted, EventID: -1},
	}
	if err := s.AppendEvents(ctx, "i-1", events); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}
	if err := s.AppendEvents(ctx, "i-1", []api.HistoryEvent{
		{EventType: api.EventTaskScheduled, EventID: 0, Name: "A"},
	}); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}

	log, err := s.ListEvents(ctx, "i-1")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(log) != 3 {
		t.Fatalf("expected 3 events, got %d", len(log))
	}
	if log[2].EventType != api.EventTaskScheduled || log[2].Name != "A" {
		t.Fatalf("events out of order: %+v", log)
	}

	// Reset replaces the log wholesale (continue-as-new).
	fresh := []api.HistoryEvent{{EventType: api.EventExecutionStarted, EventID: -1, Name: "Hello"}}
	if err := s.ResetHistory(ctx, "i-1", fresh); err != nil {
		t.Fatalf("ResetHistory: %v", err)
	}
	log, err = s.ListEvents(ctx, "i-1")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(log) != 1 || log[0].EventType != api.EventExecutionStarted {
		t.Fatalf("reset not applied: %+v", log)
	}

	// Unknown instances have an empty log, not an error.
	log, err = s.ListEvents(ctx, "unknown")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(log) != 0 {
		t.Fatalf("expected empty log, got %d events", len(log))
	}
}
