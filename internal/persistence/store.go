package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/petrijr/orchid/pkg/api"
)

// ErrInstanceNotFound is returned when an orchestration instance is not found.
var ErrInstanceNotFound = errors.New("instance not found")

// InstanceFilter is used to select instances from the store.
// Empty string / zero status mean "no filter" for that field.
type InstanceFilter struct {
	Name   string
	Status api.Status
}

// InstanceStore handles storage of orchestration instance records.
type InstanceStore interface {
	SaveInstance(inst *api.OrchestrationInstance) error
	UpdateInstance(inst *api.OrchestrationInstance) error
	GetInstance(id string) (*api.OrchestrationInstance, error)
	ListInstances(filter InstanceFilter) ([]*api.OrchestrationInstance, error)

	// TryAcquireLease attempts to acquire (or re-acquire) a lease on an
	// instance. Leases serialize replay passes: the host guarantee that no
	// two invocations of the same instance overlap is enforced here.
	//
	// If the instance is currently leased by another owner and the lease has
	// not expired, it returns acquired=false, err=nil. Implementations treat
	// a lease owned by the same owner as re-entrant.
	TryAcquireLease(ctx context.Context, instanceID, owner string, ttl time.Duration) (acquired bool, err error)

	// RenewLease extends an existing lease owned by 'owner' for the given ttl.
	RenewLease(ctx context.Context, instanceID, owner string, ttl time.Duration) error

	// ReleaseLease releases a lease if it is owned by 'owner'. It is idempotent.
	ReleaseLease(ctx context.Context, instanceID, owner string) error
}

// HistoryStore is the append-only history log, one ordered stream of events
// per instance. Appends within one call are atomic: a replay pass persists
// all of its new events or none of them.
type HistoryStore interface {
	AppendEvents(ctx context.Context, instanceID string, events []api.HistoryEvent) error
	ListEvents(ctx context.Context, instanceID string) ([]api.HistoryEvent, error)

	// ResetHistory atomically replaces the instance's log with the given
	// events. Used for continue-as-new, which restarts an instance with a
	// fresh history.
	ResetHistory(ctx context.Context, instanceID string, events []api.HistoryEvent) error
}
