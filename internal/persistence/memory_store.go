package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/petrijr/orchid/pkg/api"
)

// InMemoryStore is a goroutine-safe implementation of InstanceStore and
// HistoryStore backed by maps. Instances and history are copied in and out,
// so callers may freely mutate what they pass and what they get back.
type InMemoryStore struct {
	mu        sync.RWMutex
	instances map[string]api.OrchestrationInstance
	history   map[string][]api.HistoryEvent
	leases    map[string]lease
}

type lease struct {
	owner   string
	expires time.Time
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		instances: make(map[string]api.OrchestrationInstance),
		history:   make(map[string][]api.HistoryEvent),
		leases:    make(map[string]lease),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ InstanceStore = (*InMemoryStore)(nil)

var _ HistoryStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveInstance(inst *api.OrchestrationInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instances[inst.ID] = *inst
	return nil
}

func (s *InMemoryStore) UpdateInstance(inst *api.OrchestrationInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[inst.ID]; !ok {
		return ErrInstanceNotFound
	}

	s.instances[inst.ID] = *inst
	return nil
}

func (s *InMemoryStore) GetInstance(id string) (*api.OrchestrationInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}

	copied := inst
	return &copied, nil
}

func (s *InMemoryStore) ListInstances(filter InstanceFilter) ([]*api.OrchestrationInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.OrchestrationInstance

	for _, inst := range s.instances {
		if filter.Name != "" && inst.Name != filter.Name {
			continue
		}
		if filter.Status != "" && inst.Status != filter.Status {
			continue
		}
		copied := inst
		result = append(result, &copied)
	}

	return result, nil
}

func (s *InMemoryStore) TryAcquireLease(ctx context.Context, instanceID, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	l, ok := s.leases[instanceID]
	if ok && l.owner != owner && l.expires.After(now) {
		return false, nil
	}

	s.leases[instanceID] = lease{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (s *InMemoryStore) RenewLease(ctx context.Context, instanceID, owner string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leases[instanceID]
	if !ok || l.owner != owner {
		return ErrInstanceNotFound
	}

	l.expires = time.Now().Add(ttl)
	s.leases[instanceID] = l
	return nil
}

func (s *InMemoryStore) ReleaseLease(ctx context.Context, instanceID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leases[instanceID]
	if ok && l.owner == owner {
		delete(s.leases, instanceID)
	}
	return nil
}

func (s *InMemoryStore) AppendEvents(ctx context.Context, instanceID string, events []api.HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[instanceID] = append(s.history[instanceID], events...)
	return nil
}

func (s *InMemoryStore) ListEvents(ctx context.Context, instanceID string) ([]api.HistoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.history[instanceID]
	out := make([]api.HistoryEvent, len(log))
	copy(out, log)
	return out, nil
}

func (s *InMemoryStore) ResetHistory(ctx context.Context, instanceID string, events []api.HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := make([]api.HistoryEvent, len(events))
	copy(log, events)
	s.history[instanceID] = log
	return nil
}
