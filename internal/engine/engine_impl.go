package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/petrijr/orchid/internal/persistence"
	"github.com/petrijr/orchid/internal/taskqueue"
	"github.com/petrijr/orchid/pkg/api"
	"github.com/petrijr/orchid/pkg/orchestrator"
)

// engineImpl is the host side of the replay protocol: it owns instance
// records and history logs, delivers history to the orchestrator driver, and
// applies the actions each pass produces.
type engineImpl struct {
	instances persistence.InstanceStore
	history   persistence.HistoryStore
	queue     taskqueue.Queue
	registry  *orchestrator.Registry
	observer  api.Observer

	// workerID owns the instance leases this engine acquires while running a
	// pass. Leases enforce the one-invocation-per-instance guarantee.
	workerID string
	leaseTTL time.Duration
}

// Config describes how to construct an engineImpl.
// Only used inside this package; external callers use the helper functions.
type Config struct {
	Persistence persistence.Persistence
	Queue       taskqueue.Queue
	Registry    *orchestrator.Registry
	Observer    api.Observer
	LeaseTTL    time.Duration
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	ttl := cfg.LeaseTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &engineImpl{
		instances: cfg.Persistence.Instances,
		history:   cfg.Persistence.History,
		queue:     cfg.Queue,
		registry:  cfg.Registry,
		observer:  obs,
		workerID:  uuid.NewString(),
		leaseTTL:  ttl,
	}
}

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores,
// consuming tasks from the given queue.
func NewInMemoryEngine(reg *orchestrator.Registry, q taskqueue.Queue) api.Engine {
	return NewInMemoryEngineWithObserver(reg, q, nil)
}

// NewInMemoryEngineWithObserver is NewInMemoryEngine with an Observer.
func NewInMemoryEngineWithObserver(reg *orchestrator.Registry, q taskqueue.Queue, obs api.Observer) api.Engine {
	mem := persistence.NewInMemoryStore()
	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{Instances: mem, History: mem},
		Queue:       q,
		Registry:    reg,
		Observer:    obs,
	})
}

// NewSQLiteEngine returns an Engine that persists instances and history in a
// SQLite database.
func NewSQLiteEngine(db *sql.DB, reg *orchestrator.Registry, q taskqueue.Queue) (api.Engine, error) {
	return NewSQLiteEngineWithObserver(db, reg, q, nil)
}

// NewSQLiteEngineWithObserver is NewSQLiteEngine with an Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, reg *orchestrator.Registry, q taskqueue.Queue, obs api.Observer) (api.Engine, error) {
	inst, err := persistence.NewSQLiteInstanceStore(db)
	if err != nil {
		return nil, err
	}
	hist, err := persistence.NewSQLiteHistoryStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{Instances: inst, History: hist},
		Queue:       q,
		Registry:    reg,
		Observer:    obs,
	}), nil
}

// NewPostgresEngine returns an Engine that persists instances and history in
// PostgreSQL. The caller provides the driver via sql.Open.
func NewPostgresEngine(db *sql.DB, reg *orchestrator.Registry, q taskqueue.Queue) (api.Engine, error) {
	inst, err := persistence.NewPostgresInstanceStore(db)
	if err != nil {
		return nil, err
	}
	hist, err := persistence.NewPostgresHistoryStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{Instances: inst, History: hist},
		Queue:       q,
		Registry:    reg,
	}), nil
}

func (e *engineImpl) Start(ctx context.Context, name string, input any) (*api.OrchestrationInstance, error) {
	if _, err := e.registry.Orchestrator(name); err != nil {
		return nil, err
	}
	data, err := marshalPayload(input)
	if err != nil {
		return nil, err
	}
	return e.startInstance(ctx, uuid.NewString(), name, data, "", 0)
}

// startInstance creates the instance record, seeds its history with
// ExecutionStarted, and schedules the first replay pass.
func (e *engineImpl) startInstance(ctx context.Context, id, name string, input json.RawMessage, parentID string, parentTaskID int) (*api.OrchestrationInstance, error) {
	inst := &api.OrchestrationInstance{
		ID:           id,
		Name:         name,
		Status:       api.StatusPending,
		Input:        input,
		ParentID:     parentID,
		ParentTaskID: parentTaskID,
	}

	if err := e.instances.SaveInstance(inst); err != nil {
		return nil, err
	}

	started := api.HistoryEvent{
		EventType: api.EventExecutionStarted,
		EventID:   -1,
		Timestamp: time.Now().UTC(),
		Name:      name,
		Input:     input,
	}
	if err := e.history.AppendEvents(ctx, id, []api.HistoryEvent{started}); err != nil {
		return nil, err
	}

	e.observer.OnOrchestrationStart(ctx, inst)

	if err := e.enqueuePass(ctx, id, time.Time{}); err != nil {
		return nil, err
	}
	return inst, nil
}

func (e *engineImpl) RaiseEvent(ctx context.Context, instanceID, eventName string, payload any) error {
	inst, err := e.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.Status.Terminal() {
		return fmt.Errorf("cannot raise event on instance %s in status %s", instanceID, inst.Status)
	}

	data, err := marshalPayload(payload)
	if err != nil {
		return err
	}

	raised := api.HistoryEvent{
		EventType: api.EventEventRaised,
		EventID:   -1,
		Timestamp: time.Now().UTC(),
		Name:      eventName,
		Input:     data,
	}
	if err := e.history.AppendEvents(ctx, instanceID, []api.HistoryEvent{raised}); err != nil {
		return err
	}

	return e.enqueuePass(ctx, instanceID, time.Time{})
}

func (e *engineImpl) Terminate(ctx context.Context, instanceID, reason string) error {
	inst, err := e.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.Status.Terminal() {
		return fmt.Errorf("cannot terminate instance %s in status %s", instanceID, inst.Status)
	}

	terminated := api.HistoryEvent{
		EventType: api.EventExecutionTerminated,
		EventID:   -1,
		Timestamp: time.Now().UTC(),
		Reason:    reason,
	}
	if err := e.history.AppendEvents(ctx, instanceID, []api.HistoryEvent{terminated}); err != nil {
		return err
	}

	inst.Status = api.StatusTerminated
	inst.Err = reason
	return e.instances.UpdateInstance(inst)
}

func (e *engineImpl) GetInstance(ctx context.Context, id string) (*api.OrchestrationInstance, error) {
	inst, err := e.instances.GetInstance(id)
	if err != nil {
		if errors.Is(err, persistence.ErrInstanceNotFound) {
			return nil, fmt.Errorf("%w: %s", api.ErrInstanceNotFound, id)
		}
		return nil, err
	}
	return inst, nil
}

func (e *engineImpl) ListInstances(ctx context.Context, opts api.InstanceListOptions) ([]*api.OrchestrationInstance, error) {
	filter := persistence.InstanceFilter{
		Name:   opts.Name,
		Status: opts.Status,
	}
	return e.instances.ListInstances(filter)
}

func (e *engineImpl) GetHistory(ctx context.Context, id string) ([]api.HistoryEvent, error) {
	if _, err := e.GetInstance(ctx, id); err != nil {
		return nil, err
	}
	return e.history.ListEvents(ctx, id)
}

// RunOrchestrationPass executes one replay pass under the instance lease.
// Tasks delivered for terminal instances are stale and ignored.
func (e *engineImpl) RunOrchestrationPass(ctx context.Context, instanceID string) error {
	inst, err := e.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.Status.Terminal() {
		return nil
	}

	acquired, err := e.instances.TryAcquireLease(ctx, instanceID, e.workerID, e.leaseTTL)
	if err != nil {
		return err
	}
	if !acquired {
		// Another worker holds the instance; try again shortly.
		return e.enqueuePass(ctx, instanceID, time.Now().Add(50*time.Millisecond))
	}
	defer func() {
		_ = e.instances.ReleaseLease(ctx, instanceID, e.workerID)
	}()

	events, err := e.history.ListEvents(ctx, instanceID)
	if err != nil {
		return err
	}

	frame := api.HistoryEvent{
		EventType: api.EventOrchestratorStarted,
		EventID:   -1,
		Timestamp: time.Now().UTC(),
	}

	req := api.InvocationRequest{
		InstanceID: instanceID,
		Name:       inst.Name,
		Input:      inst.Input,
		History:    append(events, frame),
	}
	if inst.ParentID != "" {
		parent := inst.ParentID
		req.ParentInstanceID = &parent
	}

	started := time.Now()
	resp := orchestrator.Execute(req, e.registry)
	duration := time.Since(started)

	inst.CustomStatus = resp.Result.CustomStatus

	switch {
	case resp.Status == api.InvocationFailed:
		return e.completePassFailed(ctx, inst, frame, resp.Message, duration)
	case resp.Result.IsDone:
		return e.completePassDone(ctx, inst, frame, resp.Result.Output, duration)
	default:
		return e.completePassPending(ctx, inst, frame, events, resp.Result.NewActions(), duration)
	}
}

func (e *engineImpl) completePassFailed(ctx context.Context, inst *api.OrchestrationInstance, frame api.HistoryEvent, message string, duration time.Duration) error {
	now := time.Now().UTC()
	newEvents := []api.HistoryEvent{
		frame,
		{EventType: api.EventExecutionFailed, EventID: -1, Timestamp: now, Reason: message},
		{EventType: api.EventOrchestratorCompleted, EventID: -1, Timestamp: now},
	}
	if err := e.history.AppendEvents(ctx, inst.ID, newEvents); err != nil {
		return err
	}

	inst.Status = api.StatusFailed
	inst.Err = message
	if err := e.instances.UpdateInstance(inst); err != nil {
		return err
	}

	failure := errors.New(message)
	e.observer.OnOrchestrationFailed(ctx, inst, failure)
	e.observer.OnPassCompleted(ctx, inst, false, 0, duration)

	return e.notifyParent(ctx, inst, nil, message)
}

func (e *engineImpl) completePassDone(ctx context.Context, inst *api.OrchestrationInstance, frame api.HistoryEvent, output json.RawMessage, duration time.Duration) error {
	now := time.Now().UTC()
	newEvents := []api.HistoryEvent{
		frame,
		{EventType: api.EventExecutionCompleted, EventID: -1, Timestamp: now, Result: output},
		{EventType: api.EventOrchestratorCompleted, EventID: -1, Timestamp: now},
	}
	if err := e.history.AppendEvents(ctx, inst.ID, newEvents); err != nil {
		return err
	}

	inst.Status = api.StatusCompleted
	inst.Output = output
	if err := e.instances.UpdateInstance(inst); err != nil {
		return err
	}

	e.observer.OnOrchestrationCompleted(ctx, inst)
	e.observer.OnPassCompleted(ctx, inst, true, 0, duration)

	return e.notifyParent(ctx, inst, output, "")
}

// completePassPending applies the actions a suspended pass produced: persist
// the scheduling events first, then hand the work to the queue. ContinueAsNew
// short-circuits everything else: the history is replaced wholesale.
func (e *engineImpl) completePassPending(ctx context.Context, inst *api.OrchestrationInstance, frame api.HistoryEvent, prior []api.HistoryEvent, actions []api.Action, duration time.Duration) error {
	now := time.Now().UTC()

	for _, a := range actions {
		if a.ActionType == api.ActionContinueAsNew {
			return e.continueAsNew(ctx, inst, a.Input, len(actions), duration)
		}
	}

	newEvents := []api.HistoryEvent{frame}
	var tasks []taskqueue.Task
	var children []childStart
	nextID := nextEventID(prior)

	for _, a := range actions {
		switch a.ActionType {
		case api.ActionCallActivity, api.ActionCallActivityWithRetry:
			maxAttempts := 1
			var interval time.Duration
			if a.RetryOptions != nil {
				maxAttempts = a.RetryOptions.MaxNumberOfAttempts
				interval = a.RetryOptions.Interval()
			}
			newEvents = append(newEvents, api.HistoryEvent{
				EventType: api.EventTaskScheduled,
				EventID:   nextID,
				Timestamp: now,
				Name:      a.FunctionName,
				Input:     a.Input,
			})
			tasks = append(tasks, taskqueue.Task{
				ID:            uuid.NewString(),
				Type:          taskqueue.TaskTypeActivity,
				InstanceID:    inst.ID,
				TaskID:        nextID,
				Name:          a.FunctionName,
				Input:         a.Input,
				Attempt:       1,
				MaxAttempts:   maxAttempts,
				RetryInterval: interval,
			})
			nextID++

		case api.ActionCreateTimer:
			fireAt := now
			if a.FireAt != nil {
				fireAt = a.FireAt.UTC()
			}
			fire := fireAt
			newEvents = append(newEvents, api.HistoryEvent{
				EventType: api.EventTimerCreated,
				EventID:   nextID,
				Timestamp: now,
				FireAt:    &fire,
			})
			tasks = append(tasks, taskqueue.Task{
				ID:         uuid.NewString(),
				Type:       taskqueue.TaskTypeTimer,
				InstanceID: inst.ID,
				TaskID:     nextID,
				FireAt:     fireAt,
				NotBefore:  fireAt,
			})
			nextID++

		case api.ActionCallSubOrchestrator, api.ActionCallSubOrchestratorWithRetry:
			childID := uuid.NewString()
			if a.InstanceID != nil && *a.InstanceID != "" {
				childID = *a.InstanceID
			}
			newEvents = append(newEvents, api.HistoryEvent{
				EventType:  api.EventSubOrchestrationInstanceCreated,
				EventID:    nextID,
				Timestamp:  now,
				Name:       a.FunctionName,
				Input:      a.Input,
				InstanceID: childID,
			})
			children = append(children, childStart{
				id:           childID,
				name:         a.FunctionName,
				input:        a.Input,
				parentTaskID: nextID,
			})
			nextID++

		case api.ActionWaitForExternalEvent:
			// Nothing to schedule: the raised event itself will be the
			// history record.

		default:
			return fmt.Errorf("instance %s: unsupported action type %q", inst.ID, a.ActionType)
		}
	}

	newEvents = append(newEvents, api.HistoryEvent{
		EventType: api.EventOrchestratorCompleted,
		EventID:   -1,
		Timestamp: now,
	})
	if err := e.history.AppendEvents(ctx, inst.ID, newEvents); err != nil {
		return err
	}

	if inst.Status == api.StatusPending {
		inst.Status = api.StatusRunning
	}
	if err := e.instances.UpdateInstance(inst); err != nil {
		return err
	}

	for _, t := range tasks {
		if err := e.queue.Enqueue(ctx, t); err != nil {
			return err
		}
	}
	for _, c := range children {
		if _, err := e.startInstance(ctx, c.id, c.name, c.input, inst.ID, c.parentTaskID); err != nil {
			return err
		}
	}

	e.observer.OnPassCompleted(ctx, inst, false, len(actions), duration)
	return nil
}

type childStart struct {
	id           string
	name         string
	input        json.RawMessage
	parentTaskID int
}

// continueAsNew restarts the instance with the given input and a fresh
// history, truncating replay cost for long-running loops.
func (e *engineImpl) continueAsNew(ctx context.Context, inst *api.OrchestrationInstance, input json.RawMessage, actions int, duration time.Duration) error {
	started := api.HistoryEvent{
		EventType: api.EventExecutionStarted,
		EventID:   -1,
		Timestamp: time.Now().UTC(),
		Name:      inst.Name,
		Input:     input,
	}
	if err := e.history.ResetHistory(ctx, inst.ID, []api.HistoryEvent{started}); err != nil {
		return err
	}

	inst.Input = input
	if inst.Status == api.StatusPending {
		inst.Status = api.StatusRunning
	}
	if err := e.instances.UpdateInstance(inst); err != nil {
		return err
	}

	e.observer.OnPassCompleted(ctx, inst, false, actions, duration)
	return e.enqueuePass(ctx, inst.ID, time.Time{})
}

// notifyParent appends the sub-orchestration outcome to the parent's history
// and wakes the parent. No-op for root instances.
func (e *engineImpl) notifyParent(ctx context.Context, child *api.OrchestrationInstance, output json.RawMessage, failure string) error {
	if child.ParentID == "" {
		return nil
	}

	parent, err := e.GetInstance(ctx, child.ParentID)
	if err != nil {
		if errors.Is(err, api.ErrInstanceNotFound) {
			return nil
		}
		return err
	}
	if parent.Status.Terminal() {
		return nil
	}

	taskID := child.ParentTaskID
	ev := api.HistoryEvent{
		EventID:         -1,
		Timestamp:       time.Now().UTC(),
		TaskScheduledID: &taskID,
		InstanceID:      child.ID,
	}
	if failure != "" {
		ev.EventType = api.EventSubOrchestrationInstanceFailed
		ev.Reason = failure
	} else {
		ev.EventType = api.EventSubOrchestrationInstanceCompleted
		ev.Result = output
	}

	if err := e.history.AppendEvents(ctx, child.ParentID, []api.HistoryEvent{ev}); err != nil {
		return err
	}
	return e.enqueuePass(ctx, child.ParentID, time.Time{})
}

// RunActivity executes one attempt of a scheduled activity. Failures within
// the retry budget are re-enqueued without touching history; the final
// outcome is appended as TaskCompleted or TaskFailed.
func (e *engineImpl) RunActivity(ctx context.Context, inv api.ActivityInvocation) error {
	inst, err := e.GetInstance(ctx, inv.InstanceID)
	if err != nil {
		return err
	}
	if inst.Status.Terminal() {
		return nil
	}

	result, actErr := e.invokeActivity(ctx, inv)

	if actErr != nil && inv.Attempt < inv.MaxAttempts {
		retry := taskqueue.Task{
			ID:            uuid.NewString(),
			Type:          taskqueue.TaskTypeActivity,
			InstanceID:    inv.InstanceID,
			TaskID:        inv.TaskID,
			Name:          inv.Name,
			Input:         inv.Input,
			Attempt:       inv.Attempt + 1,
			MaxAttempts:   inv.MaxAttempts,
			RetryInterval: inv.RetryInterval,
			NotBefore:     time.Now().Add(inv.RetryInterval),
		}
		return e.queue.Enqueue(ctx, retry)
	}

	taskID := inv.TaskID
	ev := api.HistoryEvent{
		EventID:         -1,
		Timestamp:       time.Now().UTC(),
		TaskScheduledID: &taskID,
	}
	if actErr != nil {
		ev.EventType = api.EventTaskFailed
		ev.Reason = actErr.Error()
	} else {
		ev.EventType = api.EventTaskCompleted
		ev.Result = result
	}

	if err := e.history.AppendEvents(ctx, inv.InstanceID, []api.HistoryEvent{ev}); err != nil {
		return err
	}
	return e.enqueuePass(ctx, inv.InstanceID, time.Time{})
}

func (e *engineImpl) invokeActivity(ctx context.Context, inv api.ActivityInvocation) (json.RawMessage, error) {
	fn, err := e.registry.Activity(inv.Name)
	if err != nil {
		return nil, err
	}

	e.observer.OnActivityStart(ctx, inv.InstanceID, inv.Name, inv.TaskID)
	started := time.Now()
	out, err := fn(ctx, inv.Input)
	duration := time.Since(started)
	e.observer.OnActivityCompleted(ctx, inv.InstanceID, inv.Name, inv.TaskID, err, duration)

	if err != nil {
		return nil, err
	}
	return marshalPayload(out)
}

// FireTimer records that a durable timer is due and wakes the instance.
func (e *engineImpl) FireTimer(ctx context.Context, instanceID string, timerID int, fireAt time.Time) error {
	inst, err := e.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.Status.Terminal() {
		return nil
	}

	id := timerID
	fire := fireAt.UTC()
	fired := api.HistoryEvent{
		EventType: api.EventTimerFired,
		EventID:   -1,
		Timestamp: time.Now().UTC(),
		TimerID:   &id,
		FireAt:    &fire,
	}
	if err := e.history.AppendEvents(ctx, instanceID, []api.HistoryEvent{fired}); err != nil {
		return err
	}
	return e.enqueuePass(ctx, instanceID, time.Time{})
}

func (e *engineImpl) enqueuePass(ctx context.Context, instanceID string, notBefore time.Time) error {
	return e.queue.Enqueue(ctx, taskqueue.Task{
		ID:         uuid.NewString(),
		Type:       taskqueue.TaskTypeOrchestration,
		InstanceID: instanceID,
		NotBefore:  notBefore,
	})
}

// nextEventID allocates scheduling-event ids above everything already in
// history. Framing events carry id -1 and are ignored.
func nextEventID(events []api.HistoryEvent) int {
	next := 0
	for _, e := range events {
		if e.EventID >= next {
			next = e.EventID + 1
		}
	}
	return next
}

func marshalPayload(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}
