package orchestrator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/petrijr/orchid/pkg/api"
)

// OrchestrationContext is the user-facing API of one replay pass. All
// interaction with the outside world — activities, timers, sub-orchestrations,
// external events, the clock — goes through it, so the body stays a pure
// function of history and input.
//
// Context methods that schedule work return futures immediately; nothing runs
// until the future is awaited, and even then the only thing that "runs" is a
// lookup against the recorded history.
type OrchestrationContext struct {
	instanceID       string
	parentInstanceID string
	input            json.RawMessage
	state            *OrchestrationState
}

// InstanceID returns the orchestration instance identifier.
func (c *OrchestrationContext) InstanceID() string { return c.instanceID }

// ParentInstanceID returns the parent instance identifier, or "" when this
// instance is not a sub-orchestration.
func (c *OrchestrationContext) ParentInstanceID() string { return c.parentInstanceID }

// Input returns the raw orchestration input.
func (c *OrchestrationContext) Input() json.RawMessage { return c.input }

// GetInput unmarshals the orchestration input into v.
func (c *OrchestrationContext) GetInput(v any) error {
	if len(c.input) == 0 {
		return nil
	}
	return json.Unmarshal(c.input, v)
}

// IsReplaying reports whether the pass is still consuming frames recorded by
// earlier invocations. Use it to suppress duplicate side effects such as
// logging.
func (c *OrchestrationContext) IsReplaying() bool { return c.state.isReplaying() }

// CurrentTime is the deterministic clock: the timestamp the host recorded
// when the current execution frame started. Orchestration bodies must use it
// instead of time.Now, which would observe a different value on every replay.
func (c *OrchestrationContext) CurrentTime() time.Time { return c.state.currentTime() }

// CallActivity schedules an activity function for execution and returns a
// future for its result. A failed activity resolves the future with a
// *api.TaskFailureError, which the body may branch on.
func (c *OrchestrationContext) CallActivity(name string, input any) *ActionFuture {
	return c.scheduleTask(
		api.EventTaskScheduled, api.EventTaskCompleted, api.EventTaskFailed,
		name, api.NewCallActivityAction(name, c.marshal(input)))
}

// CallActivityWithRetry is CallActivity with host-side retries: the host will
// re-run the activity up to retry.MaxNumberOfAttempts times before recording
// a failure.
func (c *OrchestrationContext) CallActivityWithRetry(name string, retry api.RetryOptions, input any) *ActionFuture {
	return c.scheduleTask(
		api.EventTaskScheduled, api.EventTaskCompleted, api.EventTaskFailed,
		name, api.NewCallActivityWithRetryAction(name, retry, c.marshal(input)))
}

// CallSubOrchestrator schedules another orchestration as a child of this one.
// instanceID may be empty, in which case the host assigns one.
func (c *OrchestrationContext) CallSubOrchestrator(name, instanceID string, input any) *ActionFuture {
	return c.scheduleTask(
		api.EventSubOrchestrationInstanceCreated,
		api.EventSubOrchestrationInstanceCompleted,
		api.EventSubOrchestrationInstanceFailed,
		name, api.NewCallSubOrchestratorAction(name, instanceID, c.marshal(input)))
}

// CallSubOrchestratorWithRetry is CallSubOrchestrator with host-side retries
// of the child instance.
func (c *OrchestrationContext) CallSubOrchestratorWithRetry(name, instanceID string, retry api.RetryOptions, input any) *ActionFuture {
	return c.scheduleTask(
		api.EventSubOrchestrationInstanceCreated,
		api.EventSubOrchestrationInstanceCompleted,
		api.EventSubOrchestrationInstanceFailed,
		name, api.NewCallSubOrchestratorWithRetryAction(name, instanceID, retry, c.marshal(input)))
}

// CreateTimer requests a durable timer from the host. The future resolves
// when the corresponding TimerFired event appears in history; there is no
// local timer thread.
func (c *OrchestrationContext) CreateTimer(fireAt time.Time) *ActionFuture {
	idx, ev, found := c.state.findStartEventByKind(api.EventTimerCreated)
	if !found {
		c.state.pushAction(api.NewCreateTimerAction(fireAt))
		return newPendingActionFuture(c.state)
	}
	ev.IsProcessed = true

	endIdx, endEv, ok := c.state.findEndEvent(idx, api.EventTimerFired, 0)
	if !ok {
		return newPendingActionFuture(c.state)
	}
	endEv.IsProcessed = true

	var fired json.RawMessage
	if endEv.FireAt != nil {
		fired = c.marshal(*endEv.FireAt)
	}
	return newResolvedActionFuture(c.state, Result{Value: fired}, endIdx)
}

// WaitForEvent returns a future that resolves when an external event with the
// given name is raised against this instance. Raised events are consumed in
// arrival order, one per wait.
func (c *OrchestrationContext) WaitForEvent(name string) *ActionFuture {
	idx, ev, found := c.state.findRaisedEvent(name)
	if !found {
		c.state.pushAction(api.NewWaitForExternalEventAction(name))
		return newPendingActionFuture(c.state)
	}
	ev.IsProcessed = true
	return newResolvedActionFuture(c.state, Result{Value: ev.Input}, idx)
}

// ContinueAsNew completes the orchestration and asks the host to restart it
// with the given input and an empty history, truncating replay cost for
// long-running loops. It does not return: the pass ends here.
func (c *OrchestrationContext) ContinueAsNew(input any) {
	c.state.pushAction(api.NewContinueAsNewAction(c.marshal(input)))
	panic(errContinuedAsNew)
}

// SetCustomStatus attaches an arbitrary user value to every response for this
// instance. It may be called any number of times; the last write wins.
func (c *OrchestrationContext) SetCustomStatus(v any) {
	c.state.setCustomStatus(c.marshal(v))
}

// JoinAll combines futures into one that resolves when all of them have,
// preserving construction order in the results.
func (c *OrchestrationContext) JoinAll(futures ...Future) *JoinAll {
	return newJoinAll(c.state, futures)
}

// SelectAll combines futures into one that resolves as soon as any of them
// has, returning the winner and the untouched remainder.
func (c *OrchestrationContext) SelectAll(futures ...Future) *SelectAll {
	return newSelectAll(c.state, futures)
}

// scheduleTask is the shared scheduling path for activities and
// sub-orchestrations: bind to the next matching scheduling event if history
// has one, otherwise record the action as newly issued this pass.
func (c *OrchestrationContext) scheduleTask(startKind, doneKind, failKind api.EventType, name string, action api.Action) *ActionFuture {
	idx, ev, found, err := c.state.findStartEvent(name, startKind)
	if err != nil {
		panic(err)
	}
	if !found {
		c.state.pushAction(action)
		return newPendingActionFuture(c.state)
	}
	ev.IsProcessed = true

	endIdx, endEv, ok := c.state.findEndEvent(idx, doneKind, failKind)
	if !ok {
		// Scheduled on an earlier pass, outcome not recorded yet.
		return newPendingActionFuture(c.state)
	}
	endEv.IsProcessed = true

	if endEv.EventType == failKind {
		failure := &api.TaskFailureError{Name: name, Reason: endEv.Reason, Details: endEv.Details}
		return newResolvedActionFuture(c.state, Result{Err: failure}, endIdx)
	}
	return newResolvedActionFuture(c.state, Result{Value: endEv.Result}, endIdx)
}

// marshal serializes a context argument. json.RawMessage values pass through
// untouched. Unserializable arguments are a programming error and abort the
// pass.
func (c *OrchestrationContext) marshal(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("orchestrator: marshal input: %w", err))
	}
	return data
}
