package api

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionType identifies what the host should schedule on behalf of the
// orchestration. The string values are part of the host wire protocol.
type ActionType string

const (
	ActionCallActivity                 ActionType = "callActivity"
	ActionCallActivityWithRetry        ActionType = "callActivityWithRetry"
	ActionCallSubOrchestrator          ActionType = "callSubOrchestrator"
	ActionCallSubOrchestratorWithRetry ActionType = "callSubOrchestratorWithRetry"
	ActionContinueAsNew                ActionType = "continueAsNew"
	ActionCreateTimer                  ActionType = "createTimer"
	ActionWaitForExternalEvent         ActionType = "waitForExternalEvent"
)

// RetryOptions controls host-side retries of a scheduled activity or
// sub-orchestration. MaxNumberOfAttempts includes the first attempt.
type RetryOptions struct {
	FirstRetryIntervalInMilliseconds int `json:"firstRetryIntervalInMilliseconds"`
	MaxNumberOfAttempts              int `json:"maxNumberOfAttempts"`
}

// Interval returns the first retry interval as a duration.
func (r RetryOptions) Interval() time.Duration {
	return time.Duration(r.FirstRetryIntervalInMilliseconds) * time.Millisecond
}

// Action describes one unit of work requested by the current pass that has no
// corresponding history entry yet. Which fields are meaningful depends on
// ActionType; MarshalJSON emits exactly the fields the host expects for each
// kind.
type Action struct {
	ActionType   ActionType      `json:"actionType"`
	FunctionName string          `json:"functionName,omitempty"`
	Input        json.RawMessage `json:"input,omitempty"`
	RetryOptions *RetryOptions   `json:"retryOptions,omitempty"`

	// InstanceID is the requested instance id for sub-orchestrations. Nil
	// lets the host pick one.
	InstanceID *string `json:"instanceId,omitempty"`

	// FireAt and IsCancelled apply to createTimer actions only.
	FireAt      *time.Time `json:"fireAt,omitempty"`
	IsCancelled bool       `json:"isCancelled,omitempty"`

	ExternalEventName string `json:"externalEventName,omitempty"`
}

// NewCallActivityAction builds a callActivity action.
func NewCallActivityAction(name string, input json.RawMessage) Action {
	return Action{ActionType: ActionCallActivity, FunctionName: name, Input: input}
}

// NewCallActivityWithRetryAction builds a callActivityWithRetry action.
func NewCallActivityWithRetryAction(name string, retry RetryOptions, input json.RawMessage) Action {
	return Action{ActionType: ActionCallActivityWithRetry, FunctionName: name, RetryOptions: &retry, Input: input}
}

// NewCallSubOrchestratorAction builds a callSubOrchestrator action.
// instanceID may be empty, in which case the host assigns one.
func NewCallSubOrchestratorAction(name, instanceID string, input json.RawMessage) Action {
	a := Action{ActionType: ActionCallSubOrchestrator, FunctionName: name, Input: input}
	if instanceID != "" {
		a.InstanceID = &instanceID
	}
	return a
}

// NewCallSubOrchestratorWithRetryAction builds a callSubOrchestratorWithRetry
// action. instanceID may be empty, in which case the host assigns one.
func NewCallSubOrchestratorWithRetryAction(name, instanceID string, retry RetryOptions, input json.RawMessage) Action {
	a := Action{ActionType: ActionCallSubOrchestratorWithRetry, FunctionName: name, RetryOptions: &retry, Input: input}
	if instanceID != "" {
		a.InstanceID = &instanceID
	}
	return a
}

// NewContinueAsNewAction builds a continueAsNew action.
func NewContinueAsNewAction(input json.RawMessage) Action {
	return Action{ActionType: ActionContinueAsNew, Input: input}
}

// NewCreateTimerAction builds a createTimer action.
func NewCreateTimerAction(fireAt time.Time) Action {
	return Action{ActionType: ActionCreateTimer, FireAt: &fireAt}
}

// NewWaitForExternalEventAction builds a waitForExternalEvent action.
func NewWaitForExternalEventAction(name string) Action {
	return Action{ActionType: ActionWaitForExternalEvent, ExternalEventName: name}
}

// MarshalJSON serializes the per-kind field subset in the order the host's
// deserializer was written against.
func (a Action) MarshalJSON() ([]byte, error) {
	switch a.ActionType {
	case ActionCallActivity:
		return json.Marshal(struct {
			ActionType   ActionType      `json:"actionType"`
			FunctionName string          `json:"functionName"`
			Input        json.RawMessage `json:"input"`
		}{a.ActionType, a.FunctionName, a.Input})
	case ActionCallActivityWithRetry:
		return json.Marshal(struct {
			ActionType   ActionType      `json:"actionType"`
			FunctionName string          `json:"functionName"`
			RetryOptions *RetryOptions   `json:"retryOptions"`
			Input        json.RawMessage `json:"input"`
		}{a.ActionType, a.FunctionName, a.RetryOptions, a.Input})
	case ActionCallSubOrchestrator:
		return json.Marshal(struct {
			ActionType   ActionType      `json:"actionType"`
			FunctionName string          `json:"functionName"`
			InstanceID   *string         `json:"instanceId"`
			Input        json.RawMessage `json:"input"`
		}{a.ActionType, a.FunctionName, a.InstanceID, a.Input})
	case ActionCallSubOrchestratorWithRetry:
		return json.Marshal(struct {
			ActionType   ActionType      `json:"actionType"`
			FunctionName string          `json:"functionName"`
			RetryOptions *RetryOptions   `json:"retryOptions"`
			InstanceID   *string         `json:"instanceId"`
			Input        json.RawMessage `json:"input"`
		}{a.ActionType, a.FunctionName, a.RetryOptions, a.InstanceID, a.Input})
	case ActionContinueAsNew:
		return json.Marshal(struct {
			ActionType ActionType      `json:"actionType"`
			Input      json.RawMessage `json:"input"`
		}{a.ActionType, a.Input})
	case ActionCreateTimer:
		return json.Marshal(struct {
			ActionType  ActionType `json:"actionType"`
			FireAt      *time.Time `json:"fireAt"`
			IsCancelled bool       `json:"isCancelled"`
		}{a.ActionType, a.FireAt, a.IsCancelled})
	case ActionWaitForExternalEvent:
		return json.Marshal(struct {
			ActionType        ActionType `json:"actionType"`
			ExternalEventName string     `json:"externalEventName"`
		}{a.ActionType, a.ExternalEventName})
	}
	return nil, fmt.Errorf("unknown action type %q", a.ActionType)
}

// UnmarshalJSON decodes any action kind into the flat struct.
func (a *Action) UnmarshalJSON(data []byte) error {
	type plain Action
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = Action(p)
	return nil
}
