package api

import (
	"encoding/json"
)

// ExecutionResult is the outcome envelope of one replay pass. It is what the
// engine hands back to the host: either a final output (IsDone) or the action
// batches the host must schedule before redelivering the instance.
//
// Actions is a list of batches, one per execution frame replayed during the
// pass; newly issued actions always land in the final batch. Output,
// CustomStatus and Error serialize as null when unset, matching the host's
// deserializer.
type ExecutionResult struct {
	IsDone       bool            `json:"isDone"`
	Actions      [][]Action      `json:"actions"`
	Output       json.RawMessage `json:"output"`
	CustomStatus json.RawMessage `json:"customStatus"`
	Error        *string         `json:"error"`
}

// NewActions flattens the action batches into the list of actions the host
// has not yet scheduled.
func (r *ExecutionResult) NewActions() []Action {
	var out []Action
	for _, batch := range r.Actions {
		out = append(out, batch...)
	}
	return out
}

// InvocationRequest is one delivery of an orchestration instance to the
// engine: the full history so far plus the orchestration input. How it
// reaches the engine (gRPC, queue, in-process) is the host's concern.
type InvocationRequest struct {
	InstanceID       string          `json:"instanceId"`
	ParentInstanceID *string         `json:"parentInstanceId"`
	Name             string          `json:"name,omitempty"`
	IsReplaying      bool            `json:"isReplaying"`
	Input            json.RawMessage `json:"input"`
	History          []HistoryEvent  `json:"history"`
}

// InvocationStatus reports whether a pass executed (successfully or not, from
// the host's point of view). A pass that merely suspended is still a success.
type InvocationStatus string

const (
	InvocationSuccess InvocationStatus = "success"
	InvocationFailed  InvocationStatus = "failed"
)

// InvocationResponse is the engine's reply to one InvocationRequest.
type InvocationResponse struct {
	InstanceID string           `json:"instanceId"`
	Status     InvocationStatus `json:"status"`
	Result     ExecutionResult  `json:"result"`

	// Message carries the diagnostic for failed invocations.
	Message string `json:"message,omitempty"`
}
