package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/petrijr/orchid/pkg/api"
)

// errContinuedAsNew ends a pass after ContinueAsNew. Like errPassBlocked it
// is recovered by Execute and never escapes.
var errContinuedAsNew = errors.New("orchestration continued as new")

// Execute runs one replay pass: it rebuilds the orchestration state from the
// delivered history, runs the registered body once on the calling goroutine,
// and packages the outcome.
//
// Three outcomes are possible per pass: the body ran to its return statement
// (result carries the final output), the body suspended on an unresolved
// future (result carries the newly scheduled actions), or the pass failed
// (malformed history, determinism violation, or a body error) and the
// response reports the diagnostic with no partial result.
func Execute(req api.InvocationRequest, reg *Registry) *api.InvocationResponse {
	resp := &api.InvocationResponse{
		InstanceID: req.InstanceID,
		Status:     api.InvocationSuccess,
	}
	resp.Result.Actions = [][]api.Action{}

	fn, err := reg.Orchestrator(req.Name)
	if err != nil {
		return failResponse(resp, err)
	}

	state, err := newOrchestrationState(req.History)
	if err != nil {
		return failResponse(resp, err)
	}

	octx := &OrchestrationContext{
		instanceID: req.InstanceID,
		input:      req.Input,
		state:      state,
	}
	if req.ParentInstanceID != nil {
		octx.parentInstanceID = *req.ParentInstanceID
	}

	output, err := runBody(fn, octx)
	if err != nil {
		if errors.Is(err, errPassBlocked) || errors.Is(err, errContinuedAsNew) {
			// Suspended: report the accumulated actions and end the pass.
			resp.Result = state.result
			return resp
		}
		// Custom status is attached to every response, even failed ones. New
		// actions are not: a half-correct replay must not schedule work.
		resp.Result.CustomStatus = state.result.CustomStatus
		return failResponse(resp, err)
	}

	out, err := marshalOutput(output)
	if err != nil {
		return failResponse(resp, err)
	}
	state.setOutput(out)
	resp.Result = state.result
	return resp
}

// runBody invokes the orchestration body, converting the suspension panic and
// any other panic into errors. Orchestration bodies run on exactly one
// goroutine; a suspension panic surfacing on any other goroutine means the
// body attempted real concurrency, and the process crash it causes is
// deliberate.
func runBody(fn OrchestratorFunc, octx *OrchestrationContext) (output any, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if e, ok := r.(error); ok {
			err = e
			return
		}
		err = fmt.Errorf("orchestration panicked: %v", r)
	}()

	return fn(octx)
}

func marshalOutput(output any) (json.RawMessage, error) {
	if output == nil {
		return json.RawMessage("null"), nil
	}
	if raw, ok := output.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: marshal output: %w", err)
	}
	return data, nil
}

func failResponse(resp *api.InvocationResponse, err error) *api.InvocationResponse {
	msg := err.Error()
	resp.Status = api.InvocationFailed
	resp.Message = msg
	resp.Result.Error = &msg
	return resp
}
