package api

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedHistory indicates the host delivered a history log the
	// engine cannot replay (missing start frame, completion without its
	// scheduling back-reference). Fatal to the pass.
	ErrMalformedHistory = errors.New("orchestration history is malformed")

	// ErrNonDeterministic indicates the orchestration body issued actions in
	// an order that does not match the recorded history prefix. Fatal to the
	// pass; no partial result is reported.
	ErrNonDeterministic = errors.New("orchestration execution diverged from history")

	// ErrInstanceNotFound is returned when an orchestration instance does
	// not exist.
	ErrInstanceNotFound = errors.New("orchestration instance not found")

	// ErrOrchestratorNotFound is returned when no orchestrator function is
	// registered under the requested name.
	ErrOrchestratorNotFound = errors.New("orchestrator not registered")

	// ErrActivityNotFound is returned when no activity function is
	// registered under the requested name.
	ErrActivityNotFound = errors.New("activity not registered")
)

// TaskFailureError is how a failed activity or sub-orchestration surfaces to
// the orchestration body: as an ordinary error value the body may branch on,
// never as an engine fault.
type TaskFailureError struct {
	Name    string
	Reason  string
	Details string
}

func (e *TaskFailureError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("task %q failed", e.Name)
	}
	return fmt.Sprintf("task %q failed: %s", e.Name, e.Reason)
}

// AsTaskFailure returns the failure details if err represents a failed task.
func AsTaskFailure(err error) (*TaskFailureError, bool) {
	var t *TaskFailureError
	if errors.As(err, &t) {
		return t, true
	}
	return nil, false
}
