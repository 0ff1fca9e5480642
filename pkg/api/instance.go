package api

import (
	"encoding/json"
)

// Status represents the lifecycle state of an orchestration instance.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusRunning    Status = "RUNNING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusTerminated Status = "TERMINATED"
)

// Terminal reports whether an instance in this status will receive no
// further work.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTerminated
}

// OrchestrationInstance is the host-side record of one orchestration.
// The history log itself is stored separately (append-only); this row holds
// the mutable summary.
type OrchestrationInstance struct {
	ID     string
	Name   string
	Status Status

	// Input is the original input at start (or the most recent
	// continue-as-new input).
	Input json.RawMessage

	// Output is set exactly once, on successful completion.
	Output json.RawMessage

	// CustomStatus is the last user-set status value, updated on every pass.
	CustomStatus json.RawMessage

	// Err holds the diagnostic of a failed instance.
	Err string

	// ParentID and ParentTaskID link a sub-orchestration back to the event
	// in its parent's history that created it.
	ParentID     string
	ParentTaskID int
}

// InstanceListOptions controls how instances are listed.
// Zero values mean "no filter" for that field.
type InstanceListOptions struct {
	// Name, if non-empty, limits results to instances of the given
	// orchestration.
	Name string

	// Status, if non-empty, limits results to instances with the given
	// status.
	Status Status
}
