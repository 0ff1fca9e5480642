package api

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType tags a HistoryEvent with its kind. The numeric values are part of
// the host wire protocol and must not be renumbered.
type EventType int

const (
	EventExecutionStarted                  EventType = 0
	EventExecutionCompleted                EventType = 1
	EventExecutionFailed                   EventType = 2
	EventExecutionTerminated               EventType = 3
	EventTaskScheduled                     EventType = 4
	EventTaskCompleted                     EventType = 5
	EventTaskFailed                        EventType = 6
	EventSubOrchestrationInstanceCreated   EventType = 7
	EventSubOrchestrationInstanceCompleted EventType = 8
	EventSubOrchestrationInstanceFailed    EventType = 9
	EventTimerCreated                      EventType = 10
	EventTimerFired                        EventType = 11
	EventOrchestratorStarted               EventType = 12
	EventOrchestratorCompleted             EventType = 13
	EventEventSent                         EventType = 14
	EventEventRaised                       EventType = 15
	EventContinueAsNew                     EventType = 16
	EventGenericEvent                      EventType = 17
	EventHistoryState                      EventType = 18
)

// String returns a readable name for known event kinds. Unknown kinds are
// rendered numerically; they are legal on the wire and ignored by the engine.
func (t EventType) String() string {
	switch t {
	case EventExecutionStarted:
		return "ExecutionStarted"
	case EventExecutionCompleted:
		return "ExecutionCompleted"
	case EventExecutionFailed:
		return "ExecutionFailed"
	case EventExecutionTerminated:
		return "ExecutionTerminated"
	case EventTaskScheduled:
		return "TaskScheduled"
	case EventTaskCompleted:
		return "TaskCompleted"
	case EventTaskFailed:
		return "TaskFailed"
	case EventSubOrchestrationInstanceCreated:
		return "SubOrchestrationInstanceCreated"
	case EventSubOrchestrationInstanceCompleted:
		return "SubOrchestrationInstanceCompleted"
	case EventSubOrchestrationInstanceFailed:
		return "SubOrchestrationInstanceFailed"
	case EventTimerCreated:
		return "TimerCreated"
	case EventTimerFired:
		return "TimerFired"
	case EventOrchestratorStarted:
		return "OrchestratorStarted"
	case EventOrchestratorCompleted:
		return "OrchestratorCompleted"
	case EventEventSent:
		return "EventSent"
	case EventEventRaised:
		return "EventRaised"
	case EventContinueAsNew:
		return "ContinueAsNew"
	case EventGenericEvent:
		return "GenericEvent"
	case EventHistoryState:
		return "HistoryState"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// HistoryEvent is one immutable fact in an orchestration instance's history
// log. The log is owned and persisted by the host; the engine only consumes
// it. Field names follow the host protocol (PascalCase JSON).
//
// Only a subset of fields is meaningful for any given kind:
//
//   - Name/Input: ExecutionStarted, TaskScheduled, SubOrchestrationInstanceCreated, EventRaised
//   - Result: TaskCompleted, SubOrchestrationInstanceCompleted
//   - TaskScheduledID: TaskCompleted, TaskFailed, SubOrchestrationInstanceCompleted, SubOrchestrationInstanceFailed
//   - InstanceID: SubOrchestrationInstanceCreated
//   - Reason/Details: TaskFailed, SubOrchestrationInstanceFailed, ExecutionTerminated
//   - FireAt: TimerCreated, TimerFired
//   - TimerID: TimerFired
type HistoryEvent struct {
	EventType EventType `json:"EventType"`
	EventID   int       `json:"EventId"`
	IsPlayed  bool      `json:"IsPlayed"`
	Timestamp time.Time `json:"Timestamp"`

	Name            string          `json:"Name,omitempty"`
	Input           json.RawMessage `json:"Input,omitempty"`
	Result          json.RawMessage `json:"Result,omitempty"`
	TaskScheduledID *int            `json:"TaskScheduledId,omitempty"`
	InstanceID      string          `json:"InstanceId,omitempty"`
	Reason          string          `json:"Reason,omitempty"`
	Details         string          `json:"Details,omitempty"`
	FireAt          *time.Time      `json:"FireAt,omitempty"`
	TimerID         *int            `json:"TimerId,omitempty"`

	// IsProcessed marks events already bound to an action future during the
	// current replay pass. It is per-pass bookkeeping, never serialized.
	IsProcessed bool `json:"-"`
}

// ParseHistory decodes a host-provided history log. Events of unrecognized
// kinds decode like any other event; the engine simply never matches them.
func ParseHistory(data []byte) ([]HistoryEvent, error) {
	var events []HistoryEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("parse history: %w", err)
	}
	return events, nil
}

// ValidateHistory checks the structural invariants the replay engine depends
// on: every completion, failure, or timer-fired event must carry its
// back-reference to the scheduling event, and that scheduling event must
// appear earlier in the log.
func ValidateHistory(events []HistoryEvent) error {
	scheduled := make(map[int]int) // event id -> history index
	for i, e := range events {
		switch e.EventType {
		case EventTaskScheduled, EventSubOrchestrationInstanceCreated, EventTimerCreated:
			scheduled[e.EventID] = i
		case EventTaskCompleted, EventTaskFailed,
			EventSubOrchestrationInstanceCompleted, EventSubOrchestrationInstanceFailed:
			if e.TaskScheduledID == nil {
				return fmt.Errorf("%w: %s at index %d has no TaskScheduledId", ErrMalformedHistory, e.EventType, i)
			}
			if _, ok := scheduled[*e.TaskScheduledID]; !ok {
				return fmt.Errorf("%w: %s at index %d references unknown scheduling event %d",
					ErrMalformedHistory, e.EventType, i, *e.TaskScheduledID)
			}
		case EventTimerFired:
			if e.TimerID == nil {
				return fmt.Errorf("%w: TimerFired at index %d has no TimerId", ErrMalformedHistory, i)
			}
			if _, ok := scheduled[*e.TimerID]; !ok {
				return fmt.Errorf("%w: TimerFired at index %d references unknown timer %d",
					ErrMalformedHistory, i, *e.TimerID)
			}
		}
	}
	return nil
}

// Intp is a convenience for building history events whose correlation ids are
// optional on the wire.
func Intp(v int) *int { return &v }
