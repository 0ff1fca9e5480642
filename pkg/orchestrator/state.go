package orchestrator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/petrijr/orchid/pkg/api"
)

// OrchestrationState is the engine's working set for one replay pass: the
// ordered history as received, the execution-frame cursor, and the
// ExecutionResult being accumulated. It is created fresh at the start of
// every invocation and discarded after the pass; durability lives entirely in
// the host-held history log.
//
// The state is shared by reference between the driver and every action future
// and combinator constructed during the pass. Everything runs on one
// goroutine, so there is no locking — only discipline about idempotent
// mutation (see update).
type OrchestrationState struct {
	history []api.HistoryEvent
	result  api.ExecutionResult

	// startedIndex/completedIndex delimit the execution frame the replay is
	// currently consuming: the index of the current OrchestratorStarted
	// event and of its matching OrchestratorCompleted event, or -1 when the
	// frame is still open (the live frame).
	startedIndex   int
	completedIndex int
}

// newOrchestrationState builds the state for one pass. History must contain
// at least one OrchestratorStarted or ExecutionStarted event; hosts that do
// not frame passes (tests, minimal embeddings) may deliver a bare
// ExecutionStarted log.
func newOrchestrationState(history []api.HistoryEvent) (*OrchestrationState, error) {
	if err := api.ValidateHistory(history); err != nil {
		return nil, err
	}

	startedIndex := -1
	for i, e := range history {
		if e.EventType == api.EventOrchestratorStarted {
			startedIndex = i
			break
		}
	}
	if startedIndex < 0 {
		for i, e := range history {
			if e.EventType == api.EventExecutionStarted {
				startedIndex = i
				break
			}
		}
	}
	if startedIndex < 0 {
		return nil, fmt.Errorf("%w: no start event", api.ErrMalformedHistory)
	}

	s := &OrchestrationState{
		history:        history,
		startedIndex:   startedIndex,
		completedIndex: -1,
	}
	s.result.Actions = [][]api.Action{}
	s.completedIndex = s.findOrchestratorCompleted(startedIndex)
	return s, nil
}

func (s *OrchestrationState) findOrchestratorCompleted(from int) int {
	for i := from; i < len(s.history); i++ {
		if s.history[i].EventType == api.EventOrchestratorCompleted {
			return i
		}
	}
	return -1
}

// isReplaying reports whether the pass is still consuming frames recorded by
// earlier invocations.
func (s *OrchestrationState) isReplaying() bool {
	return s.completedIndex >= 0
}

// currentTime is the deterministic clock: the timestamp of the current
// frame's start event. It only moves when the cursor crosses into a newer
// frame, so replayed code observes the same time it observed originally.
func (s *OrchestrationState) currentTime() time.Time {
	return s.history[s.startedIndex].Timestamp
}

// pushAction records an action that has no matching history entry. Batches
// are opened lazily, one per execution frame.
func (s *OrchestrationState) pushAction(a api.Action) {
	if len(s.result.Actions) == 0 {
		s.result.Actions = append(s.result.Actions, []api.Action{})
	}
	last := len(s.result.Actions) - 1
	s.result.Actions[last] = append(s.result.Actions[last], a)
}

// setOutput records the final output. A second call overwrites: last value
// wins.
func (s *OrchestrationState) setOutput(v json.RawMessage) {
	s.result.Output = v
	s.result.IsDone = true
}

func (s *OrchestrationState) setCustomStatus(v json.RawMessage) {
	s.result.CustomStatus = v
}

// findStartEvent locates the next unprocessed scheduling event of the given
// kind. Matching by unprocessed-first-wins is what binds the k-th issuance of
// an action to the k-th matching history entry: the central determinism
// invariant. If the next unprocessed event of this kind carries a different
// name, the body has issued actions in a different order than the recorded
// history prefix, and the pass must abort rather than bind to the wrong
// entry.
func (s *OrchestrationState) findStartEvent(name string, kind api.EventType) (int, *api.HistoryEvent, bool, error) {
	for i := range s.history {
		e := &s.history[i]
		if e.IsProcessed || e.EventType != kind {
			continue
		}
		if e.Name != name {
			return 0, nil, false, fmt.Errorf("%w: expected %s %q at event %d, history records %q",
				api.ErrNonDeterministic, kind, name, e.EventID, e.Name)
		}
		return i, e, true, nil
	}
	return 0, nil, false, nil
}

// findStartEventByKind is findStartEvent for kinds that carry no name
// (timers).
func (s *OrchestrationState) findStartEventByKind(kind api.EventType) (int, *api.HistoryEvent, bool) {
	for i := range s.history {
		e := &s.history[i]
		if !e.IsProcessed && e.EventType == kind {
			return i, e, true
		}
	}
	return 0, nil, false
}

// findEndEvent locates the completion (or, if alt is non-zero, the failure)
// event correlated to the scheduling event at startIndex. The scan begins
// after the scheduling event: a completion must never precede its scheduling
// event in history order.
func (s *OrchestrationState) findEndEvent(startIndex int, kind, alt api.EventType) (int, *api.HistoryEvent, bool) {
	if startIndex+1 >= len(s.history) {
		return 0, nil, false
	}
	id := s.history[startIndex].EventID
	for i := startIndex + 1; i < len(s.history); i++ {
		e := &s.history[i]
		if e.EventType != kind && (alt == 0 || e.EventType != alt) {
			continue
		}
		if e.EventType == api.EventTimerFired {
			if e.TimerID != nil && *e.TimerID == id {
				return i, e, true
			}
			continue
		}
		if e.TaskScheduledID != nil && *e.TaskScheduledID == id {
			return i, e, true
		}
	}
	return 0, nil, false
}

// findRaisedEvent locates the next unprocessed EventRaised with the given
// name.
func (s *OrchestrationState) findRaisedEvent(name string) (int, *api.HistoryEvent, bool) {
	for i := range s.history {
		e := &s.history[i]
		if !e.IsProcessed && e.EventType == api.EventEventRaised && e.Name == name {
			return i, e, true
		}
	}
	return 0, nil, false
}

// update advances the frame cursor past eventIndex. It is called exactly once
// when a resolved future is consumed; calling it again with the same index
// has no additional effect, and it never moves the cursor backward.
//
// Crossing into a newer frame opens a fresh action batch, so actions issued
// after the crossing are attributed to the correct execution.
func (s *OrchestrationState) update(eventIndex int) {
	if s.startedIndex+1 >= len(s.history) || s.completedIndex < 0 {
		return
	}

	for s.completedIndex < eventIndex {
		next := -1
		for i := s.startedIndex + 1; i < len(s.history); i++ {
			if s.history[i].EventType == api.EventOrchestratorStarted {
				next = i
				break
			}
		}
		if next < 0 {
			return
		}

		s.startedIndex = next
		s.completedIndex = s.findOrchestratorCompleted(next)
		s.result.Actions = append(s.result.Actions, []api.Action{})

		if s.completedIndex < 0 {
			return
		}
	}
}
