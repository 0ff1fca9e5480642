package orchestrator

import (
	"encoding/json"
	"errors"
)

// errPassBlocked is the suspension signal: awaiting a future that history has
// not resolved yet panics with this sentinel, and the driver recovers it to
// end the pass normally. It never escapes Execute.
var errPassBlocked = errors.New("pass blocked on unresolved future")

// Result is the outcome of one awaited task. Exactly one of Value and Err is
// meaningful; failed tasks carry an *api.TaskFailureError in Err.
type Result struct {
	Value json.RawMessage
	Err   error
}

// Future is the common surface of everything awaitable inside an
// orchestration body: single action futures and the JoinAll/SelectAll
// combinators. It is internal; user code holds the concrete types.
type Future interface {
	// notifyInner marks the future as owned by a combinator. Inner futures
	// never advance the frame cursor themselves; only the outermost await
	// does.
	notifyInner()

	// eventIndex reports the history index at which the future resolved, if
	// it has.
	eventIndex() (int, bool)

	// poll returns the result if the future is resolved. Polling a resolved
	// outer future advances the frame cursor; polling is otherwise free of
	// side effects and may be repeated.
	poll() (Result, bool)
}

// ActionFuture is the resolution handle for one scheduled action. It is
// created resolved when the correlated completion event was found in history,
// and pending otherwise. A pending future stays pending for the remainder of
// the pass: resolution only ever arrives through history in a later
// invocation.
type ActionFuture struct {
	state *OrchestrationState

	result   Result
	evIndex  int
	resolved bool

	isInner bool
	awaited bool
}

var _ Future = (*ActionFuture)(nil)

func newPendingActionFuture(state *OrchestrationState) *ActionFuture {
	return &ActionFuture{state: state}
}

func newResolvedActionFuture(state *OrchestrationState, result Result, eventIndex int) *ActionFuture {
	return &ActionFuture{state: state, result: result, evIndex: eventIndex, resolved: true}
}

func (f *ActionFuture) notifyInner() { f.isInner = true }

func (f *ActionFuture) eventIndex() (int, bool) {
	return f.evIndex, f.resolved
}

func (f *ActionFuture) poll() (Result, bool) {
	if !f.resolved {
		return Result{}, false
	}
	if !f.isInner {
		f.state.update(f.evIndex)
	}
	return f.result, true
}

// Await blocks the pass until the future is resolved. If history already
// holds the outcome, Await returns it immediately; otherwise the pass is
// suspended and the body will re-run from the start once the host has
// recorded the outcome.
//
// Awaiting the same future twice is a programming error and panics.
func (f *ActionFuture) Await() (json.RawMessage, error) {
	if f.awaited {
		panic("orchestrator: future awaited twice")
	}
	r, ok := f.poll()
	if !ok {
		panic(errPassBlocked)
	}
	f.awaited = true
	return r.Value, r.Err
}
