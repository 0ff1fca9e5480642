package orchestrator

import (
	"encoding/json"
	"errors"
)

// JoinAll resolves when every member future has resolved. Member results are
// returned in construction order regardless of the order their completions
// appear in history.
type JoinAll struct {
	state   *OrchestrationState
	members []Future

	isInner bool
	awaited bool
}

var _ Future = (*JoinAll)(nil)

func newJoinAll(state *OrchestrationState, members []Future) *JoinAll {
	for _, m := range members {
		m.notifyInner()
	}
	return &JoinAll{state: state, members: members}
}

func (j *JoinAll) notifyInner() { j.isInner = true }

// eventIndex is the maximum member index: the join is only as resolved as its
// slowest member, and the cursor must not advance past any frame a member
// resolved in.
func (j *JoinAll) eventIndex() (int, bool) {
	max := -1
	for _, m := range j.members {
		idx, ok := m.eventIndex()
		if !ok {
			return 0, false
		}
		if idx > max {
			max = idx
		}
	}
	if max < 0 {
		return 0, false
	}
	return max, true
}

func (j *JoinAll) poll() (Result, bool) {
	results, idx, ok := j.collect()
	if !ok {
		return Result{}, false
	}

	values := make([]json.RawMessage, len(results))
	errs := make([]error, 0, len(results))
	for i, r := range results {
		values[i] = r.Value
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	value, err := json.Marshal(values)
	if err != nil {
		return Result{Err: err}, true
	}

	if !j.isInner {
		j.state.update(idx)
	}
	return Result{Value: value, Err: errors.Join(errs...)}, true
}

func (j *JoinAll) collect() ([]Result, int, bool) {
	idx, ok := j.eventIndex()
	if !ok {
		return nil, 0, false
	}
	results := make([]Result, len(j.members))
	for i, m := range j.members {
		r, ok := m.poll()
		if !ok {
			return nil, 0, false
		}
		results[i] = r
	}
	return results, idx, true
}

// Await suspends the pass until every member has resolved, then returns the
// member results in construction order. Failed members surface as Result.Err
// entries, not as a collective failure.
func (j *JoinAll) Await() []Result {
	if j.awaited {
		panic("orchestrator: future awaited twice")
	}
	results, idx, ok := j.collect()
	if !ok {
		panic(errPassBlocked)
	}
	if !j.isInner {
		j.state.update(idx)
	}
	j.awaited = true
	return results
}

// SelectAll resolves as soon as any member future resolves, picking the
// member whose completion appears earliest in history. Ties cannot occur:
// history indexes are unique.
type SelectAll struct {
	state   *OrchestrationState
	members []Future

	isInner bool
	awaited bool
}

var _ Future = (*SelectAll)(nil)

func newSelectAll(state *OrchestrationState, members []Future) *SelectAll {
	for _, m := range members {
		m.notifyInner()
	}
	return &SelectAll{state: state, members: members}
}

func (s *SelectAll) notifyInner() { s.isInner = true }

// eventIndex is the minimum resolved member index: the winner is whichever
// member history resolved first.
func (s *SelectAll) eventIndex() (int, bool) {
	min, found := 0, false
	for _, m := range s.members {
		idx, ok := m.eventIndex()
		if !ok {
			continue
		}
		if !found || idx < min {
			min, found = idx, true
		}
	}
	return min, found
}

func (s *SelectAll) poll() (Result, bool) {
	winner, _, ok := s.pick()
	if !ok {
		return Result{}, false
	}
	r, _ := winner.poll()
	if !s.isInner {
		idx, _ := winner.eventIndex()
		s.state.update(idx)
	}
	return r, true
}

func (s *SelectAll) pick() (Future, int, bool) {
	pos, found := -1, false
	var best int
	for i, m := range s.members {
		idx, ok := m.eventIndex()
		if !ok {
			continue
		}
		if !found || idx < best {
			best, pos, found = idx, i, true
		}
	}
	if !found {
		return nil, 0, false
	}
	return s.members[pos], pos, true
}

// Await suspends the pass until some member has resolved, then returns the
// winning member's result, its construction-order position, and the
// remaining members (winner removed, state untouched) so callers can keep
// waiting on the rest.
func (s *SelectAll) Await() (Result, int, []Future) {
	if s.awaited {
		panic("orchestrator: future awaited twice")
	}
	winner, pos, ok := s.pick()
	if !ok {
		panic(errPassBlocked)
	}
	r, _ := winner.poll()
	if !s.isInner {
		idx, _ := winner.eventIndex()
		s.state.update(idx)
	}
	s.awaited = true

	rest := make([]Future, 0, len(s.members)-1)
	rest = append(rest, s.members[:pos]...)
	rest = append(rest, s.members[pos+1:]...)
	return r, pos, rest
}
