package decision

import (
	"fmt"
	"sync"

	"github.com/cyw0ng95/sentinel/pkg/model"
)

// ValidatorState is one node of the per-validator state machine:
// Unknown -> Healthy <-> Degraded(issue) -> Recovering(issue, action_id) -> Healthy|Degraded.
type ValidatorState string

const (
	StateUnknown    ValidatorState = "Unknown"
	StateHealthy    ValidatorState = "Healthy"
	StateDegraded   ValidatorState = "Degraded"
	StateRecovering ValidatorState = "Recovering"
)

// validTransitions enumerates the legal state-machine edges. The engine
// is metrics-driven: recovery out of Recovering is decided by the next
// sample, never by the action result.
var validTransitions = map[ValidatorState]map[ValidatorState]bool{
	StateUnknown:    {StateHealthy: true, StateDegraded: true},
	StateHealthy:    {StateDegraded: true, StateHealthy: true},
	StateDegraded:   {StateHealthy: true, StateDegraded: true, StateRecovering: true},
	StateRecovering: {StateHealthy: true, StateDegraded: true, StateRecovering: true},
}

// ValidateTransition reports whether moving from -> to is a legal edge.
func ValidateTransition(from, to ValidatorState) error {
	if from == to {
		return nil
	}
	if validTransitions[from][to] {
		return nil
	}
	return fmt.Errorf("decision: invalid state transition %s -> %s", from, to)
}

// trackedState is the per-validator record the engine owns: state, the
// issue that caused the last non-Healthy classification, and the action_id
// (if any) currently being recovered from.
type trackedState struct {
	state    ValidatorState
	issue    model.Issue
	actionID string
}

// stateTable owns every validator's trackedState behind one lock;
// external readers get value snapshots, never references.
type stateTable struct {
	mu    sync.Mutex
	byID  map[model.ValidatorId]*trackedState
}

func newStateTable() *stateTable {
	return &stateTable{byID: make(map[model.ValidatorId]*trackedState)}
}

func (t *stateTable) get(id model.ValidatorId) trackedState {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.byID[id]
	if !ok {
		return trackedState{state: StateUnknown}
	}
	return *ts
}

// advance applies the next classified issue to id's tracked state,
// returning the resulting state. It does not itself validate the
// transition against validTransitions — Degraded/Healthy flips are driven
// purely by the latest sample, which is always a legal edge from any state.
func (t *stateTable) advance(id model.ValidatorId, issue model.Issue) ValidatorState {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.byID[id]
	if !ok {
		ts = &trackedState{state: StateUnknown}
		t.byID[id] = ts
	}
	if issue == model.IssueHealthy {
		ts.state = StateHealthy
		ts.issue = ""
		ts.actionID = ""
	} else {
		ts.state = StateDegraded
		ts.issue = issue
	}
	return ts.state
}

// markRecovering transitions id to Recovering after a successful submit.
func (t *stateTable) markRecovering(id model.ValidatorId, issue model.Issue, actionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.byID[id]
	if !ok {
		ts = &trackedState{}
		t.byID[id] = ts
	}
	ts.state = StateRecovering
	ts.issue = issue
	ts.actionID = actionID
}
