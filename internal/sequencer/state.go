package sequencer

import (
	"fmt"

	"github.com/shinji-kodama/docrun/internal/model"
)

// isAllowedTransition encodes the run state machine:
//
//	not-started            -> checking-preconditions
//	checking-preconditions -> running-package | failed | succeeded (empty plan)
//	running-package        -> running-package (next package) | succeeded | failed
//
// Terminal states have no outgoing transitions.
func isAllowedTransition(from, to model.RunState) bool {
	switch from {
	case model.StateNotStarted:
		return to == model.StateCheckingPreconditions
	case model.StateCheckingPreconditions:
		return to == model.StateRunningPackage || to == model.StateFailed || to == model.StateSucceeded
	case model.StateRunningPackage:
		return to == model.StateRunningPackage || to == model.StateSucceeded || to == model.StateFailed
	default:
		return false
	}
}

// machine tracks one run's state and reports every change to the observer.
type machine struct {
	state    model.RunState
	observer Observer
}

func newMachine(observer Observer) *machine {
	return &machine{state: model.StateNotStarted, observer: observer}
}

// transition moves to the next state. A disallowed transition is a bug in
// the sequencer, not a run failure, so it panics.
func (m *machine) transition(to model.RunState) {
	if !isAllowedTransition(m.state, to) {
		panic(fmt.Sprintf("sequencer: disallowed transition %s -> %s", m.state, to))
	}
	from := m.state
	m.state = to
	m.observer.OnTransition(from, to)
}
