package orchestrator

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTransition = errors.New("invalid pipeline transition")

// State is a stage of a pipeline run.
type State string

const (
	StateGate       State = "gate"
	StatePlan       State = "plan"
	StateDispatch   State = "dispatch"
	StateSynthesize State = "synthesize"
	StateDone       State = "done"
)

// Outcome is what a stage produced.
type Outcome string

const (
	OutcomeShortCircuit Outcome = "short_circuit"
	OutcomeProceed      Outcome = "proceed"
	OutcomePlanned      Outcome = "planned"
	OutcomeEmptyPlan    Outcome = "empty_plan"
	OutcomePlanOnly     Outcome = "plan_only"
	OutcomeDispatched   Outcome = "dispatched"
	OutcomeAnswered     Outcome = "answered"
	OutcomeFailed       Outcome = "failed"
)

// transitions is the whole pipeline. An empty plan still passes through
// dispatch, which returns no results without calling any source.
var transitions = map[State]map[Outcome]State{
	StateGate: {
		OutcomeShortCircuit: StateSynthesize,
		OutcomeProceed:      StatePlan,
	},
	StatePlan: {
		OutcomePlanned:   StateDispatch,
		OutcomeEmptyPlan: StateDispatch,
		OutcomePlanOnly:  StateDone,
	},
	StateDispatch: {
		OutcomeDispatched: StateSynthesize,
	},
	StateSynthesize: {
		OutcomeAnswered: StateDone,
		OutcomeFailed:   StateDone,
	},
}

// Transition returns the state that follows from after outcome.
func Transition(from State, outcome Outcome) (State, error) {
	to, ok := transitions[from][outcome]
	if !ok {
		return "", fmt.Errorf("%w: %s --%s-->", ErrInvalidTransition, from, outcome)
	}
	return to, nil
}

// Step is one observed transition.
type Step struct {
	From    State         `json:"from"`
	Outcome Outcome       `json:"outcome"`
	To      State         `json:"to"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// Observer is notified of every transition of a run, in order.
type Observer func(Step)
