package projects

import (
	"expertmarket/marketplace-backend/pkg/workflows"
)

// StateMachineAdapter wraps the generic workflow state machine with the
// project state types.
type StateMachineAdapter struct {
	sm *workflows.StateMachine
}

func NewStateMachineAdapter() *StateMachineAdapter {
	return &StateMachineAdapter{sm: workflows.NewStateMachine(TransitionTable())}
}

func (a *StateMachineAdapter) CanTransition(from, to State) bool {
	return a.sm.CanTransition(string(from), string(to))
}

func (a *StateMachineAdapter) AllowedTransitions(from State) []State {
	allowed := a.sm.GetAllowedTransitions(string(from))
	states := make([]State, 0, len(allowed))
	for _, s := range allowed {
		states = append(states, State(s))
	}
	return states
}

func (a *StateMachineAdapter) IsTerminal(state State) bool {
	return a.sm.IsTerminal(string(state))
}
