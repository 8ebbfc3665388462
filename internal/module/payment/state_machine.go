package payment

import "fmt"

// StateMachine validates payment status transitions.
type StateMachine struct {
	transitions map[Status][]Status
}

// NewStateMachine creates the payment status state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		transitions: map[Status][]Status{
			StatusIdle:       {StatusProcessing},
			StatusProcessing: {StatusSuccess, StatusFailed, StatusCancelled},
			StatusSuccess:    {}, // Terminal, only Reset leaves
			StatusCancelled:  {}, // Terminal, only Reset leaves
			StatusFailed:     {StatusProcessing}, // Can retry
		},
	}
}

// CanTransition checks if a transition from `from` to `to` is valid.
func (sm *StateMachine) CanTransition(from, to Status) bool {
	allowed, ok := sm.transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates and applies a status change to the state.
func (sm *StateMachine) Transition(state *State, to Status) error {
	if !sm.CanTransition(state.Status, to) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, state.Status, to)
	}
	state.Status = to
	return nil
}

// GetAllowedTransitions returns all allowed transitions from the current state.
func (sm *StateMachine) GetAllowedTransitions(from Status) []Status {
	allowed, ok := sm.transitions[from]
	if !ok {
		return []Status{}
	}
	result := make([]Status, len(allowed))
	copy(result, allowed)
	return result
}
