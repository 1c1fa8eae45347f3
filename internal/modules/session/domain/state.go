package domain

import (
	"fmt"

	apperrors "komerge/internal/platform/errors"
)

// State tracks a session's progress towards a merge. Executed is terminal.
type State uint8

const (
	StateCreated State = iota + 1
	StateGroupsPending
	StateExecuting
	StateExecuted
)

var stateNames = map[State]string{
	StateCreated:       "created",
	StateGroupsPending: "groups_pending",
	StateExecuting:     "executing",
	StateExecuted:      "executed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

func (s State) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

func (s State) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("marshal session state: unknown state %d", uint8(s))
	}
	return []byte(stateNames[s]), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unmarshal session state: unknown state %q", string(text))
}

// Mutable reports whether merge groups may still change.
func (s State) Mutable() error {
	switch s {
	case StateCreated, StateGroupsPending:
		return nil
	case StateExecuting:
		return apperrors.ErrExecutionInProgress
	case StateExecuted:
		return apperrors.ErrAlreadyExecuted
	default:
		return fmt.Errorf("%w: session in state %s", apperrors.ErrInvalidInput, s)
	}
}
