package engine

import (
	"fmt"

	"github.com/chaosworks/havok/pkg/cerrors"
	"github.com/chaosworks/havok/pkg/types"
)

type transitionKey struct {
	state types.State
	event types.Event
}

// transitions is the lifecycle table, every pair not listed here (and not an
// emergency stop) is an invalid transition
var transitions = map[transitionKey]types.State{
	{types.StatePending, types.EventSubmit}:                 types.StateValidating,
	{types.StateValidating, types.EventValidationPassed}:    types.StateInjecting,
	{types.StateValidating, types.EventValidationFailed}:    types.StateAborted,
	{types.StateInjecting, types.EventInjectionComplete}:    types.StateObserving,
	{types.StateInjecting, types.EventSafetyTriggered}:      types.StateAborted,
	{types.StateObserving, types.EventSafetyTriggered}:      types.StateAborted,
	{types.StateObserving, types.EventObservationComplete}:  types.StateCleaning,
	{types.StateCleaning, types.EventCleanupComplete}:       types.StateCompleted,
}

// NextState is the pure transition mapping (state, event) -> state. Undefined
// pairs are rejected with an invalid-transition error rather than silently
// ignored. An emergency stop aborts from any non-terminal state.
func NextState(state types.State, event types.Event) (types.State, error) {
	if event == types.EventEmergencyStop {
		if state.Terminal() {
			return "", invalidTransition(state, event)
		}
		return types.StateAborted, nil
	}
	next, ok := transitions[transitionKey{state: state, event: event}]
	if !ok {
		return "", invalidTransition(state, event)
	}
	return next, nil
}

func invalidTransition(state types.State, event types.Event) error {
	return cerrors.Error{
		ErrorCode: cerrors.ErrorTypeInvalidTransition,
		Reason:    fmt.Sprintf("no transition defined for state '%s' on event '%s'", state, event),
	}
}
