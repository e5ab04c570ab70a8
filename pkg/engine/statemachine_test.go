package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaosworks/havok/pkg/cerrors"
	"github.com/chaosworks/havok/pkg/types"
)

func TestNextState_DefinedTransitions(t *testing.T) {
	testCases := []struct {
		state types.State
		event types.Event
		want  types.State
	}{
		{types.StatePending, types.EventSubmit, types.StateValidating},
		{types.StateValidating, types.EventValidationPassed, types.StateInjecting},
		{types.StateValidating, types.EventValidationFailed, types.StateAborted},
		{types.StateInjecting, types.EventInjectionComplete, types.StateObserving},
		{types.StateInjecting, types.EventSafetyTriggered, types.StateAborted},
		{types.StateObserving, types.EventObservationComplete, types.StateCleaning},
		{types.StateObserving, types.EventSafetyTriggered, types.StateAborted},
		{types.StateCleaning, types.EventCleanupComplete, types.StateCompleted},
	}

	for _, tc := range testCases {
		next, err := NextState(tc.state, tc.event)
		require.NoError(t, err, "%v + %v", tc.state, tc.event)
		assert.Equal(t, tc.want, next, "%v + %v", tc.state, tc.event)
	}
}

func TestNextState_EmergencyStopFromAnyNonTerminal(t *testing.T) {
	for _, state := range []types.State{
		types.StatePending,
		types.StateValidating,
		types.StateInjecting,
		types.StateObserving,
		types.StateCleaning,
	} {
		next, err := NextState(state, types.EventEmergencyStop)
		require.NoError(t, err, "from %v", state)
		assert.Equal(t, types.StateAborted, next, "from %v", state)
	}
}

func TestNextState_TerminalStatesRejectEverything(t *testing.T) {
	events := []types.Event{
		types.EventSubmit,
		types.EventValidationPassed,
		types.EventValidationFailed,
		types.EventInjectionComplete,
		types.EventObservationComplete,
		types.EventCleanupComplete,
		types.EventSafetyTriggered,
		types.EventEmergencyStop,
	}
	for _, state := range []types.State{types.StateCompleted, types.StateAborted} {
		for _, event := range events {
			_, err := NextState(state, event)
			require.Error(t, err, "%v + %v", state, event)
			assert.Equal(t, cerrors.ErrorTypeInvalidTransition, cerrors.GetErrorType(err))
		}
	}
}

func TestNextState_UndefinedPairs(t *testing.T) {
	testCases := []struct {
		state types.State
		event types.Event
	}{
		{types.StatePending, types.EventValidationPassed},
		{types.StatePending, types.EventCleanupComplete},
		{types.StateValidating, types.EventInjectionComplete},
		{types.StateInjecting, types.EventSubmit},
		{types.StateInjecting, types.EventObservationComplete},
		{types.StateObserving, types.EventInjectionComplete},
		{types.StateCleaning, types.EventSafetyTriggered},
		{types.StateCleaning, types.EventValidationPassed},
	}

	for _, tc := range testCases {
		_, err := NextState(tc.state, tc.event)
		require.Error(t, err, "%v + %v", tc.state, tc.event)
		assert.Equal(t, cerrors.ErrorTypeInvalidTransition, cerrors.GetErrorType(err), "%v + %v", tc.state, tc.event)
	}
}
