package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaosworks/havok/pkg/cerrors"
	"github.com/chaosworks/havok/pkg/types"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewProcessSignalStrategy())
	registry.Register(NewCommandStrategy())

	strat, err := registry.Get("process-signal")
	require.NoError(t, err)
	assert.Equal(t, "process-signal", strat.Name())

	assert.ElementsMatch(t, []string{"process-signal", "command"}, registry.Names())
}

func TestRegistry_UnknownFaultType(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Get("disk-melt")
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeValidation, cerrors.GetErrorType(err))
}

func TestCommandStrategy_Validate(t *testing.T) {
	strat := NewCommandStrategy()

	assert.Error(t, strat.Validate(nil))
	assert.Error(t, strat.Validate(map[string]string{"injectCmd": "true"}))
	assert.Error(t, strat.Validate(map[string]string{"removeCmd": "true"}))
	assert.NoError(t, strat.Validate(map[string]string{"injectCmd": "true", "removeCmd": "true"}))
}

func TestCommandStrategy_InjectRemoveCycle(t *testing.T) {
	strat := NewCommandStrategy()
	target := types.Target{ID: "svc-1", Kind: "service"}
	params := map[string]string{"injectCmd": "true", "removeCmd": "true"}

	handle, err := strat.Inject(context.Background(), target, params)
	require.NoError(t, err)
	require.NotEmpty(t, handle)

	active, err := strat.IsActive(context.Background(), handle)
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, strat.Remove(context.Background(), handle))
	active, err = strat.IsActive(context.Background(), handle)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestCommandStrategy_InjectFailureLeavesNoHandle(t *testing.T) {
	strat := NewCommandStrategy()
	params := map[string]string{"injectCmd": "false", "removeCmd": "true"}

	_, err := strat.Inject(context.Background(), types.Target{ID: "svc-1"}, params)
	require.Error(t, err)
}

func TestCommandStrategy_RemoveIsIdempotent(t *testing.T) {
	strat := NewCommandStrategy()
	target := types.Target{ID: "svc-1"}
	params := map[string]string{"injectCmd": "true", "removeCmd": "true"}

	handle, err := strat.Inject(context.Background(), target, params)
	require.NoError(t, err)

	require.NoError(t, strat.Remove(context.Background(), handle))
	// removing again, and removing a handle that never existed, are no-ops
	require.NoError(t, strat.Remove(context.Background(), handle))
	require.NoError(t, strat.Remove(context.Background(), "never-issued"))
}

func TestProcessSignalStrategy_Validate(t *testing.T) {
	strat := NewProcessSignalStrategy()
	assert.NoError(t, strat.Validate(nil))
}

func TestProcessSignalStrategy_InjectRejectsNonPid(t *testing.T) {
	strat := NewProcessSignalStrategy()

	_, err := strat.Inject(context.Background(), types.Target{ID: "not-a-pid"}, nil)
	require.Error(t, err)
}

func TestProcessSignalStrategy_UnknownHandle(t *testing.T) {
	strat := NewProcessSignalStrategy()

	require.NoError(t, strat.Remove(context.Background(), "never-issued"))
	active, err := strat.IsActive(context.Background(), "never-issued")
	require.NoError(t, err)
	assert.False(t, active)
}
