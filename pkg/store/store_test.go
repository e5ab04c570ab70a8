package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaosworks/havok/pkg/types"
)

func sampleContext(name string) *types.ExperimentContext {
	ec := types.NewExperimentContext(types.Experiment{
		Name:                     name,
		Fault:                    types.FaultSpec{Type: "process-signal"},
		InjectionDurationSeconds: 30,
		Selector:                 types.SelectorSpec{MaxBlastRadiusPct: 0.2},
	})
	ec.Targets = []types.Target{{ID: "pid-100", Kind: "process"}}
	ec.TotalCandidates = 10
	ec.AddInjection(types.InjectionRecord{
		Handle:    "h1",
		Strategy:  "process-signal",
		Target:    types.Target{ID: "pid-100"},
		CreatedAt: time.Now(),
		TTL:       30 * time.Second,
		Status:    types.InjectionActive,
	})
	return ec
}

func stores(t *testing.T) map[string]Store {
	bolt, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })
	return map[string]Store{
		"bolt": bolt,
		"mem":  NewMemStore(),
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ec := sampleContext("round-trip")
			require.NoError(t, st.Save(ec))

			loaded, err := st.Load(ec.ID)
			require.NoError(t, err)
			assert.Equal(t, ec.ID, loaded.ID)
			assert.Equal(t, "round-trip", loaded.Definition.Name)
			assert.Equal(t, types.StatePending, loaded.State)
			assert.Equal(t, 10, loaded.TotalCandidates)
			require.Len(t, loaded.Injections, 1)
			assert.Equal(t, types.InjectionActive, loaded.Injections[0].Status)
		})
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ec := sampleContext("overwrite")
			require.NoError(t, st.Save(ec))
			ec.SetState(types.StateInjecting)
			require.NoError(t, st.Save(ec))

			loaded, err := st.Load(ec.ID)
			require.NoError(t, err)
			assert.Equal(t, types.StateInjecting, loaded.State)
		})
	}
}

func TestStore_LoadUnknownID(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := st.Load("no-such-id")
			require.Error(t, err)
			assert.True(t, IsNotFound(err))
		})
	}
}

func TestStore_ListWithStateFilter(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			running := sampleContext("running")
			running.SetState(types.StateInjecting)
			done := sampleContext("done")
			done.SetState(types.StateCompleted)
			require.NoError(t, st.Save(running))
			require.NoError(t, st.Save(done))

			all, err := st.List(Filter{})
			require.NoError(t, err)
			assert.Len(t, all, 2)

			nonTerminal, err := st.List(Filter{States: []types.State{
				types.StateInjecting, types.StateObserving, types.StateCleaning,
			}})
			require.NoError(t, err)
			require.Len(t, nonTerminal, 1)
			assert.Equal(t, running.ID, nonTerminal[0].ID)
			assert.Equal(t, "running", nonTerminal[0].Name)
		})
	}
}

func TestBoltStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	st, err := NewBoltStore(dir)
	require.NoError(t, err)

	ec := sampleContext("persistent")
	ec.SetState(types.StateInjecting)
	require.NoError(t, st.Save(ec))
	require.NoError(t, st.Close())

	// a new process opening the same directory sees the crashed run
	reopened, err := NewBoltStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateInjecting, loaded.State)
	require.Len(t, loaded.Injections, 1)
	assert.Equal(t, types.InjectionActive, loaded.Injections[0].Status)
}

func TestFilter_Matches(t *testing.T) {
	assert.True(t, Filter{}.Matches(types.StateCompleted))
	f := Filter{States: []types.State{types.StateCleaning}}
	assert.True(t, f.Matches(types.StateCleaning))
	assert.False(t, f.Matches(types.StateCompleted))
}
