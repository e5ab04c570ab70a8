package rollout

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaosworks/havok/pkg/injector"
	"github.com/chaosworks/havok/pkg/types"
)

type recordingStrategy struct {
	mu       sync.Mutex
	injected []string
}

func (s *recordingStrategy) Name() string                            { return "recording" }
func (s *recordingStrategy) Validate(params map[string]string) error { return nil }
func (s *recordingStrategy) Remove(ctx context.Context, handle string) error {
	return nil
}
func (s *recordingStrategy) IsActive(ctx context.Context, handle string) (bool, error) {
	return true, nil
}
func (s *recordingStrategy) Inject(ctx context.Context, target types.Target, params map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injected = append(s.injected, target.ID)
	return "handle-" + target.ID, nil
}

func targetsOf(n int) []types.Target {
	targets := make([]types.Target, 0, n)
	for i := 0; i < n; i++ {
		targets = append(targets, types.Target{ID: fmt.Sprintf("t%d", i), Kind: "process"})
	}
	return targets
}

func TestRun_DrainsInIncreasingBatches(t *testing.T) {
	ec := types.NewExperimentContext(types.Experiment{Name: "rollout-test"})
	strat := &recordingStrategy{}
	pool := injector.NewPool(strat, ec, 2, 8, 1)
	pool.Start(context.Background())
	defer pool.Stop()

	// 2 targets at initialPct 0.5 -> batch size 1, two batches
	ctrl := NewController(pool, types.RolloutSpec{InitialPct: 0.5, ContinueOnSuccess: true}, nil)
	err := ctrl.Run(context.Background(), targetsOf(2), nil, time.Now().Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, 2, ec.ActiveCount())
	strat.mu.Lock()
	defer strat.mu.Unlock()
	assert.Len(t, strat.injected, 2)
}

func TestRun_SingleBatchAtFullPct(t *testing.T) {
	ec := types.NewExperimentContext(types.Experiment{Name: "rollout-test"})
	pool := injector.NewPool(&recordingStrategy{}, ec, 4, 8, 1)
	pool.Start(context.Background())
	defer pool.Stop()

	ctrl := NewController(pool, types.RolloutSpec{InitialPct: 1.0, ContinueOnSuccess: true}, nil)
	err := ctrl.Run(context.Background(), targetsOf(5), nil, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 5, ec.ActiveCount())
}

func TestRun_ApprovalGateBlocksNextBatch(t *testing.T) {
	ec := types.NewExperimentContext(types.Experiment{Name: "rollout-test"})
	pool := injector.NewPool(&recordingStrategy{}, ec, 2, 8, 1)
	pool.Start(context.Background())
	defer pool.Stop()

	approvals := 0
	gate := func(ctx context.Context, batch int, remaining int) error {
		approvals++
		return nil
	}
	ctrl := NewController(pool, types.RolloutSpec{InitialPct: 0.25, ContinueOnSuccess: false}, gate)
	err := ctrl.Run(context.Background(), targetsOf(4), nil, time.Now().Add(time.Minute))
	require.NoError(t, err)

	// four batches of one, the gate runs between batches only
	assert.Equal(t, 4, ec.ActiveCount())
	assert.Equal(t, 3, approvals)
}

func TestRun_ApprovalDeniedStopsRollout(t *testing.T) {
	ec := types.NewExperimentContext(types.Experiment{Name: "rollout-test"})
	pool := injector.NewPool(&recordingStrategy{}, ec, 2, 8, 1)
	pool.Start(context.Background())
	defer pool.Stop()

	gate := func(ctx context.Context, batch int, remaining int) error {
		return fmt.Errorf("operator declined")
	}
	ctrl := NewController(pool, types.RolloutSpec{InitialPct: 0.5, ContinueOnSuccess: false}, gate)
	err := ctrl.Run(context.Background(), targetsOf(4), nil, time.Now().Add(time.Minute))
	require.Error(t, err)

	// only the first batch made it in
	assert.Equal(t, 2, ec.ActiveCount())
}

func TestRun_DeadlineStopsUndrainedTargets(t *testing.T) {
	ec := types.NewExperimentContext(types.Experiment{Name: "rollout-test"})
	pool := injector.NewPool(&recordingStrategy{}, ec, 2, 8, 1)
	pool.Start(context.Background())
	defer pool.Stop()

	// deadline already passed, nothing gets injected and that is not an error
	ctrl := NewController(pool, types.RolloutSpec{InitialPct: 0.5, ContinueOnSuccess: true}, nil)
	err := ctrl.Run(context.Background(), targetsOf(4), nil, time.Now().Add(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0, ec.ActiveCount())
}

func TestRun_CancelledContext(t *testing.T) {
	ec := types.NewExperimentContext(types.Experiment{Name: "rollout-test"})
	pool := injector.NewPool(&recordingStrategy{}, ec, 2, 8, 1)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	defer pool.Stop()
	cancel()

	ctrl := NewController(pool, types.RolloutSpec{InitialPct: 0.5, ContinueOnSuccess: true}, nil)
	err := ctrl.Run(ctx, targetsOf(4), nil, time.Now().Add(time.Minute))
	require.Error(t, err)
}
