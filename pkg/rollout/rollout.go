package rollout

import (
	"context"
	"time"

	"github.com/chaosworks/havok/pkg/cerrors"
	"github.com/chaosworks/havok/pkg/injector"
	"github.com/chaosworks/havok/pkg/log"
	"github.com/chaosworks/havok/pkg/math"
	"github.com/chaosworks/havok/pkg/types"
)

// ApprovalFunc blocks until the next batch is approved when the rollout is
// not allowed to continue on success alone
type ApprovalFunc func(ctx context.Context, batch int, remaining int) error

// AutoApprove continues the rollout without an extra gate
func AutoApprove(ctx context.Context, batch int, remaining int) error {
	return nil
}

// Controller sequences injection into increasing batches with inter-batch
// observation pauses, delegating the per-target work to the injector pool.
// An already-injected target is never de-batched.
type Controller struct {
	pool              *injector.Pool
	initialPct        float64
	observationDelay  time.Duration
	continueOnSuccess bool
	approve           ApprovalFunc
}

// NewController returns a rollout controller for one experiment
func NewController(pool *injector.Pool, spec types.RolloutSpec, approve ApprovalFunc) *Controller {
	if approve == nil {
		approve = AutoApprove
	}
	return &Controller{
		pool:              pool,
		initialPct:        spec.InitialPct,
		observationDelay:  time.Duration(spec.ObservationDelaySeconds) * time.Second,
		continueOnSuccess: spec.ContinueOnSuccess,
		approve:           approve,
	}
}

// Run drains the frozen target list batch by batch until it is empty or the
// injection deadline passes. Every injected target carries a time-to-live
// equal to the injection duration still remaining at its batch.
func (c *Controller) Run(ctx context.Context, targets []types.Target, params map[string]string, deadline time.Time) error {
	batchSize := math.Maximum(1, math.Adjustment(c.initialPct, len(targets)))
	remaining := append([]types.Target(nil), targets...)

	for batch := 0; len(remaining) > 0; batch++ {
		if err := ctx.Err(); err != nil {
			return cerrors.Error{
				ErrorCode: cerrors.ErrorTypeInjection,
				Phase:     "Rollout",
				Reason:    "rollout stopped, experiment aborted",
			}
		}

		ttl := time.Until(deadline)
		if ttl <= 0 {
			log.Infof("[Rollout]: Injection duration elapsed with %v target(s) left undrained", len(remaining))
			return nil
		}

		size := math.Minimum(batchSize, len(remaining))
		current := remaining[:size]
		remaining = remaining[size:]

		log.Infof("[Rollout]: Injecting batch %v into %v target(s), %v remaining", batch+1, size, len(remaining))
		injected, err := c.pool.InjectBatch(ctx, current, params, ttl)
		if err != nil {
			return err
		}
		log.Infof("[Rollout]: Batch %v applied, %v of %v injection(s) succeeded", batch+1, injected, size)

		if len(remaining) == 0 {
			break
		}

		// inter-batch observation pause
		log.Infof("[Wait]: Waiting for the inter-batch observation delay of %v", c.observationDelay)
		select {
		case <-ctx.Done():
			return cerrors.Error{
				ErrorCode: cerrors.ErrorTypeInjection,
				Phase:     "Rollout",
				Reason:    "rollout stopped during observation delay",
			}
		case <-time.After(c.observationDelay):
		}

		if !c.continueOnSuccess {
			log.Info("[Rollout]: Blocking for continuation approval before the next batch")
			if err := c.approve(ctx, batch, len(remaining)); err != nil {
				return err
			}
		}
	}
	return nil
}
