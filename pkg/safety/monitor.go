package safety

import (
	"context"
	"fmt"
	"time"

	"github.com/chaosworks/havok/pkg/cerrors"
	"github.com/chaosworks/havok/pkg/log"
	"github.com/chaosworks/havok/pkg/math"
	"github.com/chaosworks/havok/pkg/metrics"
	"github.com/chaosworks/havok/pkg/types"
)

// LatestSource exposes the most recent sample per observer, the observer pool
// implements it
type LatestSource interface {
	Latest(name string) (types.Observation, bool)
}

// Monitor continuously evaluates the blast-radius and metric-threshold
// conditions while the experiment is injecting or observing, either check is
// sufficient to flip the status to violation
type Monitor struct {
	ec                *types.ExperimentContext
	latest            LatestSource
	maxBlastRadiusPct float64
	triggers          []types.RollbackTrigger
	interval          time.Duration
}

// NewMonitor returns a safety monitor bound to one experiment context
func NewMonitor(ec *types.ExperimentContext, latest LatestSource, interval time.Duration) *Monitor {
	return &Monitor{
		ec:                ec,
		latest:            latest,
		maxBlastRadiusPct: ec.Definition.Selector.MaxBlastRadiusPct,
		triggers:          ec.Definition.Rollback.Triggers,
		interval:          interval,
	}
}

// Check recomputes the safety status from the context and the live signals,
// it is derived state and never persisted
func (m *Monitor) Check() types.SafetyStatus {
	// blast radius against the candidate count frozen at selection time,
	// rounded up the same way the selector rounds, everything the selector
	// admitted stays legal
	affected := m.ec.ActiveCount()
	total := m.ec.TotalCandidates
	if limit := math.Adjustment(m.maxBlastRadiusPct, total); total > 0 && affected > limit {
		metrics.SafetyViolationsTotal.WithLabelValues("blast-radius").Inc()
		return types.SafetyStatus{
			Safe: false,
			Reason: fmt.Sprintf("blast radius exceeded: %d of %d targets affected, cap %d (%v)",
				affected, total, limit, m.maxBlastRadiusPct),
		}
	}

	// metric thresholds against the observer pool's latest samples
	for _, trigger := range m.triggers {
		obs, ok := m.latest.Latest(trigger.Metric)
		if !ok {
			continue
		}
		if obs.Value > trigger.Threshold {
			metrics.SafetyViolationsTotal.WithLabelValues("metric-threshold").Inc()
			return types.SafetyStatus{
				Safe: false,
				Reason: fmt.Sprintf("rollback trigger fired: %s=%v exceeds threshold %v",
					trigger.Metric, obs.Value, trigger.Threshold),
			}
		}
	}

	return types.SafetyStatus{Safe: true}
}

// Run evaluates the checks on the monitor cadence until the context is
// cancelled, the first violation is delivered on the returned channel and the
// monitor stops
func (m *Monitor) Run(ctx context.Context) <-chan types.SafetyStatus {
	violations := make(chan types.SafetyStatus, 1)
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if status := m.Check(); !status.Safe {
					log.Errorf("[Safety]: %v", status.Reason)
					violations <- status
					return
				}
			}
		}
	}()
	return violations
}

// CanAdmit is the global pre-admission check, it rejects a new experiment
// when the system-wide concurrency cap is already reached
func CanAdmit(running, maxConcurrent int) error {
	if running >= maxConcurrent {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeSafetyViolation,
			Reason: fmt.Sprintf("too many concurrently active experiments: %d running, cap %d",
				running, maxConcurrent),
		}
	}
	return nil
}
