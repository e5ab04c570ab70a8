package engine

import (
	"context"
	"time"

	"github.com/chaosworks/havok/pkg/cerrors"
	"github.com/chaosworks/havok/pkg/events"
	"github.com/chaosworks/havok/pkg/injector"
	"github.com/chaosworks/havok/pkg/log"
	"github.com/chaosworks/havok/pkg/metrics"
	"github.com/chaosworks/havok/pkg/observer"
	"github.com/chaosworks/havok/pkg/probe"
	"github.com/chaosworks/havok/pkg/rollout"
	"github.com/chaosworks/havok/pkg/safety"
	"github.com/chaosworks/havok/pkg/selector"
	"github.com/chaosworks/havok/pkg/store"
	"github.com/chaosworks/havok/pkg/strategy"
	"github.com/chaosworks/havok/pkg/telemetry"
	"github.com/chaosworks/havok/pkg/types"
)

// cleanupPollInterval paces the convergence loop that waits for every
// injection record to reach a terminal status
const cleanupPollInterval = 500 * time.Millisecond

// runExperiment drives one experiment through its whole lifecycle
func (e *Engine) runExperiment(ctx context.Context, r *run) {
	ec := r.ec
	defer func() {
		e.mu.Lock()
		delete(e.runs, ec.ID)
		e.mu.Unlock()
		metrics.ExperimentsRunning.Dec()
		metrics.ExperimentsTotal.WithLabelValues(string(ec.Snapshot().State)).Inc()
		close(r.done)
	}()

	strat, err := e.strategies.Get(ec.Definition.Fault.Type)
	if err != nil {
		// the submit guard already checked this, losing the strategy now
		// means a misconfigured registry
		e.failValidation(ec, "Resolving the fault strategy", err)
		return
	}

	// Validating: deep checks and the steady-state pre-check, the target list
	// is frozen here and never recomputed mid-run
	spanCtx, span := telemetry.StartSpan(ctx, "Validating")
	err = e.validate(spanCtx, ec, strat)
	span.End()
	if err != nil {
		e.failValidation(ec, "Validating the experiment definition", err)
		return
	}

	// the arena covers the experiment before the first fault lands so that a
	// crash mid-injection still leaves the daemon a record to reconcile
	e.arena.Register(ec, strat)

	if err := e.transition(ec, types.EventValidationPassed); err != nil {
		log.Errorf("Unable to persist the Injecting transition for %v, %v", ec.ID, err)
		e.arena.Deregister(ec.ID)
		return
	}

	if ec.Definition.RampSeconds != 0 {
		log.Infof("[Ramp]: Waiting for the %vs ramp time before injecting chaos", ec.Definition.RampSeconds)
		time.Sleep(time.Duration(ec.Definition.RampSeconds) * time.Second)
	}

	// observation and safety run for the whole Injecting+Observing window
	obsCtx, obsCancel := context.WithCancel(context.Background())
	defer obsCancel()
	pool := observer.NewPool(ec)
	for name, obs := range e.experimentObservers(ec.Definition) {
		pool.Register(obs, e.details.ObserverPollInterval)
		log.Infof("[Observe]: Observer %v registered", name)
	}
	targets := append([]types.Target(nil), ec.Targets...)
	pool.Start(obsCtx, targets)
	defer pool.Stop()

	monitor := safety.NewMonitor(ec, pool, e.details.SafetyCheckInterval)
	violations := monitor.Run(obsCtx)

	// injCtx is the admission token of the injector pool, cancelling it stops
	// new tasks while in-flight strategy calls finish
	injCtx, injCancel := context.WithCancel(ctx)
	defer injCancel()
	injPool := injector.NewPool(strat, ec, e.details.InjectorWorkers, e.details.QueueCapacity, uint(e.details.MaxInjectionAttempts))
	injPool.Start(injCtx)
	defer injPool.Stop()

	events.GenerateEvent(ec, types.ChaosInject, "Injecting "+ec.Definition.Fault.Type+" chaos into "+ec.Definition.Name, events.TypeNormal)

	deadline := time.Now().Add(time.Duration(ec.Definition.InjectionDurationSeconds) * time.Second)
	ctrl := rollout.NewController(injPool, ec.Definition.Rollout, e.Approval)
	rolloutDone := make(chan error, 1)
	go func() {
		rolloutDone <- ctrl.Run(injCtx, targets, ec.Definition.Fault.Params, deadline)
	}()

	rolloutFinished := false
	select {
	case err := <-rolloutDone:
		rolloutFinished = true
		if err != nil {
			e.abort(ctx, ec, types.EventEmergencyStop, err.Error(), injCancel, rolloutDone, rolloutFinished)
			return
		}
	case status := <-violations:
		e.abort(ctx, ec, types.EventSafetyTriggered, status.Reason, injCancel, rolloutDone, rolloutFinished)
		return
	case <-ctx.Done():
		e.abort(ctx, ec, types.EventEmergencyStop, "emergency stop signal received", injCancel, rolloutDone, rolloutFinished)
		return
	}

	if err := e.transition(ec, types.EventInjectionComplete); err != nil {
		log.Errorf("Unable to persist the Observing transition for %v, %v", ec.ID, err)
		e.reconcile(ec, rolloutDone, rolloutFinished)
		return
	}

	// Observing: the during-chaos hypothesis run and the remaining
	// observation window, the safety monitor stays armed throughout
	spanCtx, span = telemetry.StartSpan(ctx, "Observing")
	aborted := e.observe(spanCtx, ec, violations, injCancel, rolloutDone)
	span.End()
	if aborted {
		return
	}

	obsCancel()
	pool.Stop()

	if err := e.transition(ec, types.EventObservationComplete); err != nil {
		log.Errorf("Unable to persist the Cleaning transition for %v, %v", ec.ID, err)
		e.reconcile(ec, rolloutDone, rolloutFinished)
		return
	}

	// Cleaning: force-remove every fault and wait for convergence
	spanCtx, span = telemetry.StartSpan(ctx, "Cleaning")
	e.reconcile(ec, rolloutDone, rolloutFinished)
	span.End()

	// post-chaos steady-state run closes the before/during/after triad
	if ec.Definition.Hypothesis != nil {
		if res, err := probe.NewValidator().Run(ctx, *ec.Definition.Hypothesis, e.experimentObservers(ec.Definition), targets); err != nil {
			ec.AddError(types.PostChaosCheck, "", err.Error())
		} else {
			ec.SetAfter(res)
			log.Infof("[Status]: Post-chaos steady state verdict: %v", probe.VerdictString(res.Verdict))
		}
	}

	if ec.Definition.RampSeconds != 0 {
		log.Infof("[Ramp]: Waiting for the %vs ramp time after injecting chaos", ec.Definition.RampSeconds)
		time.Sleep(time.Duration(ec.Definition.RampSeconds) * time.Second)
	}

	if err := e.transition(ec, types.EventCleanupComplete); err != nil {
		log.Errorf("Unable to persist the Completed transition for %v, %v", ec.ID, err)
		return
	}
	e.arena.Deregister(ec.ID)

	events.GenerateEvent(ec, types.Summary, ec.Definition.Name+" experiment has been completed", events.TypeNormal)
	if err := e.store.Save(ec); err != nil {
		log.Errorf("Unable to persist the final context of %v, %v", ec.ID, err)
	}
}

// validate runs the deep definition checks, freezes the target list and
// performs the steady-state pre-check
func (e *Engine) validate(ctx context.Context, ec *types.ExperimentContext, strat strategy.FaultStrategy) error {
	if err := strat.Validate(ec.Definition.Fault.Params); err != nil {
		return err
	}

	candidates, err := e.source.Candidates(ctx)
	if err != nil {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeTargetSelection,
			Reason:    "unable to resolve the candidate population: " + err.Error(),
		}
	}
	targets, total, err := selector.Select(candidates, ec.Definition.Selector)
	if err != nil {
		return err
	}
	ec.Targets = targets
	ec.TotalCandidates = total

	if ec.Definition.Hypothesis != nil {
		log.Info("[Status]: Running the steady-state pre-check (pre-chaos)")
		res, err := probe.NewValidator().Run(ctx, *ec.Definition.Hypothesis, e.experimentObservers(ec.Definition), targets)
		if err != nil {
			return err
		}
		ec.SetBaseline(res)
		events.GenerateEvent(ec, types.PreChaosCheck, "Steady-state baseline verdict: "+probe.VerdictString(res.Verdict), events.TypeNormal)
		if !res.Verdict {
			return cerrors.Error{
				ErrorCode: cerrors.ErrorTypeValidation,
				Phase:     types.PreChaosCheck,
				Reason:    "steady-state pre-check failed, the system is not healthy enough to experiment on",
			}
		}
	}

	return e.store.Save(ec)
}

// observe runs the Observing phase, it returns true when the experiment was
// aborted (and the abort path already handled cleanup)
func (e *Engine) observe(ctx context.Context, ec *types.ExperimentContext, violations <-chan types.SafetyStatus, injCancel context.CancelFunc, rolloutDone chan error) bool {
	durDone := make(chan struct{})
	if ec.Definition.Hypothesis != nil {
		go func() {
			defer close(durDone)
			log.Info("[Status]: Running the steady-state hypothesis (during-chaos)")
			res, err := probe.NewValidator().Run(ctx, *ec.Definition.Hypothesis, e.experimentObservers(ec.Definition), ec.Targets)
			if err != nil {
				ec.AddError("DuringChaos", "", err.Error())
				return
			}
			ec.SetDuring(res)
			log.Infof("[Status]: During-chaos steady state verdict: %v", probe.VerdictString(res.Verdict))
		}()
	} else {
		close(durDone)
	}

	obsDuration := time.Duration(ec.Definition.ObservationDurationSeconds) * time.Second
	log.Infof("[Wait]: Waiting for the observation duration of %v", obsDuration)
	timer := time.NewTimer(obsDuration)
	defer timer.Stop()

	select {
	case <-timer.C:
		<-durDone
		return false
	case status := <-violations:
		e.abort(ctx, ec, types.EventSafetyTriggered, status.Reason, injCancel, rolloutDone, true)
		return true
	case <-ctx.Done():
		e.abort(ctx, ec, types.EventEmergencyStop, "emergency stop signal received", injCancel, rolloutDone, true)
		return true
	}
}

// abort transitions into Aborted and forces cleaning immediately, in
// parallel with any still-finishing injector calls
func (e *Engine) abort(ctx context.Context, ec *types.ExperimentContext, event types.Event, reason string, injCancel context.CancelFunc, rolloutDone chan error, rolloutFinished bool) {
	injCancel()

	ec.SetFailStep(reason)
	if err := e.transition(ec, event); err != nil {
		log.Errorf("Unable to persist the Aborted transition for %v, %v", ec.ID, err)
	}
	events.GenerateEvent(ec, types.Summary, ec.Definition.Name+" experiment has been aborted: "+reason, events.TypeWarning)

	e.reconcile(ec, rolloutDone, rolloutFinished)
	e.arena.Deregister(ec.ID)
	if err := e.store.Save(ec); err != nil {
		log.Errorf("Unable to persist the final context of %v, %v", ec.ID, err)
	}
}

// reconcile force-removes every fault of the experiment until all records are
// terminal, records created by still-finishing injector calls are picked up
// by later passes
func (e *Engine) reconcile(ec *types.ExperimentContext, rolloutDone chan error, rolloutFinished bool) {
	for {
		select {
		case <-rolloutDone:
			rolloutFinished = true
		default:
		}
		allTerminal := e.daemon.ForceCleanup(ec.ID)
		if allTerminal && rolloutFinished {
			return
		}
		time.Sleep(cleanupPollInterval)
	}
}

// experimentObservers resolves the observers referenced by the rollback
// triggers and the hypothesis probes of the definition
func (e *Engine) experimentObservers(def types.Experiment) map[string]observer.Observer {
	wired := map[string]observer.Observer{}
	for _, trigger := range def.Rollback.Triggers {
		if obs, ok := e.observers[trigger.Metric]; ok {
			wired[trigger.Metric] = obs
		}
	}
	if def.Hypothesis != nil {
		for _, p := range def.Hypothesis.Probes {
			if obs, ok := e.observers[p.Observer]; ok {
				wired[p.Observer] = obs
			}
		}
	}
	return wired
}

// failValidation aborts an experiment that never reached injection
func (e *Engine) failValidation(ec *types.ExperimentContext, failStep string, cause error) {
	reason, code := cerrors.GetRootCauseAndErrorCode(cause)
	log.Errorf("Validation failed for experiment %v (%v), %v", ec.ID, code, reason)
	ec.SetFailStep(failStep)
	ec.AddError("Validate", "", reason)
	if err := e.transition(ec, types.EventValidationFailed); err != nil {
		log.Errorf("Unable to persist the Aborted transition for %v, %v", ec.ID, err)
	}
	events.GenerateEvent(ec, types.Summary, ec.Definition.Name+" experiment has been aborted during validation", events.TypeWarning)
	if err := e.store.Save(ec); err != nil {
		log.Errorf("Unable to persist the final context of %v, %v", ec.ID, err)
	}
}

// recover scans the store for contexts a previous process left non-terminal
// and re-enters Cleaning unconditionally for each of them
func (e *Engine) recover() error {
	summaries, err := e.store.List(store.Filter{States: []types.State{
		types.StatePending,
		types.StateValidating,
		types.StateInjecting,
		types.StateObserving,
		types.StateCleaning,
	}})
	if err != nil {
		return err
	}

	for _, summary := range summaries {
		ec, err := e.store.Load(summary.ID)
		if err != nil {
			log.Errorf("Unable to load context %v for recovery, %v", summary.ID, err)
			continue
		}
		strat, err := e.strategies.Get(ec.Definition.Fault.Type)
		if err != nil {
			log.Errorf("Unable to recover experiment %v, its fault strategy is gone, %v", ec.ID, err)
			continue
		}

		// the resume rule of the write-ahead log: whatever the last persisted
		// state was, re-enter Cleaning and reconcile from the records
		log.Warnf("[Recover]: Experiment %v found in state %v, re-entering Cleaning", ec.ID, ec.State)
		ec.SetState(types.StateCleaning)
		if err := e.store.Save(ec); err != nil {
			log.Errorf("Unable to persist the recovered state of %v, %v", ec.ID, err)
			continue
		}
		e.arena.RegisterRecovered(ec, strat)

		e.wg.Add(1)
		go func(ec *types.ExperimentContext) {
			defer e.wg.Done()
			for !e.daemon.ForceCleanup(ec.ID) {
				time.Sleep(e.details.SweepInterval)
			}
			if err := e.transition(ec, types.EventCleanupComplete); err != nil {
				log.Errorf("Unable to complete recovered experiment %v, %v", ec.ID, err)
				return
			}
			e.arena.Deregister(ec.ID)
			log.Infof("[Recover]: Experiment %v cleaned up and completed", ec.ID)
		}(ec)
	}
	return nil
}
