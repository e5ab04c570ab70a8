package engine

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/chaosworks/havok/pkg/cerrors"
	"github.com/chaosworks/havok/pkg/cleanup"
	"github.com/chaosworks/havok/pkg/environment"
	"github.com/chaosworks/havok/pkg/log"
	"github.com/chaosworks/havok/pkg/metrics"
	"github.com/chaosworks/havok/pkg/observer"
	"github.com/chaosworks/havok/pkg/rollout"
	"github.com/chaosworks/havok/pkg/safety"
	"github.com/chaosworks/havok/pkg/store"
	"github.com/chaosworks/havok/pkg/strategy"
	"github.com/chaosworks/havok/pkg/types"
)

// TargetSource supplies the full candidate target population at selection time
type TargetSource interface {
	Candidates(ctx context.Context) ([]types.Target, error)
}

// StaticTargets is a fixed candidate population
type StaticTargets []types.Target

// Candidates returns the fixed population
func (s StaticTargets) Candidates(ctx context.Context) ([]types.Target, error) {
	return s, nil
}

// run tracks one in-flight experiment
type run struct {
	ec     *types.ExperimentContext
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine owns the experiment lifecycle: it wires target selection, the
// progressive rollout, the observer pool, the safety monitor and the cleanup
// daemon together, persisting the context through the store after every state
// transition. Transitions of a single experiment are totally ordered,
// different experiments run fully in parallel up to the global cap.
type Engine struct {
	details    environment.EngineDetails
	store      store.Store
	strategies *strategy.Registry
	observers  map[string]observer.Observer
	source     TargetSource

	// Approval gates the next rollout batch when continueOnSuccess is false
	Approval rollout.ApprovalFunc

	arena  *cleanup.Arena
	daemon *cleanup.Daemon

	mu   sync.Mutex
	runs map[string]*run

	// wg tracks the cleanup goroutines spawned for recovered experiments
	wg sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
	metricsSrv *http.Server
}

// New returns an engine over the given store, strategies, observers and
// candidate source
func New(details environment.EngineDetails, st store.Store, strategies *strategy.Registry, observers map[string]observer.Observer, source TargetSource) *Engine {
	arena := cleanup.NewArena()
	return &Engine{
		details:    details,
		store:      st,
		strategies: strategies,
		observers:  observers,
		source:     source,
		arena:      arena,
		daemon:     cleanup.NewDaemon(arena, st, details.SweepInterval, details.CleanupAlertAge),
		runs:       map[string]*run{},
	}
}

// Start launches the cleanup daemon and the metrics endpoint, then recovers
// every non-terminal context left behind by a previous process
func (e *Engine) Start(ctx context.Context) error {
	e.rootCtx, e.rootCancel = context.WithCancel(ctx)
	e.daemon.Start(e.rootCtx)

	if e.details.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		e.metricsSrv = &http.Server{Addr: e.details.MetricsAddr, Handler: mux}
		go func() {
			if err := e.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("Unable to serve metrics on %v, %v", e.details.MetricsAddr, err)
			}
		}()
	}

	log.Info("[Engine]: Chaos engine started")
	return e.recover()
}

// Stop cooperatively shuts the engine down: every running experiment receives
// an emergency stop, in-flight strategy calls finish and their faults are
// cleaned before the daemon halts
func (e *Engine) Stop() {
	e.mu.Lock()
	var waiting []*run
	for _, r := range e.runs {
		r.cancel()
		waiting = append(waiting, r)
	}
	e.mu.Unlock()

	for _, r := range waiting {
		<-r.done
	}
	e.wg.Wait()

	e.daemon.Stop()
	if e.rootCancel != nil {
		e.rootCancel()
	}
	if e.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.metricsSrv.Shutdown(shutdownCtx)
	}
	log.Info("[Engine]: Chaos engine stopped")
}

// Submit admits a new experiment: the global concurrency check and the
// well-formedness guard run before any side effect, then the context is
// persisted and the lifecycle goroutine takes over. It returns the experiment id.
func (e *Engine) Submit(def types.Experiment) (string, error) {
	if err := e.wellFormed(def); err != nil {
		return "", err
	}

	ec := types.NewExperimentContext(def)
	runCtx, cancel := context.WithCancel(e.rootCtx)
	r := &run{ec: ec, cancel: cancel, done: make(chan struct{})}

	// the concurrency cap is checked and the slot reserved under one lock,
	// concurrent submissions can never over-admit
	e.mu.Lock()
	if err := safety.CanAdmit(len(e.runs), e.details.MaxConcurrentExperiments); err != nil {
		e.mu.Unlock()
		cancel()
		return "", err
	}
	e.runs[ec.ID] = r
	e.mu.Unlock()

	release := func() {
		cancel()
		e.mu.Lock()
		delete(e.runs, ec.ID)
		e.mu.Unlock()
	}

	if err := e.store.Save(ec); err != nil {
		release()
		return "", err
	}
	if err := e.transition(ec, types.EventSubmit); err != nil {
		release()
		return "", err
	}
	metrics.ExperimentsRunning.Inc()

	go e.runExperiment(runCtx, r)

	log.InfoWithValues("[Engine]: Experiment admitted", map[string]interface{}{
		"ExperimentID": ec.ID,
		"Name":         def.Name,
		"Fault":        def.Fault.Type,
	})
	return ec.ID, nil
}

// Status returns the current lifecycle state of the experiment
func (e *Engine) Status(id string) (types.State, error) {
	e.mu.Lock()
	r, ok := e.runs[id]
	e.mu.Unlock()
	if ok {
		return r.ec.Snapshot().State, nil
	}
	ec, err := e.store.Load(id)
	if err != nil {
		return "", err
	}
	return ec.State, nil
}

// EmergencyStop delivers the cooperative cancel signal to a running
// experiment, in-flight injections finish but no new work is admitted
func (e *Engine) EmergencyStop(id string) error {
	e.mu.Lock()
	r, ok := e.runs[id]
	e.mu.Unlock()
	if ok {
		log.Warnf("[Engine]: Emergency stop requested for experiment %v", id)
		r.cancel()
		return nil
	}
	// not running, valid only if the id is known at all
	if _, err := e.store.Load(id); err != nil {
		return err
	}
	return nil
}

// Wait blocks until the experiment's lifecycle goroutine finished
func (e *Engine) Wait(id string) {
	e.mu.Lock()
	r, ok := e.runs[id]
	e.mu.Unlock()
	if ok {
		<-r.done
	}
}

// Validate checks a definition without admitting it, for dry runs
func (e *Engine) Validate(def types.Experiment) error {
	return e.wellFormed(def)
}

// wellFormed is the Pending->Validating guard, it rejects a malformed
// definition before any side effect
func (e *Engine) wellFormed(def types.Experiment) error {
	reject := func(reason string) error {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeValidation, Reason: reason}
	}
	if def.Name == "" {
		return reject("experiment name is required")
	}
	if def.Fault.Type == "" {
		return reject("fault type is required")
	}
	if _, err := e.strategies.Get(def.Fault.Type); err != nil {
		return err
	}
	if def.InjectionDurationSeconds <= 0 {
		return reject("injectionDurationSeconds must be positive")
	}
	if def.ObservationDurationSeconds < 0 {
		return reject("observationDurationSeconds must not be negative")
	}
	if def.Selector.MaxBlastRadiusPct <= 0 || def.Selector.MaxBlastRadiusPct > 1 {
		return reject("selector.maxBlastRadiusPct must be in (0, 1]")
	}
	if def.Rollout.InitialPct <= 0 || def.Rollout.InitialPct > 1 {
		return reject("rollout.initialPct must be in (0, 1]")
	}
	for _, trigger := range def.Rollback.Triggers {
		if _, ok := e.observers[trigger.Metric]; !ok {
			return reject("rollback trigger references unknown observer '" + trigger.Metric + "'")
		}
	}
	if def.Hypothesis != nil {
		if len(def.Hypothesis.Probes) == 0 {
			return reject("hypothesis requires at least one probe")
		}
		if def.Hypothesis.DurationMs <= 0 {
			return reject("hypothesis.durationMs must be positive")
		}
		for _, p := range def.Hypothesis.Probes {
			if _, ok := e.observers[p.Observer]; !ok {
				return reject("probe '" + p.Name + "' references unknown observer '" + p.Observer + "'")
			}
		}
	}
	return nil
}

// transition applies one lifecycle event and persists the new state before
// any side-effecting action begins (write-ahead). A failed persistence rolls
// the in-memory state back and the engine must not proceed.
func (e *Engine) transition(ec *types.ExperimentContext, event types.Event) error {
	next, err := NextState(ec.Snapshot().State, event)
	if err != nil {
		return err
	}
	prev := ec.SetState(next)
	if err := e.store.Save(ec); err != nil {
		ec.SetState(prev)
		return err
	}
	log.Infof("[Status]: Experiment %v moved %v -> %v on %v", ec.ID, prev, next, event)
	return nil
}
