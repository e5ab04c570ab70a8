package cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/chaosworks/havok/pkg/log"
	"github.com/chaosworks/havok/pkg/metrics"
	"github.com/chaosworks/havok/pkg/store"
	"github.com/chaosworks/havok/pkg/types"
)

// removeCallTimeout bounds one strategy remove call during a sweep
const removeCallTimeout = 30 * time.Second

// Daemon is the background sweeper guaranteeing that every fault is
// eventually removed. It runs independently of any single experiment and is
// driven purely from the arena and the persisted state, never from
// process-exit hooks.
type Daemon struct {
	arena    *Arena
	store    store.Store
	interval time.Duration
	alertAge time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewDaemon returns a cleanup daemon sweeping on the given interval
func NewDaemon(arena *Arena, st store.Store, interval, alertAge time.Duration) *Daemon {
	return &Daemon{
		arena:    arena,
		store:    st,
		interval: interval,
		alertAge: alertAge,
	}
}

// Start launches the sweep loop
func (d *Daemon) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				d.Sweep()
			}
		}
	}()
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish
func (d *Daemon) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

// Sweep walks every registered experiment and removes the records whose
// time-to-live expired. Recovered experiments have all their active records
// treated as immediately eligible. Removal failures are logged and retried on
// the next sweep, there is no retry cap.
func (d *Daemon) Sweep() {
	metrics.CleanupSweepsTotal.Inc()
	now := time.Now()
	for _, e := range d.arena.snapshot() {
		d.sweepEntry(e, now, e.recovered)
	}
}

// ForceCleanup removes every still-active record of one experiment right
// away, ignoring the time-to-live. It reports whether all records reached a
// terminal status; the engine loops on it until cleanup converges.
func (d *Daemon) ForceCleanup(id string) bool {
	e, ok := d.arena.get(id)
	if !ok {
		return true
	}
	d.sweepEntry(e, time.Now(), true)
	return e.ec.AllInjectionsTerminal()
}

func (d *Daemon) sweepEntry(e *entry, now time.Time, force bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dirty := false
	for _, rec := range e.ec.ActiveInjections() {
		if !force && !rec.Expired(now) {
			continue
		}
		if d.removeRecord(e, rec, now) {
			dirty = true
		}
	}

	if dirty {
		if err := d.store.Save(e.ec); err != nil {
			log.Errorf("[Cleanup]: Unable to persist context %v after sweep, %v", e.ec.ID, err)
		}
	}
}

// removeRecord reconciles one active record, it returns true when the record
// reached the removed status
func (d *Daemon) removeRecord(e *entry, rec types.InjectionRecord, now time.Time) bool {
	ctx, cancel := context.WithTimeout(context.Background(), removeCallTimeout)
	defer cancel()

	// a strategy may have silently lost track of the fault, the liveness
	// probe spares a pointless remove call
	if active, err := e.strat.IsActive(ctx, rec.Handle); err == nil && !active {
		e.ec.MarkInjectionRemoved(rec.Handle, now)
		metrics.InjectionsActive.Dec()
		delete(e.firstFailure, rec.Handle)
		return true
	}

	if err := e.strat.Remove(ctx, rec.Handle); err != nil {
		metrics.CleanupRetriesTotal.Inc()
		if _, seen := e.firstFailure[rec.Handle]; !seen {
			e.firstFailure[rec.Handle] = now
		}
		age := now.Sub(e.firstFailure[rec.Handle])
		if age >= d.alertAge {
			// unresolved past the alert age, page the operator
			log.ErrorWithValues("[Alert]: Fault removal keeps failing", map[string]interface{}{
				"ExperimentID": e.ec.ID,
				"Handle":       rec.Handle,
				"FailingFor":   age.String(),
				"Reason":       err.Error(),
			})
		} else {
			log.Warnf("[Cleanup]: Unable to remove fault %v, will retry on the next sweep, %v", rec.Handle, err)
		}
		e.ec.AddError("Cleanup", rec.Target.ID, err.Error())
		return false
	}

	log.Infof("[Cleanup]: Fault %v removed", rec.Handle)
	e.ec.MarkInjectionRemoved(rec.Handle, now)
	metrics.InjectionsActive.Dec()
	delete(e.firstFailure, rec.Handle)
	return true
}
