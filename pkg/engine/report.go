package engine

import (
	"sort"

	"github.com/chaosworks/havok/pkg/probe"
	"github.com/chaosworks/havok/pkg/types"
)

// Report assembles the user-facing summary of an experiment, running or
// finished. The injection log is ordered by creation time.
func (e *Engine) Report(id string) (*types.Report, error) {
	e.mu.Lock()
	r, ok := e.runs[id]
	e.mu.Unlock()

	var snap types.ExperimentContext
	if ok {
		snap = r.ec.Snapshot()
	} else {
		ec, err := e.store.Load(id)
		if err != nil {
			return nil, err
		}
		snap = *ec
	}

	injections := append([]types.InjectionRecord(nil), snap.Injections...)
	sort.SliceStable(injections, func(i, j int) bool {
		return injections[i].CreatedAt.Before(injections[j].CreatedAt)
	})

	report := &types.Report{
		ExperimentID: snap.ID,
		Name:         snap.Definition.Name,
		FinalState:   snap.State,
		Before:       snap.Baseline,
		During:       snap.During,
		After:        snap.After,
		Injections:   injections,
		Errors:       append([]types.ErrorRecord(nil), snap.Errors...),
		Conclusion:   conclusion(snap),
		ProbeVerdict: probeVerdicts(snap),
	}
	return report, nil
}

// conclusion renders the one-line verdict of the experiment
func conclusion(snap types.ExperimentContext) string {
	switch snap.State {
	case types.StateAborted:
		if snap.FailStep != "" && snap.FailStep != "N/A" {
			return "experiment aborted: " + snap.FailStep
		}
		return "experiment aborted"
	case types.StateCompleted:
		if snap.During != nil && !snap.During.Verdict {
			return "experiment completed, the steady-state hypothesis failed under chaos"
		}
		if snap.After != nil && !snap.After.Verdict {
			return "experiment completed, the system did not return to steady state"
		}
		return "experiment completed, steady state held"
	default:
		return "experiment still running, verdict " + types.AwaitedVerdict
	}
}

// probeVerdicts summarises the before/during/after runs per phase
func probeVerdicts(snap types.ExperimentContext) map[string]string {
	verdicts := map[string]string{}
	if snap.Baseline != nil {
		verdicts[types.PreChaosCheck] = probe.VerdictString(snap.Baseline.Verdict)
	}
	if snap.During != nil {
		verdicts["DuringChaos"] = probe.VerdictString(snap.During.Verdict)
	}
	if snap.After != nil {
		verdicts[types.PostChaosCheck] = probe.VerdictString(snap.After.Verdict)
	}
	return verdicts
}
