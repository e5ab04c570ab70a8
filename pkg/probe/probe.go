package probe

import (
	"context"
	"time"

	"github.com/kyokomi/emoji"

	"github.com/chaosworks/havok/pkg/cerrors"
	"github.com/chaosworks/havok/pkg/log"
	"github.com/chaosworks/havok/pkg/observer"
	"github.com/chaosworks/havok/pkg/probe/comparator"
	"github.com/chaosworks/havok/pkg/types"
)

const (
	// DefaultTick is the sampling cadence of the steady-state validator
	DefaultTick = 100 * time.Millisecond
	// PassThreshold is the success rate a hypothesis needs to be judged passed
	PassThreshold = 0.95
)

// Validator runs a steady-state hypothesis, a set of probes sampled once per
// tick over a duration, and scores the overall pass/fail verdict
type Validator struct {
	Tick      time.Duration
	Threshold float64
}

// NewValidator returns a validator with the default tick and pass bar
func NewValidator() *Validator {
	return &Validator{
		Tick:      DefaultTick,
		Threshold: PassThreshold,
	}
}

type boundProbe struct {
	spec     types.ProbeSpec
	observer observer.Observer
	handle   string
}

// Run samples all probes once per tick for the hypothesis duration and scores
// success_rate = passed / total. The hypothesis passes iff the rate reaches
// the threshold. Probe errors count as failed samples, they never abort the run.
func (v *Validator) Run(ctx context.Context, hypothesis types.HypothesisSpec, observers map[string]observer.Observer, targets []types.Target) (*types.HypothesisResult, error) {
	probes, err := v.bind(hypothesis, observers, targets)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, p := range probes {
			if err := p.observer.Stop(p.handle); err != nil {
				log.Warnf("[Probe]: Unable to stop observer %v, %v", p.observer.Name(), err)
			}
		}
	}()

	result := &types.HypothesisResult{ProbeStats: map[string]int{}}
	deadline := time.Now().Add(time.Duration(hypothesis.DurationMs) * time.Millisecond)

	ticker := time.NewTicker(v.Tick)
	defer ticker.Stop()

	// the first round samples immediately so that short durations still score
	for {
		v.sampleAll(probes, result)
		if !time.Now().Before(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, cerrors.Error{
				ErrorCode: cerrors.ErrorTypeTimeout,
				Phase:     "SteadyState",
				Reason:    "hypothesis validation cancelled",
			}
		case <-ticker.C:
		}
	}

	result.SuccessRate, result.Verdict = Evaluate(result.Passed, result.Total, v.Threshold)
	return result, nil
}

// Evaluate scores a validation run, the hypothesis passes iff the success
// rate reaches the threshold
func Evaluate(passed, total int, threshold float64) (float64, bool) {
	if total == 0 {
		return 0, false
	}
	rate := float64(passed) / float64(total)
	return rate, rate >= threshold
}

// bind resolves every probe spec against the registered observers and opens
// the observation sessions
func (v *Validator) bind(hypothesis types.HypothesisSpec, observers map[string]observer.Observer, targets []types.Target) ([]*boundProbe, error) {
	var probes []*boundProbe
	for _, spec := range hypothesis.Probes {
		obs, ok := observers[spec.Observer]
		if !ok {
			return nil, cerrors.Error{
				ErrorCode: cerrors.ErrorTypeValidation,
				Reason:    "probe '" + spec.Name + "' references unknown observer '" + spec.Observer + "'",
			}
		}
		handle, err := obs.Start(targets)
		if err != nil {
			return nil, cerrors.Error{
				ErrorCode: cerrors.ErrorTypeObserver,
				Target:    spec.Observer,
				Reason:    err.Error(),
			}
		}
		probes = append(probes, &boundProbe{spec: spec, observer: obs, handle: handle})
	}
	return probes, nil
}

// sampleAll runs one tick of every probe
func (v *Validator) sampleAll(probes []*boundProbe, result *types.HypothesisResult) {
	for _, p := range probes {
		result.Total++
		obs, err := p.observer.Observe(p.handle)
		if err != nil {
			continue
		}
		if err := comparator.FirstValue(p.spec.Value).
			SecondValue(obs.Value).
			Criteria(p.spec.Comparator).
			CompareFloat(); err != nil {
			continue
		}
		result.Passed++
		result.ProbeStats[p.spec.Name]++
	}
}

// VerdictString renders the hypothesis verdict for the chaos result
func VerdictString(passed bool) string {
	if passed {
		return types.PassVerdict + emoji.Sprint(" :thumbsup:")
	}
	return types.FailVerdict + emoji.Sprint(" :thumbsdown:")
}
