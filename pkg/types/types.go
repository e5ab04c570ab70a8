package types

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is one of the experiment lifecycle states
type State string

const (
	StatePending    State = "Pending"
	StateValidating State = "Validating"
	StateInjecting  State = "Injecting"
	StateObserving  State = "Observing"
	StateCleaning   State = "Cleaning"
	StateCompleted  State = "Completed"
	StateAborted    State = "Aborted"
)

// Terminal reports whether the state is final, terminal contexts stay in the
// store for audit purposes and are never transitioned again
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// Event is a trigger for a lifecycle transition
type Event string

const (
	EventSubmit              Event = "Submit"
	EventValidationPassed    Event = "ValidationPassed"
	EventValidationFailed    Event = "ValidationFailed"
	EventInjectionComplete   Event = "InjectionComplete"
	EventObservationComplete Event = "ObservationComplete"
	EventCleanupComplete     Event = "CleanupComplete"
	EventSafetyTriggered     Event = "SafetyTriggered"
	EventEmergencyStop       Event = "EmergencyStop"
)

const (
	// PreChaosCheck initial stage of experiment check for health before chaos injection
	PreChaosCheck string = "PreChaosCheck"
	// PostChaosCheck pre-final stage of experiment check for health after chaos injection
	PostChaosCheck string = "PostChaosCheck"
	// ChaosInject this stage refer to the main chaos injection
	ChaosInject string = "ChaosInject"
	// Summary final stage of experiment update the verdict
	Summary string = "Summary"
	// AwaitedVerdict marked the start of test
	AwaitedVerdict string = "Awaited"
	// PassVerdict marked the verdict as passed in the end of experiment
	PassVerdict string = "Pass"
	// FailVerdict marked the verdict as failed in the end of experiment
	FailVerdict string = "Fail"
	// AbortVerdict marked the verdict as abort when experiment aborted
	AbortVerdict string = "Abort"
)

// Target is an opaque addressable entity, equality is by ID
type Target struct {
	ID     string            `json:"id" yaml:"id"`
	Kind   string            `json:"kind" yaml:"kind"`
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// FaultSpec names the fault strategy and carries its parameters
type FaultSpec struct {
	Type   string            `json:"type" yaml:"type"`
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// SelectorSpec bounds the candidate target set for an experiment
type SelectorSpec struct {
	MatchKind         string            `json:"matchKind,omitempty" yaml:"matchKind,omitempty"`
	MatchLabels       map[string]string `json:"matchLabels,omitempty" yaml:"matchLabels,omitempty"`
	MaxBlastRadiusPct float64           `json:"maxBlastRadiusPct" yaml:"maxBlastRadiusPct"`
	MinTargets        int               `json:"minTargets,omitempty" yaml:"minTargets,omitempty"`
	Deterministic     bool              `json:"deterministic,omitempty" yaml:"deterministic,omitempty"`
	Seed              int64             `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// RolloutSpec drives the progressive batch rollout
type RolloutSpec struct {
	InitialPct              float64 `json:"initialPct" yaml:"initialPct"`
	ObservationDelaySeconds int     `json:"observationDelaySeconds" yaml:"observationDelaySeconds"`
	ContinueOnSuccess       bool    `json:"continueOnSuccess" yaml:"continueOnSuccess"`
}

// RollbackTrigger aborts the experiment when the metric exceeds the threshold
type RollbackTrigger struct {
	Metric    string  `json:"metric" yaml:"metric"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// RollbackSpec is the rollback policy of an experiment
type RollbackSpec struct {
	Triggers []RollbackTrigger `json:"triggers,omitempty" yaml:"triggers,omitempty"`
}

// ProbeSpec backs one steady-state probe with an observer and a pass criteria
type ProbeSpec struct {
	Name       string  `json:"name" yaml:"name"`
	Observer   string  `json:"observer" yaml:"observer"`
	Comparator string  `json:"comparator" yaml:"comparator"`
	Value      float64 `json:"value" yaml:"value"`
}

// HypothesisSpec is a steady-state assertion checked before/during/after chaos
type HypothesisSpec struct {
	Probes     []ProbeSpec `json:"probes" yaml:"probes"`
	DurationMs int         `json:"durationMs" yaml:"durationMs"`
}

// Experiment is the immutable declarative definition, it is never mutated
// after submission
type Experiment struct {
	Name                       string          `json:"name" yaml:"name"`
	Selector                   SelectorSpec    `json:"selector" yaml:"selector"`
	Fault                      FaultSpec       `json:"fault" yaml:"fault"`
	InjectionDurationSeconds   int             `json:"injectionDurationSeconds" yaml:"injectionDurationSeconds"`
	ObservationDurationSeconds int             `json:"observationDurationSeconds" yaml:"observationDurationSeconds"`
	RampSeconds                int             `json:"rampSeconds,omitempty" yaml:"rampSeconds,omitempty"`
	Hypothesis                 *HypothesisSpec `json:"hypothesis,omitempty" yaml:"hypothesis,omitempty"`
	Rollback                   RollbackSpec    `json:"rollback,omitempty" yaml:"rollback,omitempty"`
	Rollout                    RolloutSpec     `json:"rollout" yaml:"rollout"`
}

// InjectionStatus is the status of a single (target, fault) application
type InjectionStatus string

const (
	// InjectionActive is the only re-enterable status
	InjectionActive  InjectionStatus = "active"
	InjectionRemoved InjectionStatus = "removed"
	InjectionFailed  InjectionStatus = "failed"
)

// InjectionRecord is one (target, fault) application
type InjectionRecord struct {
	Handle    string          `json:"handle"`
	Strategy  string          `json:"strategy"`
	Target    Target          `json:"target"`
	CreatedAt time.Time       `json:"createdAt"`
	TTL       time.Duration   `json:"ttl"`
	RemovedAt *time.Time      `json:"removedAt,omitempty"`
	Status    InjectionStatus `json:"status"`
}

// Expired reports whether the record has outlived its time-to-live
func (r InjectionRecord) Expired(now time.Time) bool {
	return r.Status == InjectionActive && !now.Before(r.CreatedAt.Add(r.TTL))
}

// Observation is one sampled signal
type Observation struct {
	Observer  string    `json:"observer"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Message   string    `json:"message,omitempty"`
	Passed    *bool     `json:"passed,omitempty"`
}

// ErrorRecord captures a non-fatal failure local to one target or observer
type ErrorRecord struct {
	Phase     string    `json:"phase"`
	Target    string    `json:"target,omitempty"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// EventRecord is one lifecycle event mirrored to the logger
type EventRecord struct {
	Reason    string    `json:"reason"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// HypothesisResult is the verdict of one steady-state validation run
type HypothesisResult struct {
	Total       int            `json:"total"`
	Passed      int            `json:"passed"`
	SuccessRate float64        `json:"successRate"`
	Verdict     bool           `json:"verdict"`
	ProbeStats  map[string]int `json:"probeStats,omitempty"`
}

// SafetyStatus is derived, never persisted as source of truth
type SafetyStatus struct {
	Safe   bool
	Reason string
}

// Report is the user-facing summary of a finished (or running) experiment
type Report struct {
	ExperimentID string             `json:"experimentId"`
	Name         string             `json:"name"`
	FinalState   State              `json:"finalState"`
	Before       *HypothesisResult  `json:"before,omitempty"`
	During       *HypothesisResult  `json:"during,omitempty"`
	After        *HypothesisResult  `json:"after,omitempty"`
	Injections   []InjectionRecord  `json:"injections"`
	Errors       []ErrorRecord      `json:"errors,omitempty"`
	Conclusion   string             `json:"conclusion"`
	ProbeVerdict map[string]string  `json:"probeVerdict,omitempty"`
}

// ExperimentContext is the mutable run record, owned by the engine, the
// embedded mutex guards the record slices against the observer pool and the
// cleanup daemon which append/flip records concurrently
type ExperimentContext struct {
	mu sync.Mutex

	ID              string            `json:"id"`
	Definition      Experiment        `json:"definition"`
	State           State             `json:"state"`
	StartedAt       time.Time         `json:"startedAt"`
	EndedAt         *time.Time        `json:"endedAt,omitempty"`
	Targets         []Target          `json:"targets,omitempty"`
	TotalCandidates int               `json:"totalCandidates"`
	Injections      []InjectionRecord `json:"injections,omitempty"`
	Observations    []Observation     `json:"observations,omitempty"`
	Errors          []ErrorRecord     `json:"errors,omitempty"`
	Events          []EventRecord     `json:"events,omitempty"`
	Baseline        *HypothesisResult `json:"baseline,omitempty"`
	During          *HypothesisResult `json:"during,omitempty"`
	After           *HypothesisResult `json:"after,omitempty"`
	FailStep        string            `json:"failStep,omitempty"`
}

// NewExperimentContext creates the run record for a submitted definition
func NewExperimentContext(def Experiment) *ExperimentContext {
	return &ExperimentContext{
		ID:         uuid.New().String(),
		Definition: def,
		State:      StatePending,
		StartedAt:  time.Now(),
		FailStep:   "N/A",
	}
}

// SetState flips the lifecycle state and returns the previous one, terminal
// states freeze EndedAt. Callers decide the legality of the transition.
func (ec *ExperimentContext) SetState(s State) State {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	prev := ec.State
	ec.State = s
	if s.Terminal() {
		now := time.Now()
		ec.EndedAt = &now
	} else {
		ec.EndedAt = nil
	}
	return prev
}

// SetFailStep records the step an aborting experiment failed at
func (ec *ExperimentContext) SetFailStep(step string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.FailStep = step
}

// SetBaseline stores the pre-chaos hypothesis result
func (ec *ExperimentContext) SetBaseline(res *HypothesisResult) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.Baseline = res
}

// SetDuring stores the during-chaos hypothesis result
func (ec *ExperimentContext) SetDuring(res *HypothesisResult) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.During = res
}

// SetAfter stores the post-chaos hypothesis result
func (ec *ExperimentContext) SetAfter(res *HypothesisResult) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.After = res
}

// AddInjection appends a new injection record
func (ec *ExperimentContext) AddInjection(rec InjectionRecord) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.Injections = append(ec.Injections, rec)
}

// MarkInjectionRemoved flips the record with the given handle to removed,
// unknown or already removed handles are a no-op so that remove stays idempotent
func (ec *ExperimentContext) MarkInjectionRemoved(handle string, at time.Time) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	for i := range ec.Injections {
		if ec.Injections[i].Handle == handle && ec.Injections[i].Status == InjectionActive {
			ec.Injections[i].Status = InjectionRemoved
			ec.Injections[i].RemovedAt = &at
		}
	}
}

// ActiveInjections returns a copy of all records still in the active status
func (ec *ExperimentContext) ActiveInjections() []InjectionRecord {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	var active []InjectionRecord
	for _, rec := range ec.Injections {
		if rec.Status == InjectionActive {
			active = append(active, rec)
		}
	}
	return active
}

// ActiveCount returns the number of records in the active status
func (ec *ExperimentContext) ActiveCount() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	count := 0
	for _, rec := range ec.Injections {
		if rec.Status == InjectionActive {
			count++
		}
	}
	return count
}

// AllInjectionsTerminal reports whether every record reached removed or failed
func (ec *ExperimentContext) AllInjectionsTerminal() bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	for _, rec := range ec.Injections {
		if rec.Status == InjectionActive {
			return false
		}
	}
	return true
}

// AddObservation appends one sampled signal
func (ec *ExperimentContext) AddObservation(obs Observation) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.Observations = append(ec.Observations, obs)
}

// AddError appends a non-fatal error record
func (ec *ExperimentContext) AddError(phase, target, reason string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.Errors = append(ec.Errors, ErrorRecord{
		Phase:     phase,
		Target:    target,
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

// AddEvent appends one lifecycle event
func (ec *ExperimentContext) AddEvent(reason, message, eventType string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.Events = append(ec.Events, EventRecord{
		Reason:    reason,
		Message:   message,
		Type:      eventType,
		Timestamp: time.Now(),
	})
}

// Snapshot returns a deep enough copy for persistence, the copy shares no
// slice backing arrays with the live context
func (ec *ExperimentContext) Snapshot() ExperimentContext {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	snap := ExperimentContext{
		ID:              ec.ID,
		Definition:      ec.Definition,
		State:           ec.State,
		StartedAt:       ec.StartedAt,
		EndedAt:         ec.EndedAt,
		TotalCandidates: ec.TotalCandidates,
		Baseline:        ec.Baseline,
		During:          ec.During,
		After:           ec.After,
		FailStep:        ec.FailStep,
	}
	snap.Targets = append([]Target(nil), ec.Targets...)
	snap.Injections = append([]InjectionRecord(nil), ec.Injections...)
	snap.Observations = append([]Observation(nil), ec.Observations...)
	snap.Errors = append([]ErrorRecord(nil), ec.Errors...)
	snap.Events = append([]EventRecord(nil), ec.Events...)
	return snap
}
