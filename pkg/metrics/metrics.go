package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Experiment metrics
	ExperimentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "havok_experiments_total",
			Help: "Total number of experiments by final state",
		},
		[]string{"state"},
	)

	ExperimentsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "havok_experiments_running",
			Help: "Number of experiments currently admitted",
		},
	)

	// Injection metrics
	InjectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "havok_injections_active",
			Help: "Number of faults currently active across all experiments",
		},
	)

	InjectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "havok_injections_total",
			Help: "Total number of fault injections by result",
		},
		[]string{"result"},
	)

	// Safety metrics
	SafetyViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "havok_safety_violations_total",
			Help: "Total number of safety violations by check",
		},
		[]string{"check"},
	)

	// Observer metrics
	ObserverFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "havok_observer_failures_total",
			Help: "Total number of failed observer samples by observer",
		},
		[]string{"observer"},
	)

	// Cleanup metrics
	CleanupRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "havok_cleanup_retries_total",
			Help: "Total number of cleanup attempts that had to be retried",
		},
	)

	CleanupSweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "havok_cleanup_sweeps_total",
			Help: "Total number of cleanup daemon sweeps",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ExperimentsTotal,
		ExperimentsRunning,
		InjectionsActive,
		InjectionsTotal,
		SafetyViolationsTotal,
		ObserverFailuresTotal,
		CleanupRetriesTotal,
		CleanupSweepsTotal,
	)
}

// Handler returns the prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}
