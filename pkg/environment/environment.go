package environment

import (
	"os"
	"strconv"
	"time"
)

// EngineDetails contains all the tunables of the orchestration engine
type EngineDetails struct {
	MaxConcurrentExperiments int
	InjectorWorkers          int
	QueueCapacity            int
	MaxInjectionAttempts     int
	ObserverPollInterval     time.Duration
	SafetyCheckInterval      time.Duration
	SweepInterval            time.Duration
	CleanupAlertAge          time.Duration
	DataDir                  string
	MetricsAddr              string
	OTELEndpoint             string
}

// GetENV fetches all the engine tunables from the environment
func GetENV(engineDetails *EngineDetails) {
	engineDetails.MaxConcurrentExperiments, _ = strconv.Atoi(Getenv("MAX_CONCURRENT_EXPERIMENTS", "10"))
	engineDetails.InjectorWorkers, _ = strconv.Atoi(Getenv("INJECTOR_WORKERS", "5"))
	engineDetails.QueueCapacity, _ = strconv.Atoi(Getenv("INJECTOR_QUEUE_CAPACITY", "64"))
	engineDetails.MaxInjectionAttempts, _ = strconv.Atoi(Getenv("MAX_INJECTION_ATTEMPTS", "3"))

	pollMs, _ := strconv.Atoi(Getenv("OBSERVER_POLL_INTERVAL_MS", "100"))
	engineDetails.ObserverPollInterval = time.Duration(pollMs) * time.Millisecond

	safetyMs, _ := strconv.Atoi(Getenv("SAFETY_CHECK_INTERVAL_MS", "100"))
	engineDetails.SafetyCheckInterval = time.Duration(safetyMs) * time.Millisecond

	sweepSec, _ := strconv.Atoi(Getenv("CLEANUP_SWEEP_INTERVAL", "10"))
	engineDetails.SweepInterval = time.Duration(sweepSec) * time.Second

	alertSec, _ := strconv.Atoi(Getenv("CLEANUP_ALERT_AGE", "300"))
	engineDetails.CleanupAlertAge = time.Duration(alertSec) * time.Second

	engineDetails.DataDir = Getenv("DATA_DIR", "/var/lib/havok")
	engineDetails.MetricsAddr = Getenv("METRICS_ADDR", "")
	engineDetails.OTELEndpoint = Getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
}

// Getenv fetches the env by the key, the default value is applied when the
// env is unset
func Getenv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	return value
}
