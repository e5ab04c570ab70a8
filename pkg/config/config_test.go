package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaosworks/havok/pkg/cerrors"
)

const sampleRunFile = `
experiment:
  name: pause-staging-workers
  fault:
    type: process-signal
  selector:
    matchKind: process
    matchLabels:
      env: staging
    maxBlastRadiusPct: 0.2
  injectionDurationSeconds: 30
  observationDurationSeconds: 60
  rollout:
    initialPct: 0.5
    observationDelaySeconds: 5
    continueOnSuccess: true
  rollback:
    triggers:
      - metric: error-rate
        threshold: 0.05
  hypothesis:
    durationMs: 2000
    probes:
      - name: latency-ok
        observer: latency
        comparator: "<="
        value: 200
targets:
  - id: "1204"
    kind: process
    labels:
      env: staging
  - id: "1205"
    kind: process
    labels:
      env: staging
observers:
  - name: latency
    kind: command
    command: echo 42
    comparator: "<="
    value: 200
  - name: error-rate
    kind: http
    url: http://localhost:9000/healthz
    comparator: "<="
    value: 0.05
    timeoutMs: 500
`

func TestParse_FullRunFile(t *testing.T) {
	rf, err := Parse([]byte(sampleRunFile))
	require.NoError(t, err)

	assert.Equal(t, "pause-staging-workers", rf.Experiment.Name)
	assert.Equal(t, "process-signal", rf.Experiment.Fault.Type)
	assert.Equal(t, 0.2, rf.Experiment.Selector.MaxBlastRadiusPct)
	assert.Equal(t, "staging", rf.Experiment.Selector.MatchLabels["env"])
	assert.Equal(t, 30, rf.Experiment.InjectionDurationSeconds)
	require.NotNil(t, rf.Experiment.Hypothesis)
	assert.Equal(t, 2000, rf.Experiment.Hypothesis.DurationMs)
	require.Len(t, rf.Experiment.Rollback.Triggers, 1)
	assert.Equal(t, 0.05, rf.Experiment.Rollback.Triggers[0].Threshold)
	assert.Len(t, rf.Targets, 2)
	assert.Len(t, rf.Observers, 2)
}

func TestParse_MissingExperiment(t *testing.T) {
	_, err := Parse([]byte("targets:\n  - id: \"1\"\n    kind: process\n"))
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeValidation, cerrors.GetErrorType(err))
}

func TestParse_MissingTargets(t *testing.T) {
	_, err := Parse([]byte("experiment:\n  name: lonely\n"))
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeValidation, cerrors.GetErrorType(err))
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte(sampleRunFile + "\nbogusKey: true\n"))
	require.Error(t, err)
}

func TestBuildObservers(t *testing.T) {
	rf, err := Parse([]byte(sampleRunFile))
	require.NoError(t, err)

	observers, err := rf.BuildObservers()
	require.NoError(t, err)
	require.Len(t, observers, 2)
	assert.Equal(t, "latency", observers["latency"].Name())
	assert.Equal(t, "error-rate", observers["error-rate"].Name())
}

func TestBuildObservers_UnknownKind(t *testing.T) {
	rf := &RunFile{Observers: []ObserverSpec{{Name: "x", Kind: "carrier-pigeon"}}}
	_, err := rf.BuildObservers()
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeValidation, cerrors.GetErrorType(err))
}

func TestLoad_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRunFile), 0600))

	rf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pause-staging-workers", rf.Experiment.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
