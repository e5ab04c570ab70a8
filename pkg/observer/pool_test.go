package observer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaosworks/havok/pkg/types"
)

type countingObserver struct {
	mu        sync.Mutex
	name      string
	value     float64
	startErr  error
	samples   int
	stopCalls int
}

func (o *countingObserver) Name() string { return o.name }
func (o *countingObserver) Start(targets []types.Target) (string, error) {
	if o.startErr != nil {
		return "", o.startErr
	}
	return "session-" + o.name, nil
}
func (o *countingObserver) Observe(handle string) (types.Observation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.samples++
	return types.Observation{Observer: o.name, Value: o.value, Timestamp: time.Now()}, nil
}
func (o *countingObserver) Stop(handle string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopCalls++
	return nil
}

func (o *countingObserver) sampleCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.samples
}

func TestPool_PollsAndRecordsLatest(t *testing.T) {
	ec := types.NewExperimentContext(types.Experiment{Name: "pool-test"})
	obs := &countingObserver{name: "latency", value: 42}

	pool := NewPool(ec)
	pool.Register(obs, time.Millisecond)
	pool.Start(context.Background(), nil)

	deadline := time.Now().Add(time.Second)
	for obs.sampleCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("observer was never polled")
		}
		time.Sleep(time.Millisecond)
	}
	pool.Stop()

	latest, ok := pool.Latest("latency")
	require.True(t, ok)
	assert.Equal(t, 42.0, latest.Value)

	snap := ec.Snapshot()
	assert.NotEmpty(t, snap.Observations)
	assert.Equal(t, 1, obs.stopCalls)
}

func TestPool_FailedStartDegradesNotFails(t *testing.T) {
	ec := types.NewExperimentContext(types.Experiment{Name: "pool-test"})
	broken := &countingObserver{name: "broken", startErr: fmt.Errorf("endpoint unreachable")}
	healthy := &countingObserver{name: "healthy", value: 1}

	pool := NewPool(ec)
	pool.Register(broken, time.Millisecond)
	pool.Register(healthy, time.Millisecond)
	pool.Start(context.Background(), nil)

	deadline := time.Now().Add(time.Second)
	for healthy.sampleCount() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("healthy observer was never polled")
		}
		time.Sleep(time.Millisecond)
	}
	pool.Stop()

	// the failure landed as an error record, the healthy observer kept going
	snap := ec.Snapshot()
	require.NotEmpty(t, snap.Errors)
	assert.Equal(t, "broken", snap.Errors[0].Target)
	assert.Zero(t, broken.sampleCount())

	_, ok := pool.Latest("broken")
	assert.False(t, ok)
}

func TestPool_StopIsIdempotent(t *testing.T) {
	ec := types.NewExperimentContext(types.Experiment{Name: "pool-test"})
	obs := &countingObserver{name: "latency", value: 1}

	pool := NewPool(ec)
	pool.Register(obs, time.Millisecond)
	pool.Start(context.Background(), nil)

	pool.Stop()
	pool.Stop()
	assert.Equal(t, 1, obs.stopCalls)
}

func TestPool_LatestUnknownObserver(t *testing.T) {
	pool := NewPool(types.NewExperimentContext(types.Experiment{Name: "pool-test"}))
	_, ok := pool.Latest("nothing")
	assert.False(t, ok)
}
