package observer

import (
	"context"
	"sync"
	"time"

	"github.com/chaosworks/havok/pkg/cerrors"
	"github.com/chaosworks/havok/pkg/log"
	"github.com/chaosworks/havok/pkg/metrics"
	"github.com/chaosworks/havok/pkg/types"
)

type registration struct {
	observer Observer
	interval time.Duration
	handle   string
}

// Pool runs each registered observer on its own polling cadence and appends
// the samples to the experiment context. A slow or failing observer never
// blocks the others, its failure is recorded and observation continues.
type Pool struct {
	mu      sync.Mutex
	entries []*registration
	latest  map[string]types.Observation

	ec       *types.ExperimentContext
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewPool returns an observer pool bound to one experiment context
func NewPool(ec *types.ExperimentContext) *Pool {
	return &Pool{
		ec:     ec,
		latest: map[string]types.Observation{},
	}
}

// Register adds an observer with its polling cadence, registrations after
// Start are ignored
func (p *Pool) Register(obs Observer, interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, &registration{observer: obs, interval: interval})
}

// Start opens every observer session and begins polling, observers that fail
// to start are degraded rather than failing the experiment
func (p *Pool) Start(ctx context.Context, targets []types.Target) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.mu.Lock()
	entries := append([]*registration(nil), p.entries...)
	p.mu.Unlock()

	for _, entry := range entries {
		handle, err := entry.observer.Start(targets)
		if err != nil {
			log.Errorf("[Observe]: Unable to start observer %v, %v", entry.observer.Name(), err)
			p.ec.AddError("Observe", entry.observer.Name(), cerrors.Error{
				ErrorCode: cerrors.ErrorTypeObserver,
				Reason:    err.Error(),
			}.Error())
			metrics.ObserverFailuresTotal.WithLabelValues(entry.observer.Name()).Inc()
			continue
		}
		entry.handle = handle

		p.wg.Add(1)
		go p.poll(runCtx, entry)
	}
}

// poll samples one observer on its own cadence until the pool stops
func (p *Pool) poll(ctx context.Context, entry *registration) {
	defer p.wg.Done()

	ticker := time.NewTicker(entry.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			obs, err := entry.observer.Observe(entry.handle)
			if err != nil {
				p.ec.AddError("Observe", entry.observer.Name(), err.Error())
				metrics.ObserverFailuresTotal.WithLabelValues(entry.observer.Name()).Inc()
				continue
			}
			p.ec.AddObservation(obs)
			p.mu.Lock()
			p.latest[obs.Observer] = obs
			p.mu.Unlock()
		}
	}
}

// Latest returns the most recent sample of the named observer, the safety
// monitor reads this snapshot instead of re-sampling
func (p *Pool) Latest(name string) (types.Observation, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	obs, ok := p.latest[name]
	return obs, ok
}

// Stop cancels polling, waits for the in-flight samples and closes every
// observer session
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()

		p.mu.Lock()
		entries := append([]*registration(nil), p.entries...)
		p.mu.Unlock()

		for _, entry := range entries {
			if entry.handle == "" {
				continue
			}
			if err := entry.observer.Stop(entry.handle); err != nil {
				log.Warnf("[Observe]: Unable to stop observer %v, %v", entry.observer.Name(), err)
			}
		}
	})
}
