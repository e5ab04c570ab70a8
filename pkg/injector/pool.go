package injector

import (
	"context"
	"sync"
	"time"

	"github.com/chaosworks/havok/pkg/cerrors"
	"github.com/chaosworks/havok/pkg/log"
	"github.com/chaosworks/havok/pkg/metrics"
	"github.com/chaosworks/havok/pkg/strategy"
	"github.com/chaosworks/havok/pkg/types"
)

const (
	// strategyCallTimeout bounds a single inject call, in-flight calls are
	// never killed by experiment cancellation, only by this timeout
	strategyCallTimeout = 60 * time.Second

	backoffBase = 100 * time.Millisecond
	backoffCap  = 5 * time.Second

	// drainPollInterval paces the re-drain loop after cancellation, a retry
	// racing the cancellation may still land in the queue after the workers
	// exited and must be reaped rather than waited on
	drainPollInterval = 50 * time.Millisecond
)

// Task is one injection of the experiment fault into one target
type Task struct {
	Target  types.Target
	Params  map[string]string
	TTL     time.Duration
	Attempt uint
}

// result is the terminal or retryable outcome of one task execution
type result struct {
	task   Task
	handle string
	err    error
}

// Pool is a bounded-concurrency executor for fault injections: a fixed worker
// count over a shared task queue, the worker count is the in-flight bound.
// Workers never retry on their own, failed tasks are re-queued by the caller
// with exponential backoff up to the attempt cap.
type Pool struct {
	strategy    strategy.FaultStrategy
	ec          *types.ExperimentContext
	queue       chan Task
	results     chan result
	workers     int
	maxAttempts uint

	wg     sync.WaitGroup
	cancel context.CancelFunc

	startOnce sync.Once
}

// NewPool returns an injector pool bound to one experiment context
func NewPool(strat strategy.FaultStrategy, ec *types.ExperimentContext, workers, queueCapacity int, maxAttempts uint) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueCapacity < workers {
		queueCapacity = workers
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Pool{
		strategy:    strat,
		ec:          ec,
		queue:       make(chan Task, queueCapacity),
		results:     make(chan result, queueCapacity),
		workers:     workers,
		maxAttempts: maxAttempts,
	}
}

// Start launches the workers, the given context is the admission token: once
// it is cancelled no new task is dequeued, in-flight strategy calls finish
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		p.cancel = cancel
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(runCtx)
		}
	})
}

// Stop cancels admission and waits for the workers to drain
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		// cancellation is checked at the admission point, before dequeuing
		select {
		case <-ctx.Done():
			return
		default:
		}
		select {
		case <-ctx.Done():
			return
		case task := <-p.queue:
			handle, err := p.inject(task)
			p.results <- result{task: task, handle: handle, err: err}
		}
	}
}

// inject performs one strategy call, bounded by the call timeout rather than
// the experiment context so that an abort never leaves fault state unverified
func (p *Pool) inject(task Task) (string, error) {
	callCtx, cancel := context.WithTimeout(context.Background(), strategyCallTimeout)
	defer cancel()
	return p.strategy.Inject(callCtx, task.Target, task.Params)
}

// InjectBatch enqueues one task per target and blocks until every task
// reached a terminal outcome. Failed tasks are re-queued with exponential
// backoff up to the attempt cap; a target failing all attempts is logged as an
// error record, it never aborts the batch. The returned count is the number of
// successful injections.
func (p *Pool) InjectBatch(ctx context.Context, batch []types.Target, params map[string]string, ttl time.Duration) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	pending := 0
	for _, target := range batch {
		select {
		case <-ctx.Done():
			return 0, cerrors.Error{
				ErrorCode: cerrors.ErrorTypeInjection,
				Phase:     "Inject",
				Reason:    "injection admission stopped",
			}
		case p.queue <- Task{Target: target, Params: params, TTL: ttl}:
			pending++
		}
	}

	injected := 0
	for pending > 0 {
		var res result
		select {
		case res = <-p.results:
		case <-ctx.Done():
			// no new work is admitted once aborted, queued tasks are dropped
			// while the in-flight calls are allowed to finish
			pending -= p.drainQueue()
			if pending == 0 {
				return injected, nil
			}
			select {
			case res = <-p.results:
			case <-time.After(drainPollInterval):
				continue
			}
		}
		switch {
		case res.err == nil:
			now := time.Now()
			p.ec.AddInjection(types.InjectionRecord{
				Handle:    res.handle,
				Strategy:  p.strategy.Name(),
				Target:    res.task.Target,
				CreatedAt: now,
				TTL:       res.task.TTL,
				Status:    types.InjectionActive,
			})
			metrics.InjectionsActive.Inc()
			metrics.InjectionsTotal.WithLabelValues("success").Inc()
			injected++
			pending--

		case res.task.Attempt+1 < p.maxAttempts && ctx.Err() == nil:
			retry := res.task
			retry.Attempt++
			wait := backoff(retry.Attempt)
			log.Warnf("[Inject]: Injection failed for target %v, re-queueing attempt %v after %v, %v",
				retry.Target.ID, retry.Attempt+1, wait, res.err)
			go func() {
				time.Sleep(wait)
				// once admission is stopped the workers are gone, the task
				// must come back as a result, never race the dead queue
				if ctx.Err() != nil {
					p.results <- result{task: retry, err: ctx.Err()}
					return
				}
				select {
				case p.queue <- retry:
				case <-ctx.Done():
					p.results <- result{task: retry, err: ctx.Err()}
				}
			}()

		default:
			log.Errorf("[Inject]: Injection failed for target %v after %v attempt(s), %v",
				res.task.Target.ID, res.task.Attempt+1, res.err)
			// the failed attempt stays in the injection log for the report,
			// failed records are inert, never swept or counted as radius
			p.ec.AddInjection(types.InjectionRecord{
				Strategy:  p.strategy.Name(),
				Target:    res.task.Target,
				CreatedAt: time.Now(),
				TTL:       res.task.TTL,
				Status:    types.InjectionFailed,
			})
			p.ec.AddError("Inject", res.task.Target.ID, res.err.Error())
			metrics.InjectionsTotal.WithLabelValues("failed").Inc()
			pending--
		}
	}
	return injected, nil
}

// drainQueue discards tasks that were queued but never picked up by a worker
func (p *Pool) drainQueue() int {
	drained := 0
	for {
		select {
		case task := <-p.queue:
			p.ec.AddError("Inject", task.Target.ID, "injection task dropped, experiment aborted")
			drained++
		default:
			return drained
		}
	}
}

func backoff(attempt uint) time.Duration {
	if attempt > 10 {
		return backoffCap
	}
	wait := backoffBase << attempt
	if wait > backoffCap {
		return backoffCap
	}
	return wait
}
