package cascade

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/taskgraph/scheduler/internal/logger"
)

// Stats is a snapshot of the worker pool's in-memory counters, served
// by the operator-facing GET /internal/cascade/stats endpoint.
type Stats struct {
	Processed int64 `json:"processed"`
	Discarded int64 `json:"discarded"`
	Failed    int64 `json:"failed"`
}

// Dispatcher runs the cascade worker pool described in the design: it
// subscribes to a durable Queue and, for every delivered job, re-reads
// the root task and runs Recalculator.RecalcFrom under the token
// guard. Concurrent jobs are bounded by maxConcurrentJobs; each job is
// bounded by jobTimeout. A stale or missing-root job is a silent
// no-op, not an error — only the Discarded counter moves.
type Dispatcher struct {
	queue   Queue
	recalc  *Recalculator
	timeout time.Duration
	sem     chan struct{}
	wg      sync.WaitGroup

	processed int64
	discarded int64
	failed    int64
}

// NewDispatcher builds a Dispatcher. maxConcurrentJobs and jobTimeout
// default to 10 and 300s respectively when given as zero or negative,
// matching the design's stated defaults.
func NewDispatcher(q Queue, r *Recalculator, maxConcurrentJobs int, jobTimeout time.Duration) *Dispatcher {
	if maxConcurrentJobs <= 0 {
		maxConcurrentJobs = 10
	}
	if jobTimeout <= 0 {
		jobTimeout = 300 * time.Second
	}
	return &Dispatcher{
		queue:   q,
		recalc:  r,
		timeout: jobTimeout,
		sem:     make(chan struct{}, maxConcurrentJobs),
	}
}

// Start subscribes the dispatcher to its queue. It returns once the
// subscription is established; jobs are then dispatched until ctx is
// canceled or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) error {
	return d.queue.Subscribe(ctx, d.handle)
}

func (d *Dispatcher) handle(ctx context.Context, job Job) error {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	d.wg.Add(1)
	defer func() {
		<-d.sem
		d.wg.Done()
	}()

	taskID, err := uuid.Parse(job.TaskID)
	if err != nil {
		atomic.AddInt64(&d.failed, 1)
		return fmt.Errorf("cascade job carried an invalid task id %q: %w", job.TaskID, err)
	}

	jobCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	outcome, err := d.recalc.RecalcFrom(jobCtx, taskID, job.VersionToken)
	if err != nil {
		atomic.AddInt64(&d.failed, 1)
		logger.WithJob(job.TaskID, job.VersionToken).Error("recalc job failed, will not retry until a new mutation supersedes it",
			zap.Error(err))
		return err
	}

	switch outcome {
	case OutcomeStale, OutcomeMissing:
		atomic.AddInt64(&d.discarded, 1)
	default:
		atomic.AddInt64(&d.processed, 1)
	}
	return nil
}

// StatsSnapshot returns a point-in-time copy of the worker pool
// counters.
func (d *Dispatcher) StatsSnapshot() Stats {
	return Stats{
		Processed: atomic.LoadInt64(&d.processed),
		Discarded: atomic.LoadInt64(&d.discarded),
		Failed:    atomic.LoadInt64(&d.failed),
	}
}

// Stop waits up to waitTimeout for in-flight jobs to drain, then
// closes the underlying queue. Errors from a timed-out drain and from
// closing the queue are both reported, aggregated with multierr.
func (d *Dispatcher) Stop(waitTimeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	var errs error
	select {
	case <-done:
	case <-time.After(waitTimeout):
		errs = multierr.Append(errs, fmt.Errorf("cascade dispatcher: jobs still in flight after %s", waitTimeout))
	}

	if err := d.queue.Close(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to close cascade queue: %w", err))
	}
	return errs
}
