package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Handler processes one job's payload. It may report progress via
// progress(n) as it goes; its return value becomes the job's
// ReturnValue on success.
type Handler func(ctx context.Context, job *Job, progress func(int)) (interface{}, error)

// WorkerOptions configures a queue's worker pool.
type WorkerOptions struct {
	Concurrency int           // default 3
	PollInterval time.Duration // default 250ms
	JobTimeout  time.Duration // hard per-job deadline, default 30s
}

func (o *WorkerOptions) setDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 3
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 250 * time.Millisecond
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = 30 * time.Second
	}
}

// Run starts Concurrency worker goroutines pulling from the queue until
// ctx is cancelled, then waits for in-flight jobs to drain.
func (q *Queue) Run(ctx context.Context, opts WorkerOptions, handler Handler) error {
	opts.setDefaults()

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.Concurrency; i++ {
		g.Go(func() error {
			q.workerLoop(ctx, opts, handler)
			return nil
		})
	}
	return g.Wait()
}

func (q *Queue) workerLoop(ctx context.Context, opts WorkerOptions, handler Handler) {
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.promoteDelayed(ctx)
			id, ok := q.dequeue(ctx)
			if !ok {
				continue
			}
			q.process(ctx, id, opts, handler)
		}
	}
}

func (q *Queue) process(parent context.Context, jobID string, opts WorkerOptions, handler Handler) {
	// Job bookkeeping runs on a context that ignores the pool's
	// cancellation, so a job in flight at shutdown still has its outcome
	// recorded; only the handler's own context is cancelled with the pool.
	runCtx := parent
	parent = context.WithoutCancel(parent)

	job, ok := q.getJob(parent, jobID)
	if !ok {
		q.rdb.SRem(parent, q.activeKey(), jobID)
		return
	}

	now := time.Now()
	job.State = StateActive
	job.Attempts++
	job.StartedAt = &now
	if err := q.saveJob(parent, job); err != nil {
		q.log.Warn("save active job failed", zap.String("job", jobID), zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(runCtx, opts.JobTimeout)
	defer cancel()

	progress := func(n int) { q.SetProgress(parent, jobID, n) }

	result, err := q.safeHandle(ctx, job, progress, handler)

	q.rdb.SRem(parent, q.activeKey(), jobID)

	var permErr *PermanentError
	finished := time.Now()

	switch {
	case err == nil:
		raw, merr := marshalResult(result)
		job.ReturnValue = raw
		job.State = StateCompleted
		job.Progress = 100
		job.FinishedAt = &finished
		if merr != nil {
			q.log.Warn("marshal job result failed", zap.String("job", jobID), zap.Error(merr))
		}
		q.finish(parent, job, q.completedKey(), q.retainCompleted)

	case errors.As(err, &permErr):
		job.State = StateFailed
		job.FailureReason = permErr.Error()
		job.FinishedAt = &finished
		q.finish(parent, job, q.failedKey(), q.retainFailed)

	case job.Attempts >= job.MaxAttempts:
		job.State = StateFailed
		job.FailureReason = err.Error()
		job.FinishedAt = &finished
		q.finish(parent, job, q.failedKey(), q.retainFailed)

	default:
		job.State = StateDelayed
		job.FailureReason = err.Error()
		if err := q.saveJob(parent, job); err != nil {
			q.log.Warn("save delayed job failed", zap.String("job", jobID), zap.Error(err))
		}
		backoff := computeBackoff(job.Attempts)
		due := float64(time.Now().Add(backoff).UnixMilli())
		q.rdb.ZAdd(parent, q.delayedKey(), redisZ(due, jobID))
	}
}

// safeHandle recovers from a handler panic and reports it as a retryable
// error, so one bad job can't take down a worker goroutine.
func (q *Queue) safeHandle(ctx context.Context, job *Job, progress func(int), handler Handler) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, job, progress)
}

func (q *Queue) finish(ctx context.Context, job *Job, listKey string, retain int64) {
	if err := q.saveJob(ctx, job); err != nil {
		q.log.Warn("save finished job failed", zap.String("job", job.ID), zap.Error(err))
		return
	}
	q.rdb.LPush(ctx, listKey, job.ID)
	q.rdb.LTrim(ctx, listKey, 0, retain-1)
}

func computeBackoff(attempt int) time.Duration {
	base := 2 * time.Second
	max := 5 * time.Second
	d := base * time.Duration(1<<uint(attempt-1))
	if d > max {
		d = max
	}
	return d
}

func marshalResult(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return marshalJSON(v)
}
