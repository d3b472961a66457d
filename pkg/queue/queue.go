// Package queue implements the Bull-style durable job queue of spec.md
// §4.C directly on Redis: a waiting sorted set scored by priority then
// creation time, a delayed sorted set scored by due time, a per-job JSON
// string key for state/progress, and an active set recording in-flight
// job ids. Nothing sweeps the active set: a job whose worker died
// mid-processing stays in the active state and is not requeued.
//
// Job-id dedupe reads the existing job record and skips the write when
// that job is still queued, active or delayed; the read and the write
// are separate commands, not one atomic SETNX. Concurrent enqueue calls
// with the same id in one process are collapsed with singleflight.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// State is a Job's lifecycle state, per spec.md §3.
type State string

const (
	StateQueued    State = "queued"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateDelayed   State = "delayed"
	StateNotFound  State = "not-found"
)

// PermanentError marks a handler failure as non-retryable: the invariant
// violations spec.md §4.C calls out (e.g. "AI returned zero questions")
// must fail the job immediately instead of retrying.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the queue treats it as non-retryable.
func Permanent(err error) error { return &PermanentError{Err: err} }

// Job is the persisted unit of work, matching spec.md §3's Job entity.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	State       State           `json:"state"`
	Progress    int             `json:"progress"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	Priority    int             `json:"priority"`
	CreatedAt   time.Time       `json:"createdAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty"`
	ReturnValue json.RawMessage `json:"returnValue,omitempty"`
	FailureReason string        `json:"failureReason,omitempty"`
}

// EnqueueOptions customizes a single enqueue call.
type EnqueueOptions struct {
	JobID    string // stable id for dedupe; generated if empty
	Priority int    // higher runs first
	Attempts int    // max attempts, default 3
	BackoffBase time.Duration // not read: retry delay is computeBackoff's fixed 2s, doubled per attempt
	BackoffMax  time.Duration // not read: computeBackoff caps the delay at a fixed 5s
}

// Queue is a single named logical queue backed by Redis.
type Queue struct {
	name string
	rdb  *redis.Client
	log  *zap.Logger
	sf   singleflight.Group

	retainCompleted int64
	retainFailed    int64
}

// New creates a Queue. retainCompleted/retainFailed are the retention
// counts of spec.md §4.C (100 completed, 500 failed by default).
func New(name string, rdb *redis.Client, log *zap.Logger) *Queue {
	return &Queue{name: name, rdb: rdb, log: log, retainCompleted: 100, retainFailed: 500}
}

func (q *Queue) waitingKey() string { return fmt.Sprintf("queue:%s:waiting", q.name) }
func (q *Queue) delayedKey() string { return fmt.Sprintf("queue:%s:delayed", q.name) }
func (q *Queue) activeKey() string  { return fmt.Sprintf("queue:%s:active", q.name) }
func (q *Queue) completedKey() string { return fmt.Sprintf("queue:%s:completed", q.name) }
func (q *Queue) failedKey() string  { return fmt.Sprintf("queue:%s:failed", q.name) }
func (q *Queue) jobKey(id string) string { return fmt.Sprintf("queue:%s:job:%s", q.name, id) }

// Enqueue submits payload under the given options. If JobID collides with
// a non-terminal existing job, the existing job's id is returned instead
// of creating a duplicate (spec.md §4.C, §8 invariant 3).
func (q *Queue) Enqueue(ctx context.Context, payload interface{}, opts EnqueueOptions) (*Job, error) {
	if opts.JobID == "" {
		return nil, errors.New("queue: JobID is required for dedupe")
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}

	v, err, _ := q.sf.Do(opts.JobID, func() (interface{}, error) {
		return q.enqueueLocked(ctx, payload, opts)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Job), nil
}

func (q *Queue) enqueueLocked(ctx context.Context, payload interface{}, opts EnqueueOptions) (*Job, error) {
	if existing, ok := q.getJob(ctx, opts.JobID); ok {
		if existing.State == StateQueued || existing.State == StateActive || existing.State == StateDelayed {
			return existing, nil
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal payload: %w", err)
	}

	job := &Job{
		ID:          opts.JobID,
		Queue:       q.name,
		Payload:     raw,
		State:       StateQueued,
		Progress:    0,
		MaxAttempts: opts.Attempts,
		Priority:    opts.Priority,
		CreatedAt:   time.Now(),
	}

	if err := q.saveJob(ctx, job); err != nil {
		return nil, err
	}

	// score combines priority (higher first) with FIFO-within-priority
	// ordering via the creation time, matching a Bull-style priority list.
	score := float64(-opts.Priority)*1e13 + float64(job.CreatedAt.UnixNano())/1e6
	if err := q.rdb.ZAdd(ctx, q.waitingKey(), redis.Z{Score: score, Member: job.ID}).Err(); err != nil {
		return nil, fmt.Errorf("queue: push waiting: %w", err)
	}
	return job, nil
}

func (q *Queue) saveJob(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.Set(ctx, q.jobKey(job.ID), raw, 7*24*time.Hour).Err()
}

func (q *Queue) getJob(ctx context.Context, id string) (*Job, bool) {
	raw, err := q.rdb.Get(ctx, q.jobKey(id)).Bytes()
	if err != nil {
		return nil, false
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, false
	}
	return &job, true
}

// GetStatus returns the current Job view, or a not-found stub per
// spec.md §3's State enum including "not-found".
func (q *Queue) GetStatus(ctx context.Context, jobID string) *Job {
	job, ok := q.getJob(ctx, jobID)
	if !ok {
		return &Job{ID: jobID, State: StateNotFound}
	}
	return job
}

// promoteDelayed moves any delayed jobs whose due time has passed back
// onto the waiting list. Called by workers on their poll loop.
func (q *Queue) promoteDelayed(ctx context.Context) {
	now := float64(time.Now().UnixMilli())
	ids, err := q.rdb.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{Min: "0", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil || len(ids) == 0 {
		return
	}
	pipe := q.rdb.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, q.delayedKey(), id)
		pipe.ZAdd(ctx, q.waitingKey(), redis.Z{Score: float64(time.Now().UnixMilli()), Member: id})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.Warn("promote delayed jobs failed", zap.String("queue", q.name), zap.Error(err))
	}
}

// dequeue pops the next-highest-priority waiting job id, if any.
func (q *Queue) dequeue(ctx context.Context) (string, bool) {
	res, err := q.rdb.ZPopMin(ctx, q.waitingKey()).Result()
	if err != nil || len(res) == 0 {
		return "", false
	}
	id, _ := res[0].Member.(string)
	if id == "" {
		return "", false
	}
	if err := q.rdb.SAdd(ctx, q.activeKey(), id).Err(); err != nil {
		q.log.Warn("mark active failed", zap.String("queue", q.name), zap.Error(err))
	}
	return id, true
}

// SetProgress updates a job's reported progress (0..100).
func (q *Queue) SetProgress(ctx context.Context, jobID string, progress int) {
	job, ok := q.getJob(ctx, jobID)
	if !ok {
		return
	}
	job.Progress = progress
	if err := q.saveJob(ctx, job); err != nil {
		q.log.Warn("set progress failed", zap.String("job", jobID), zap.Error(err))
	}
}

// Clean prunes completed/failed jobs older than graceMs in the given
// state, per spec.md §4.C's on-demand cleaner.
func (q *Queue) Clean(ctx context.Context, grace time.Duration, state State) {
	var listKey string
	switch state {
	case StateCompleted:
		listKey = q.completedKey()
	case StateFailed:
		listKey = q.failedKey()
	default:
		return
	}
	cutoff := time.Now().Add(-grace)
	ids, err := q.rdb.LRange(ctx, listKey, 0, -1).Result()
	if err != nil {
		return
	}
	for _, id := range ids {
		job, ok := q.getJob(ctx, id)
		if !ok {
			continue
		}
		if job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			q.rdb.LRem(ctx, listKey, 1, id)
			q.rdb.Del(ctx, q.jobKey(id))
		}
	}
}
