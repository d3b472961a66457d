package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cognitohub/platform/pkg/queue"
)

var errAIReturnedNothing = errors.New("ai returned zero questions")

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return queue.New("ai-generate", rdb, zap.NewNop())
}

type genPayload struct {
	Topic string `json:"topic"`
}

func TestEnqueueRequiresJobID(t *testing.T) {
	t.Run("rejects an empty job id", func(t *testing.T) {
		q := newTestQueue(t)

		_, err := q.Enqueue(context.Background(), genPayload{Topic: "algebra"}, queue.EnqueueOptions{})

		assert.Error(t, err)
	})
}

func TestEnqueueAndStatus(t *testing.T) {
	t.Run("a queued job is reported as queued", func(t *testing.T) {
		q := newTestQueue(t)

		job, err := q.Enqueue(context.Background(), genPayload{Topic: "algebra"}, queue.EnqueueOptions{JobID: "job-1"})
		require.NoError(t, err)
		assert.Equal(t, queue.StateQueued, job.State)

		status := q.GetStatus(context.Background(), "job-1")
		assert.Equal(t, queue.StateQueued, status.State)
	})

	t.Run("an unknown job id reports not-found", func(t *testing.T) {
		q := newTestQueue(t)

		status := q.GetStatus(context.Background(), "missing")

		assert.Equal(t, queue.StateNotFound, status.State)
	})
}

func TestEnqueueDedupe(t *testing.T) {
	t.Run("a repeated job id while still queued returns the existing job", func(t *testing.T) {
		q := newTestQueue(t)

		first, err := q.Enqueue(context.Background(), genPayload{Topic: "algebra"}, queue.EnqueueOptions{JobID: "job-1"})
		require.NoError(t, err)

		second, err := q.Enqueue(context.Background(), genPayload{Topic: "geometry"}, queue.EnqueueOptions{JobID: "job-1"})
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.JSONEq(t, string(first.Payload), string(second.Payload), "the second enqueue must not overwrite the first job's payload")
	})
}

func TestRun(t *testing.T) {
	t.Run("a successful handler completes the job and records a return value", func(t *testing.T) {
		q := newTestQueue(t)
		_, err := q.Enqueue(context.Background(), genPayload{Topic: "algebra"}, queue.EnqueueOptions{JobID: "job-1"})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			q.Run(ctx, queue.WorkerOptions{Concurrency: 1, PollInterval: 5 * time.Millisecond}, func(ctx context.Context, job *queue.Job, progress func(int)) (interface{}, error) {
				progress(50)
				cancel()
				return map[string]string{"quizId": "q1"}, nil
			})
			close(done)
		}()
		<-done

		status := q.GetStatus(context.Background(), "job-1")
		assert.Equal(t, queue.StateCompleted, status.State)
		assert.JSONEq(t, `{"quizId":"q1"}`, string(status.ReturnValue))
	})

	t.Run("a permanent error fails the job without retrying", func(t *testing.T) {
		q := newTestQueue(t)
		_, err := q.Enqueue(context.Background(), genPayload{Topic: "algebra"}, queue.EnqueueOptions{JobID: "job-1", Attempts: 3})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			q.Run(ctx, queue.WorkerOptions{Concurrency: 1, PollInterval: 5 * time.Millisecond}, func(ctx context.Context, job *queue.Job, progress func(int)) (interface{}, error) {
				cancel()
				return nil, queue.Permanent(errAIReturnedNothing)
			})
			close(done)
		}()
		<-done

		status := q.GetStatus(context.Background(), "job-1")
		assert.Equal(t, queue.StateFailed, status.State)
		assert.Equal(t, 1, status.Attempts, "a permanent failure must not retry")
	})
}
