// Command quiz-worker runs the Async Quiz Generation Engine's worker
// pool of spec.md §4.D: it pulls jobs the quiz-api enqueued, calls the
// circuit-protected AI client, and persists the generated quiz.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cognitohub/platform/internal/quiz"
	"github.com/cognitohub/platform/pkg/aiclient"
	"github.com/cognitohub/platform/pkg/cache"
	"github.com/cognitohub/platform/pkg/circuit"
	"github.com/cognitohub/platform/pkg/config"
	"github.com/cognitohub/platform/pkg/logging"
	"github.com/cognitohub/platform/pkg/queue"
	"github.com/cognitohub/platform/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logging.MustNew("quiz-worker", cfg.Debug)
	defer log.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatal("store connect", zap.Error(err))
	}
	defer db.Close(context.Background())

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal("redis url", zap.Error(err))
	}
	rdb := redis.NewClient(redisOpts)
	c := cache.New(rdb, log)

	breakers := circuit.NewGroup(circuit.Config{
		FailureRatio:    0.5,
		MinObservations: 10,
		ResetTimeout:    30 * time.Second,
	})
	ai := aiclient.New(aiclient.Config{
		Endpoint: cfg.AIEndpoint, APIKey: cfg.AIAPIKey, Model: cfg.AIModelLabel, Timeout: cfg.AITimeout,
	}, breakers, log)

	generateQ := queue.New("ai-generate", rdb, log)
	worker := quiz.NewWorker(c, db, ai, cfg.AIModelLabel, log)

	log.Info("quiz-worker running")

	quitCh := make(chan os.Signal, 1)
	signal.Notify(quitCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quitCh
		log.Info("quiz-worker shutting down")
		stop()
	}()

	if err := generateQ.Run(ctx, queue.WorkerOptions{Concurrency: 5, JobTimeout: cfg.AITimeout + 10*time.Second}, worker.Handle); err != nil {
		log.Error("worker stopped", zap.Error(err))
	}
}
