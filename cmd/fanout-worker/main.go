// Command fanout-worker runs spec.md §4.F's fanout pool: it delivers
// each published post to every follower's timeline, bumps the trending
// index, and emits mention notifications.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cognitohub/platform/internal/social"
	"github.com/cognitohub/platform/pkg/cache"
	"github.com/cognitohub/platform/pkg/config"
	"github.com/cognitohub/platform/pkg/logging"
	"github.com/cognitohub/platform/pkg/messaging"
	"github.com/cognitohub/platform/pkg/queue"
	"github.com/cognitohub/platform/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logging.MustNew("fanout-worker", cfg.Debug)
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
	feed := social.NewFeedStore(c, int64(cfg.MaxFeedItems))

	bus, err := messaging.NewClient(messaging.Config{URL: cfg.NATSURL, Name: "fanout-worker"})
	if err != nil {
		log.Fatal("messaging connect", zap.Error(err))
	}
	defer bus.Close()

	fanoutQ := queue.New("fanout", rdb, log)
	notifyQ := queue.New("notifications", rdb, log)
	worker := social.NewFanoutWorker(feed, db, bus, notifyQ, log)

	log.Info("fanout-worker running")

	quitCh := make(chan os.Signal, 1)
	signal.Notify(quitCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quitCh
		log.Info("fanout-worker shutting down")
		stop()
	}()

	if err := fanoutQ.Run(ctx, queue.WorkerOptions{Concurrency: 5}, worker.Handle); err != nil {
		log.Error("worker stopped", zap.Error(err))
	}
}
