// Command notification-worker runs spec.md §4.G's notification pool: it
// persists each notification, updates the capped Redis list and unread
// counter, and publishes the realtime event the gateway bridges to the
// recipient's socket.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cognitohub/platform/internal/notification"
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

	log := logging.MustNew("notification-worker", cfg.Debug)
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

	bus, err := messaging.NewClient(messaging.Config{URL: cfg.NATSURL, Name: "notification-worker"})
	if err != nil {
		log.Fatal("messaging connect", zap.Error(err))
	}
	defer bus.Close()

	notifyQ := queue.New("notifications", rdb, log)
	worker := notification.NewWorker(db, c, bus, log)

	log.Info("notification-worker running")

	quitCh := make(chan os.Signal, 1)
	signal.Notify(quitCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quitCh
		log.Info("notification-worker shutting down")
		stop()
	}()

	if err := notifyQ.Run(ctx, queue.WorkerOptions{Concurrency: 10}, worker.Handle); err != nil {
		log.Error("worker stopped", zap.Error(err))
	}
}
