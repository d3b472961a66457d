// Command quiz-api serves the Async Quiz Generation Engine's HTTP
// surface of spec.md §6: job submission and polling sit here; the
// actual generation runs in the quiz-worker binary.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cognitohub/platform/internal/auth"
	"github.com/cognitohub/platform/internal/quiz"
	"github.com/cognitohub/platform/pkg/cache"
	"github.com/cognitohub/platform/pkg/config"
	"github.com/cognitohub/platform/pkg/httpx"
	"github.com/cognitohub/platform/pkg/logging"
	"github.com/cognitohub/platform/pkg/queue"
	"github.com/cognitohub/platform/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logging.MustNew("quiz-api", cfg.Debug)
	defer log.Sync()

	ctx := context.Background()

	db, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatal("store connect", zap.Error(err))
	}
	defer db.Close(ctx)
	if err := db.EnsureIndexes(ctx); err != nil {
		log.Fatal("ensure indexes", zap.Error(err))
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal("redis url", zap.Error(err))
	}
	rdb := redis.NewClient(redisOpts)
	c := cache.New(rdb, log)

	generateQ := queue.New("ai-generate", rdb, log)
	verifier := auth.NewVerifier(cfg.JWTSecret)
	orchestrator := quiz.New(cfg, c, db, generateQ, log)

	limiters := httpx.NewLimiters()

	r := gin.New()
	r.Use(httpx.CORS(), httpx.SecurityHeaders(), httpx.BodyLimit(), httpx.RequestLog(log))
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "healthy"}) })

	// The heavy tier (20/15m, counted up front) applies uniformly to
	// every /api route here, the quiz list/get/create routes included,
	// rather than the general tier.
	api := r.Group("/api", httpx.RateLimit(limiters.Heavy, false), httpx.Sanitize())
	quiz.RegisterRoutes(api, orchestrator, verifier)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()
	log.Info("quiz-api listening", zap.String("port", cfg.Port))

	quitCh := make(chan os.Signal, 1)
	signal.Notify(quitCh, syscall.SIGINT, syscall.SIGTERM)
	<-quitCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}
