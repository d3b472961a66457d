// Command social-api serves the Social Fanout & Notification Plane's
// post/comment/like/follow routes and the realtime websocket gateway of
// spec.md §6 and §4.H.
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
	"github.com/cognitohub/platform/internal/gateway"
	"github.com/cognitohub/platform/internal/notification"
	"github.com/cognitohub/platform/internal/social"
	"github.com/cognitohub/platform/pkg/cache"
	"github.com/cognitohub/platform/pkg/config"
	"github.com/cognitohub/platform/pkg/httpx"
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

	log := logging.MustNew("social-api", cfg.Debug)
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
	feed := social.NewFeedStore(c, int64(cfg.MaxFeedItems))

	bus, err := messaging.NewClient(messaging.Config{URL: cfg.NATSURL, Name: "social-api"})
	if err != nil {
		log.Fatal("messaging connect", zap.Error(err))
	}
	defer bus.Close()

	fanoutQ := queue.New("fanout", rdb, log)
	notifyQ := queue.New("notifications", rdb, log)
	verifier := auth.NewVerifier(cfg.JWTSecret)

	svc := social.NewService(db, c, feed, fanoutQ, notifyQ, log)
	notifSvc := notification.NewService(db, c, notifyQ, log)
	gw, err := gateway.New(bus, log)
	if err != nil {
		log.Fatal("gateway subscribe", zap.Error(err))
	}

	limiters := httpx.NewLimiters()

	r := gin.New()
	r.Use(httpx.CORS(), httpx.SecurityHeaders(), httpx.BodyLimit(), httpx.RequestLog(log))
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "healthy"}) })

	api := r.Group("/api", httpx.RateLimit(limiters.General, true), httpx.Sanitize())
	social.RegisterRoutes(api, svc, verifier)
	notification.RegisterRoutes(api, notifSvc, verifier)
	r.GET("/ws", httpx.Auth(verifier), gw.HandleWebSocket)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()
	log.Info("social-api listening", zap.String("port", cfg.Port))

	quitCh := make(chan os.Signal, 1)
	signal.Notify(quitCh, syscall.SIGINT, syscall.SIGTERM)
	<-quitCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}
