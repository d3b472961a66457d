// Package notification implements the notification plane of spec.md
// §4.G: a durable history in the document store, a capped hot list and
// unread counter in Redis, and the templated message builders for each
// notification type. Adapted from cloudvault's notify.go, whose
// broadcast fan-out blocked a sender goroutine forever against one slow
// receiver; every publish here goes through a buffered, non-blocking
// send instead (see internal/gateway).
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/cognitohub/platform/pkg/cache"
	"github.com/cognitohub/platform/pkg/httpx"
	"github.com/cognitohub/platform/pkg/messaging"
	"github.com/cognitohub/platform/pkg/queue"
	"github.com/cognitohub/platform/pkg/store"
	"github.com/cognitohub/platform/shared/events"
)

// Service is the HTTP surface over a recipient's notification history,
// plus the service-to-service event ingress of spec.md §6.
type Service struct {
	store   *store.Store
	cache   *cache.Cache
	notifyQ *queue.Queue
	log     *zap.Logger
}

// NewService builds a Service.
func NewService(s *store.Store, c *cache.Cache, notifyQ *queue.Queue, log *zap.Logger) *Service {
	return &Service{store: s, cache: c, notifyQ: notifyQ, log: log}
}

// List handles GET /api/notifications. Reads the capped cache list
// first; falls back to the document store on a cache miss, per
// spec.md §4.G's cache-then-store read path.
func (s *Service) List(c *gin.Context) {
	userID := httpx.UserID(c)
	limit := int64(atoiOr(c.Query("limit"), 50))

	if raw, ok := s.cache.GetNotifications(c.Request.Context(), userID, limit); ok && len(raw) > 0 {
		out := make([]store.Notification, 0, len(raw))
		for _, blob := range raw {
			var n store.Notification
			if json.Unmarshal(blob, &n) == nil {
				out = append(out, n)
			}
		}
		httpx.OK(c, http.StatusOK, gin.H{"notifications": out, "unreadCount": s.cache.UnreadCount(c.Request.Context(), userID)}, "")
		return
	}

	page := int64(atoiOr(c.Query("page"), 1))
	list, err := s.store.Notifications().ListByRecipient(c.Request.Context(), userID, page, limit)
	if err != nil {
		httpx.Fail(c, http.StatusInternalServerError, "could not load notifications")
		return
	}
	httpx.OK(c, http.StatusOK, gin.H{"notifications": list, "unreadCount": s.cache.UnreadCount(c.Request.Context(), userID)}, "")
}

// UnreadCount handles GET /api/notifications/unread-count.
func (s *Service) UnreadCount(c *gin.Context) {
	userID := httpx.UserID(c)
	httpx.OK(c, http.StatusOK, gin.H{"unreadCount": s.cache.UnreadCount(c.Request.Context(), userID)}, "")
}

// MarkRead handles PUT /api/notifications/{id}/read.
func (s *Service) MarkRead(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		httpx.Fail(c, http.StatusBadRequest, "invalid notification id")
		return
	}
	recipientID := httpx.UserID(c)
	wasUnread, err := s.store.Notifications().MarkRead(c.Request.Context(), id)
	if err != nil {
		httpx.Fail(c, http.StatusInternalServerError, "could not mark read")
		return
	}
	if wasUnread {
		s.cache.DecrementUnread(c.Request.Context(), recipientID)
	}
	httpx.OK(c, http.StatusOK, gin.H{}, "marked read")
}

// MarkAllRead handles PUT /api/notifications/read-all.
func (s *Service) MarkAllRead(c *gin.Context) {
	userID := httpx.UserID(c)
	if err := s.store.Notifications().MarkAllRead(c.Request.Context(), userID); err != nil {
		httpx.Fail(c, http.StatusInternalServerError, "could not mark all read")
		return
	}
	s.cache.ResetUnread(c.Request.Context(), userID)
	httpx.OK(c, http.StatusOK, gin.H{}, "marked all read")
}

// Events handles the service-to-service ingress of spec.md §6:
// POST /api/events/{achievement-unlocked|level-up|streak-milestone}.
// Each kind is templated per spec.md §4.G ("level-up … created by an
// inbound service event") and enqueued onto the notifications queue
// like any other notification creation.
func (s *Service) Events(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var evt events.InboundEvent
		if err := c.ShouldBindJSON(&evt); err != nil || evt.UserID == "" {
			httpx.Fail(c, http.StatusBadRequest, "userId is required")
			return
		}

		n, err := templateInboundEvent(kind, evt)
		if err != nil {
			httpx.Fail(c, http.StatusBadRequest, err.Error())
			return
		}

		jobID := "notify-" + kind + "-" + evt.UserID + "-" + strconv.FormatInt(time.Now().UnixNano(), 10)
		priority := 0
		if n.Priority == store.PriorityHigh {
			priority = 1
		}
		if _, err := s.notifyQ.Enqueue(c.Request.Context(), n, queue.EnqueueOptions{JobID: jobID, Priority: priority, Attempts: 3}); err != nil {
			httpx.Fail(c, http.StatusInternalServerError, "could not enqueue notification")
			return
		}
		httpx.OK(c, http.StatusAccepted, gin.H{}, "")
	}
}

// templateInboundEvent maps one inbound service event kind to its
// Notification template per spec.md §4.G.
func templateInboundEvent(kind string, evt events.InboundEvent) (store.Notification, error) {
	n := store.Notification{RecipientID: evt.UserID}
	switch kind {
	case "achievement-unlocked":
		n.Type = store.NotifyAchievement
		n.Message = evt.Title
		n.ActionURL = "/achievements/" + evt.RefID
		n.Priority = store.PriorityHigh
	case "level-up":
		n.Type = store.NotifyLevelUp
		n.Message = "Leveled up to Level " + strconv.Itoa(evt.Level)
		n.Priority = store.PriorityHigh
	case "streak-milestone":
		n.Type = store.NotifyStreakMilestone
		n.Message = strconv.Itoa(evt.Streak) + "-day streak! Keep it up."
		n.Priority = store.PriorityNormal
	default:
		return n, fmt.Errorf("unknown event kind %q", kind)
	}
	return n, nil
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// Worker implements queue.Handler for the notifications queue: it
// persists the durable record, updates the hot Redis list/counter, and
// publishes a realtime event the gateway bridges to the recipient's
// websocket connection, if any.
type Worker struct {
	store *store.Store
	cache *cache.Cache
	bus   *messaging.Client
	log   *zap.Logger
}

// NewWorker builds a Worker.
func NewWorker(s *store.Store, c *cache.Cache, bus *messaging.Client, log *zap.Logger) *Worker {
	return &Worker{store: s, cache: c, bus: bus, log: log}
}

// BatchPayload wraps multiple notifications created together (follower
// or mention fanout) so the worker persists and pushes them in one
// round trip instead of one job per recipient, per spec.md §4.G's batch
// writer ("same operations pipelined for up to 50 recipients"). A job
// payload with no "notifications" key is the ordinary single-creation
// shape and falls through to the single-notification path below.
type BatchPayload struct {
	Notifications []*store.Notification `json:"notifications"`
}

// Handle implements queue.Handler.
func (w *Worker) Handle(ctx context.Context, job *queue.Job, progress func(int)) (interface{}, error) {
	var batch BatchPayload
	if err := json.Unmarshal(job.Payload, &batch); err == nil && len(batch.Notifications) > 0 {
		return w.handleBatch(ctx, batch.Notifications, progress)
	}

	var n store.Notification
	if err := json.Unmarshal(job.Payload, &n); err != nil {
		return nil, queue.Permanent(fmt.Errorf("notification worker: decode payload: %w", err))
	}
	progress(20)

	id, err := w.store.Notifications().Create(ctx, &n)
	if err != nil {
		return nil, fmt.Errorf("notification worker: persist: %w", err)
	}
	n.ID = id
	progress(60)

	raw, err := json.Marshal(n)
	if err == nil {
		w.cache.PushNotification(ctx, n.RecipientID, raw)
	}
	progress(80)

	w.publishRealtime(ctx, n)
	progress(100)

	return map[string]string{"notificationId": n.ID.Hex()}, nil
}

// handleBatch persists and pushes a batch of notifications pipelined
// per spec.md §4.G.
func (w *Worker) handleBatch(ctx context.Context, ns []*store.Notification, progress func(int)) (interface{}, error) {
	if err := w.store.Notifications().CreateMany(ctx, ns); err != nil {
		return nil, fmt.Errorf("notification worker: batch persist: %w", err)
	}
	progress(50)

	pushes := make([]cache.NotificationPush, 0, len(ns))
	ids := make([]string, 0, len(ns))
	for _, n := range ns {
		raw, err := json.Marshal(n)
		if err != nil {
			continue
		}
		pushes = append(pushes, cache.NotificationPush{RecipientID: n.RecipientID, Raw: raw})
		ids = append(ids, n.ID.Hex())
	}
	w.cache.PushNotificationsBatch(ctx, pushes)
	progress(80)

	for _, n := range ns {
		w.publishRealtime(ctx, *n)
	}
	progress(100)

	return map[string]interface{}{"notificationIds": ids}, nil
}

func (w *Worker) publishRealtime(ctx context.Context, n store.Notification) {
	if w.bus == nil {
		return
	}
	evt, err := events.New(events.TypeNotificationCreated, n, events.Metadata{UserID: n.RecipientID, Source: "notification-worker"})
	if err != nil {
		return
	}
	if err := w.bus.Publish(ctx, "realtime."+n.RecipientID, evt); err != nil {
		w.log.Warn("notification worker: realtime publish failed", zap.Error(err))
	}
}
