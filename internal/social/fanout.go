package social

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cognitohub/platform/internal/notification"
	"github.com/cognitohub/platform/pkg/messaging"
	"github.com/cognitohub/platform/pkg/queue"
	"github.com/cognitohub/platform/pkg/store"
)

// FanoutWorker implements queue.Handler for the fanout queue, running
// spec.md §4.F's four-step algorithm once per published post.
type FanoutWorker struct {
	feed    *FeedStore
	store   *store.Store
	bus     *messaging.Client
	notifyQ *queue.Queue
	log     *zap.Logger
}

// NewFanoutWorker builds a FanoutWorker. notifyQ is the notifications
// queue mention notifications are batched onto.
func NewFanoutWorker(feed *FeedStore, s *store.Store, bus *messaging.Client, notifyQ *queue.Queue, log *zap.Logger) *FanoutWorker {
	return &FanoutWorker{feed: feed, store: s, bus: bus, notifyQ: notifyQ, log: log}
}

// Handle implements queue.Handler.
//
//  1. append the post to every follower's feed (plus the author's own),
//     using one timestamp so the write is idempotent across retries
//  2. bump the trending score
//  3. enqueue one batch notification job covering every @mention in
//     the content
//  4. report done
//
// The document write already happened synchronously in Service.Create;
// this worker only fans the post out to the read paths that depend on
// eventual consistency (spec.md §4.F).
func (w *FanoutWorker) Handle(ctx context.Context, job *queue.Job, progress func(int)) (interface{}, error) {
	var payload FanoutPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, queue.Permanent(fmt.Errorf("fanout: decode payload: %w", err))
	}
	progress(10)

	entry := FeedEntry{
		PostID:     payload.Post.ID.Hex(),
		AuthorID:   payload.Post.AuthorID,
		AuthorName: payload.Post.AuthorDisplay,
		Type:       string(payload.Post.Type),
		Timestamp:  payload.Post.CreatedAt.UnixMilli(),
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}

	if err := w.feed.AppendToFeeds(ctx, payload.FollowerIDs, entry); err != nil {
		return nil, fmt.Errorf("fanout: append to feeds: %w", err)
	}
	progress(40)

	if w.bus != nil {
		for _, followerID := range payload.FollowerIDs {
			if err := w.bus.Publish(ctx, "feed.update."+followerID, entry); err != nil {
				w.log.Warn("fanout: realtime publish failed", zap.String("follower", followerID), zap.Error(err))
			}
		}
	}
	progress(60)

	if err := w.feed.TrendingDelta(ctx, entry.PostID, 0, entry.Timestamp); err != nil {
		w.log.Warn("fanout: seed trending entry failed", zap.Error(err))
	}
	progress(80)

	var mentionNotifs []*store.Notification
	for _, mention := range payload.Post.Mentions {
		if mention == payload.Post.AuthorID {
			continue
		}
		mentionNotifs = append(mentionNotifs, &store.Notification{
			RecipientID: mention,
			Type:        store.NotifyMention,
			ActorID:     payload.Post.AuthorID,
			Message:     payload.Post.AuthorID + " mentioned you in a post",
			ActionURL:   "/posts/" + entry.PostID,
			Priority:    store.PriorityHigh,
		})
	}
	if len(mentionNotifs) > 0 && w.notifyQ != nil {
		jobID := "notify-mention-batch-" + entry.PostID
		payload := notification.BatchPayload{Notifications: mentionNotifs}
		if _, err := w.notifyQ.Enqueue(ctx, payload, queue.EnqueueOptions{JobID: jobID, Priority: 1, Attempts: 3}); err != nil {
			w.log.Warn("fanout: mention notification batch enqueue failed", zap.Error(err))
		}
	}
	progress(100)

	return map[string]interface{}{"delivered": len(payload.FollowerIDs)}, nil
}
