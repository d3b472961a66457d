// Package cache implements the typed, content-addressed cache layer of
// spec.md §4.A on top of Redis. Key derivation, TTLs and the quota-window
// contract live here; cache failures are always swallowed (logged, never
// returned as a business error), mirroring the propagation policy of
// spec.md §7.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	topicQuizTTL   = 24 * time.Hour
	fileQuizTTL    = 7 * 24 * time.Hour
	adaptiveTTL    = 5 * time.Minute
	quotaTTL       = 24 * time.Hour
	feedTTL        = 5 * time.Minute
	trendingTTL    = 24 * time.Hour
	postTTL        = 5 * time.Minute
	notifListTTL   = 10 * time.Minute
	unreadCountTTL = 10 * time.Minute
)

// Cache wraps a redis client with the typed accessors the rest of the
// platform uses instead of touching Redis directly.
type Cache struct {
	rdb *redis.Client
	log *zap.Logger
}

// New wraps an already-connected redis client.
func New(rdb *redis.Client, log *zap.Logger) *Cache {
	return &Cache{rdb: rdb, log: log}
}

func (c *Cache) warn(op string, err error) {
	if err != nil && err != redis.Nil {
		c.log.Warn("cache operation failed", zap.String("op", op), zap.Error(err))
	}
}

// --- key derivation -------------------------------------------------

// Slugify lowercases and collapses whitespace/punctuation into hyphens,
// used to build stable cache keys from free-text topics.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastHyphen := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// MD5Hex returns the hex md5 digest of s, used for job-id and cache-key
// content addressing per spec.md §4.D.
func MD5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// TopicQuizKey builds the key for a topic-generated quiz cache entry.
func TopicQuizKey(topic string, n int, difficulty string, adaptive bool) string {
	return fmt.Sprintf("quiz:topic:%s:%d:%s:%t", Slugify(topic), n, difficulty, adaptive)
}

// FileQuizKey builds the key for a file-derived quiz cache entry.
func FileQuizKey(contentHash string, n int, difficulty string) string {
	return fmt.Sprintf("quiz:file:%s:%d:%s", contentHash, n, difficulty)
}

// AdaptiveKey builds the key for a user's adaptive-difficulty suggestion.
func AdaptiveKey(userID string) string { return "adaptive:" + userID }

// QuotaKey builds today's quota-window key for a user.
func QuotaKey(userID string, day string) string { return fmt.Sprintf("limit:%s:%s", userID, day) }

// FeedKey builds a user's feed sorted-set key.
func FeedKey(userID string) string { return "social:feed:" + userID }

// FollowersKey builds a user's followers set key.
func FollowersKey(userID string) string { return "social:followers:" + userID }

// FollowingKey builds a user's following set key.
func FollowingKey(userID string) string { return "social:following:" + userID }

// TrendingKey is the single global trending sorted set.
const TrendingKey = "social:trending"

// PostKey builds a post's cached-blob key.
func PostKey(postID string) string { return "social:post:" + postID }

// NotificationsKey builds a user's capped notification list key.
func NotificationsKey(userID string) string { return "social:notifications:" + userID }

// UnreadCountKey builds a user's unread-counter key.
func UnreadCountKey(userID string) string { return "social:unread-count:" + userID }

// --- generated-quiz cache --------------------------------------------

// GeneratedQuiz is the payload stored for a generation cache hit, per
// spec.md §4.B: "the stored record includes {questions, adaptiveInfo,
// generationTime}".
type GeneratedQuiz struct {
	Questions      json.RawMessage `json:"questions"`
	AdaptiveInfo   json.RawMessage `json:"adaptiveInfo,omitempty"`
	GenerationTime int64           `json:"generationTime"`
}

// GetGeneratedQuiz looks up a cached generation result. ok is false on
// both miss and error (cache errors never fail the caller).
func (c *Cache) GetGeneratedQuiz(ctx context.Context, key string) (*GeneratedQuiz, bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		c.warn("get-generated-quiz", err)
		return nil, false
	}
	var gq GeneratedQuiz
	if err := json.Unmarshal(raw, &gq); err != nil {
		c.warn("decode-generated-quiz", err)
		return nil, false
	}
	return &gq, true
}

// SetGeneratedQuiz stores a generation result with the given TTL (topic
// quizzes: 24h, file quizzes: 7d, per spec.md §4.A).
func (c *Cache) SetGeneratedQuiz(ctx context.Context, key string, gq *GeneratedQuiz, ttl time.Duration) {
	raw, err := json.Marshal(gq)
	if err != nil {
		c.warn("encode-generated-quiz", err)
		return
	}
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.warn("set-generated-quiz", err)
	}
}

// TopicQuizTTL and FileQuizTTL expose the TTL constants to callers that
// need them for logging/testing without hardcoding the durations again.
func TopicQuizTTL() time.Duration { return topicQuizTTL }
func FileQuizTTL() time.Duration  { return fileQuizTTL }

// --- quota -------------------------------------------------------------

// QuotaSnapshot is what checkQuota/limits reporting returns to callers.
type QuotaSnapshot struct {
	Count     int  `json:"count"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
	Exceeded  bool `json:"exceeded"`
}

// CheckQuota reads today's usage for userID without incrementing it. On
// store failure it returns the zero-value snapshot (not exceeded) per
// spec.md §4.A — generation is never blocked by a cache outage.
func (c *Cache) CheckQuota(ctx context.Context, userID, day string, limit int) QuotaSnapshot {
	key := QuotaKey(userID, day)
	n, err := c.rdb.Get(ctx, key).Int()
	if err != nil && err != redis.Nil {
		c.warn("check-quota", err)
		return QuotaSnapshot{}
	}
	remaining := limit - n
	if remaining < 0 {
		remaining = 0
	}
	return QuotaSnapshot{Count: n, Limit: limit, Remaining: remaining, Exceeded: n >= limit}
}

// IncrementQuota increments today's usage counter, setting the 24h TTL
// only when this call observes the post-increment value of 1 (first
// writer wins the TTL race; spec.md §5 tolerates the rare lost race).
func (c *Cache) IncrementQuota(ctx context.Context, userID, day string) (int64, error) {
	key := QuotaKey(userID, day)
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := c.rdb.Expire(ctx, key, quotaTTL).Err(); err != nil {
			c.warn("quota-expire", err)
		}
	}
	return n, nil
}

// --- adaptive context -------------------------------------------------

// GetAdaptive returns a user's cached adaptive-difficulty context, if
// any. Absence is not an error — spec.md §4.D: "adaptive is
// opportunistic, not required for correctness."
func (c *Cache) GetAdaptive(ctx context.Context, userID string) ([]byte, bool) {
	raw, err := c.rdb.Get(ctx, AdaptiveKey(userID)).Bytes()
	if err != nil {
		c.warn("get-adaptive", err)
		return nil, false
	}
	return raw, true
}

// SetAdaptive stores a user's adaptive-difficulty context.
func (c *Cache) SetAdaptive(ctx context.Context, userID string, raw []byte) {
	if err := c.rdb.Set(ctx, AdaptiveKey(userID), raw, adaptiveTTL).Err(); err != nil {
		c.warn("set-adaptive", err)
	}
}

// --- social caches -------------------------------------------------

// CachePost stores a post's serialized blob, refreshing its TTL.
func (c *Cache) CachePost(ctx context.Context, postID string, raw []byte) {
	if err := c.rdb.Set(ctx, PostKey(postID), raw, postTTL).Err(); err != nil {
		c.warn("cache-post", err)
	}
}

// GetPost returns a cached post blob, if present.
func (c *Cache) GetPost(ctx context.Context, postID string) ([]byte, bool) {
	raw, err := c.rdb.Get(ctx, PostKey(postID)).Bytes()
	if err != nil {
		c.warn("get-post", err)
		return nil, false
	}
	return raw, true
}

// InvalidatePost removes a post's cached blob (counter change or
// soft-delete).
func (c *Cache) InvalidatePost(ctx context.Context, postID string) {
	if err := c.rdb.Del(ctx, PostKey(postID)).Err(); err != nil {
		c.warn("invalidate-post", err)
	}
}

// --- notification plane -----------------------------------------------

// notifListCap bounds the cached notification list per spec.md §4.G:
// "most recent 100 survive; older ones fall back to the document store."
const notifListCap = 100

// PushNotification prepends a notification blob to a recipient's capped
// list and bumps their unread counter in one pipelined round trip.
func (c *Cache) PushNotification(ctx context.Context, recipientID string, raw []byte) {
	pipe := c.rdb.Pipeline()
	listKey := NotificationsKey(recipientID)
	pipe.LPush(ctx, listKey, raw)
	pipe.LTrim(ctx, listKey, 0, notifListCap-1)
	pipe.Expire(ctx, listKey, notifListTTL)
	pipe.Incr(ctx, UnreadCountKey(recipientID))
	pipe.Expire(ctx, UnreadCountKey(recipientID), unreadCountTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		c.warn("push-notification", err)
	}
}

// notifBatchSize is the round-trip batching cap of spec.md §4.G:
// "same operations pipelined for up to 50 recipients per round trip."
const notifBatchSize = 50

// NotificationPush is one recipient's push in a batched write.
type NotificationPush struct {
	RecipientID string
	Raw         []byte
}

// PushNotificationsBatch applies PushNotification's list-push/trim/
// expire/unread-increment sequence for every item in one pipelined
// round trip, chunked at notifBatchSize recipients per trip, per
// spec.md §4.G's batch writer (used during follower/mention fanout
// instead of one round trip per recipient).
func (c *Cache) PushNotificationsBatch(ctx context.Context, items []NotificationPush) {
	for start := 0; start < len(items); start += notifBatchSize {
		end := start + notifBatchSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		pipe := c.rdb.Pipeline()
		for _, item := range chunk {
			listKey := NotificationsKey(item.RecipientID)
			pipe.LPush(ctx, listKey, item.Raw)
			pipe.LTrim(ctx, listKey, 0, notifListCap-1)
			pipe.Expire(ctx, listKey, notifListTTL)
			pipe.Incr(ctx, UnreadCountKey(item.RecipientID))
			pipe.Expire(ctx, UnreadCountKey(item.RecipientID), unreadCountTTL)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			c.warn("push-notifications-batch", err)
		}
	}
}

// GetNotifications returns a recipient's cached notification list,
// newest first.
func (c *Cache) GetNotifications(ctx context.Context, recipientID string, limit int64) ([][]byte, bool) {
	raw, err := c.rdb.LRange(ctx, NotificationsKey(recipientID), 0, limit-1).Result()
	if err != nil {
		c.warn("get-notifications", err)
		return nil, false
	}
	out := make([][]byte, len(raw))
	for i, s := range raw {
		out[i] = []byte(s)
	}
	return out, true
}

// UnreadCount returns a recipient's unread counter, defaulting to 0.
func (c *Cache) UnreadCount(ctx context.Context, recipientID string) int64 {
	n, err := c.rdb.Get(ctx, UnreadCountKey(recipientID)).Int64()
	if err != nil && err != redis.Nil {
		c.warn("unread-count", err)
	}
	return n
}

// ResetUnread zeroes a recipient's unread counter (markAllRead).
func (c *Cache) ResetUnread(ctx context.Context, recipientID string) {
	if err := c.rdb.Set(ctx, UnreadCountKey(recipientID), 0, unreadCountTTL).Err(); err != nil {
		c.warn("reset-unread", err)
	}
}

// DecrementUnread drops a recipient's unread counter by one, clamped at
// zero, per spec.md §4.G: "markRead is idempotent; only the first
// transition decrements the counter." Callers only invoke this once
// they've confirmed (via the document store's conditional update) that
// this was in fact the first unread->read transition for that
// notification.
func (c *Cache) DecrementUnread(ctx context.Context, recipientID string) {
	key := UnreadCountKey(recipientID)
	n, err := c.rdb.Decr(ctx, key).Result()
	if err != nil {
		c.warn("decrement-unread", err)
		return
	}
	if n < 0 {
		if err := c.rdb.Set(ctx, key, 0, unreadCountTTL).Err(); err != nil {
			c.warn("decrement-unread-clamp", err)
		}
	}
}

// Client exposes the underlying redis client for packages (the social
// feed store) that need primitives beyond the typed accessors above —
// sorted sets, sets, pipelines — without reimplementing a connection.
func (c *Cache) Client() *redis.Client { return c.rdb }

func (c *Cache) Logger() *zap.Logger { return c.log }
