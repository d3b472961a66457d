// Package social implements the Social Fanout & Notification Plane's
// feed store of spec.md §4.E: per-user timelines, follower/following
// membership, and the trending index, all held directly in Redis
// sorted sets/sets via the cache layer's raw client. Grounded on the
// Caqil-social-media-api FeedService's cache-then-rebuild shape (in
// other_examples/) and on the teacher's struct-wraps-a-driver-handle
// idiom.
package social

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cognitohub/platform/pkg/cache"
)

// FeedEntry is spec.md §3's Feed entry tuple.
type FeedEntry struct {
	PostID     string `json:"postId"`
	AuthorID   string `json:"authorId"`
	AuthorName string `json:"authorName"`
	Type       string `json:"type"`
	Timestamp  int64  `json:"timestamp"`
}

// idempotencyScanDepth bounds how many recent entries are scanned for a
// duplicate postId before giving up and tolerating an eventual
// duplicate, per spec.md §4.F.
const idempotencyScanDepth = 200

// FeedStore is the Redis-backed per-user timeline, membership and
// trending store.
type FeedStore struct {
	rdb          *redis.Client
	log          *zap.Logger
	maxFeedItems int64
}

// NewFeedStore builds a FeedStore over c's underlying redis client.
func NewFeedStore(c *cache.Cache, maxFeedItems int64) *FeedStore {
	if maxFeedItems <= 0 {
		maxFeedItems = 1000
	}
	return &FeedStore{rdb: c.Client(), log: c.Logger(), maxFeedItems: maxFeedItems}
}

// hasEntry scans the top idempotencyScanDepth members of a feed for an
// existing entry referencing postID.
func (s *FeedStore) hasEntry(ctx context.Context, feedKey, postID string) bool {
	members, err := s.rdb.ZRevRange(ctx, feedKey, 0, idempotencyScanDepth-1).Result()
	if err != nil {
		return false
	}
	for _, m := range members {
		var e FeedEntry
		if json.Unmarshal([]byte(m), &e) == nil && e.PostID == postID {
			return true
		}
	}
	return false
}

// AppendToFeeds pipelines the same entry into every user's feed in
// followerIDs, using one canonical timestamp for all of them (spec.md
// §4.F item 5). Already-idempotent followers (same postId present in
// their top window) are skipped.
func (s *FeedStore) AppendToFeeds(ctx context.Context, followerIDs []string, entry FeedEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("feedstore: marshal entry: %w", err)
	}
	member := redis.Z{Score: float64(entry.Timestamp), Member: string(raw)}

	pipe := s.rdb.Pipeline()
	touched := 0
	for _, uid := range followerIDs {
		key := cache.FeedKey(uid)
		if s.hasEntry(ctx, key, entry.PostID) {
			continue
		}
		pipe.ZAdd(ctx, key, member)
		pipe.ZRemRangeByRank(ctx, key, 0, -s.maxFeedItems-1)
		touched++
	}
	if touched == 0 {
		return nil
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("feedstore: pipeline append: %w", err)
	}
	return nil
}

// GetFeed returns a page of a user's feed entries, newest first.
func (s *FeedStore) GetFeed(ctx context.Context, userID string, page, limit int64) ([]FeedEntry, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	start := (page - 1) * limit
	raw, err := s.rdb.ZRevRange(ctx, cache.FeedKey(userID), start, start+limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("feedstore: get feed: %w", err)
	}
	entries := make([]FeedEntry, 0, len(raw))
	for _, m := range raw {
		var e FeedEntry
		if json.Unmarshal([]byte(m), &e) == nil {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// --- follower/following membership -----------------------------------

// Follow performs the paired set writes spec.md §4.E requires so
// membership stays consistent in both directions.
func (s *FeedStore) Follow(ctx context.Context, followerID, followingID string) error {
	pipe := s.rdb.Pipeline()
	pipe.SAdd(ctx, cache.FollowingKey(followerID), followingID)
	pipe.SAdd(ctx, cache.FollowersKey(followingID), followerID)
	_, err := pipe.Exec(ctx)
	return err
}

// Unfollow reverses Follow.
func (s *FeedStore) Unfollow(ctx context.Context, followerID, followingID string) error {
	pipe := s.rdb.Pipeline()
	pipe.SRem(ctx, cache.FollowingKey(followerID), followingID)
	pipe.SRem(ctx, cache.FollowersKey(followingID), followerID)
	_, err := pipe.Exec(ctx)
	return err
}

// IsFollowing reports set membership, O(1).
func (s *FeedStore) IsFollowing(ctx context.Context, followerID, followingID string) (bool, error) {
	return s.rdb.SIsMember(ctx, cache.FollowingKey(followerID), followingID).Result()
}

// Stats returns (followers, following) counts via set cardinality.
func (s *FeedStore) Stats(ctx context.Context, userID string) (followers, following int64, err error) {
	pipe := s.rdb.Pipeline()
	followersCmd := pipe.SCard(ctx, cache.FollowersKey(userID))
	followingCmd := pipe.SCard(ctx, cache.FollowingKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return followersCmd.Val(), followingCmd.Val(), nil
}

// Followers returns every follower id of userID from the Redis
// followers set. An empty or evicted set is returned as is; it is not
// rebuilt from the document store here (RebuildFollowers reseeds it).
func (s *FeedStore) Followers(ctx context.Context, userID string) ([]string, error) {
	return s.rdb.SMembers(ctx, cache.FollowersKey(userID)).Result()
}

// RebuildFollowers seeds the follower/following sets from a durable
// source, used after a cache eviction.
func (s *FeedStore) RebuildFollowers(ctx context.Context, userID string, followerIDs []string) error {
	if len(followerIDs) == 0 {
		return nil
	}
	members := make([]interface{}, len(followerIDs))
	for i, id := range followerIDs {
		members[i] = id
	}
	return s.rdb.SAdd(ctx, cache.FollowersKey(userID), members...).Err()
}

// --- trending ----------------------------------------------------------

const trendingTopN = 100
const trendingTTL = 24 * time.Hour

// likeWeight, commentWeight, shareWeight are spec.md §3's trending
// score coefficients.
const (
	likeWeight    = 1
	commentWeight = 2
	shareWeight   = 3
)

// trendingRawKey and trendingMetaKey back the trending sorted set's raw
// integer engagement count and each post's createdAt, held separately
// so a fresh combined score can be recomputed on every write without
// losing the raw count to floating-point drift.
const trendingRawKey = cache.TrendingKey + ":raw"
const trendingMetaKey = cache.TrendingKey + ":meta"

// trendingRecencyTieBreak folds a post's createdAt into a score
// component small enough never to cross an integer engagement-count
// boundary (spec.md §3's weights are all integers), so ties in
// engagement score break in favor of the more recently created post,
// per spec.md §8 invariant 7 ("ties broken by more recent createdAt").
func trendingRecencyTieBreak(createdAtMilli int64) float64 {
	return float64(createdAtMilli) / 1e16
}

// TrendingDelta adjusts a post's raw engagement count, recomputes its
// combined trending score (count plus a recency tie-break), and
// refreshes every key's TTL, per spec.md §4.E: "TTL refreshed on every
// write." createdAtMilli seeds the post's recency once (HSETNX); pass 0
// when the post is already seeded and only its count is changing.
func (s *FeedStore) TrendingDelta(ctx context.Context, postID string, weightedDelta int64, createdAtMilli int64) error {
	raw, err := s.rdb.HIncrBy(ctx, trendingRawKey, postID, weightedDelta).Result()
	if err != nil {
		return fmt.Errorf("feedstore: trending raw incr: %w", err)
	}
	s.rdb.Expire(ctx, trendingRawKey, trendingTTL)

	if createdAtMilli > 0 {
		s.rdb.HSetNX(ctx, trendingMetaKey, postID, createdAtMilli)
	}
	recency := trendingRecencyTieBreak(createdAtMilli)
	if ms, err := s.rdb.HGet(ctx, trendingMetaKey, postID).Int64(); err == nil {
		recency = trendingRecencyTieBreak(ms)
	}
	s.rdb.Expire(ctx, trendingMetaKey, trendingTTL)

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, cache.TrendingKey, redis.Z{Score: float64(raw) + recency, Member: postID})
	pipe.Expire(ctx, cache.TrendingKey, trendingTTL)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("feedstore: trending zadd: %w", err)
	}
	return nil
}

// TrendingDeltaForLike/Comment/Share are the named weighted deltas used
// by the engagement handlers; they never carry a createdAt since the
// post is expected already seeded by the fanout worker's TrendingDelta
// call.
func (s *FeedStore) TrendingDeltaForLike(ctx context.Context, postID string, sign int64) error {
	return s.TrendingDelta(ctx, postID, sign*likeWeight, 0)
}
func (s *FeedStore) TrendingDeltaForComment(ctx context.Context, postID string) error {
	return s.TrendingDelta(ctx, postID, commentWeight, 0)
}
func (s *FeedStore) TrendingDeltaForShare(ctx context.Context, postID string) error {
	return s.TrendingDelta(ctx, postID, shareWeight, 0)
}

// TrimTrending keeps only the top trendingTopN entries. Nothing in the
// worker binaries calls it on a schedule; the trending set is trimmed
// only when a caller invokes it.
func (s *FeedStore) TrimTrending(ctx context.Context) error {
	return s.rdb.ZRemRangeByRank(ctx, cache.TrendingKey, 0, -(trendingTopN + 1)).Err()
}

// Trending returns up to limit postIds ordered by descending score.
func (s *FeedStore) Trending(ctx context.Context, limit int64) ([]string, error) {
	return s.rdb.ZRevRange(ctx, cache.TrendingKey, 0, limit-1).Result()
}
