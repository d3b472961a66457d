package cache_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cognitohub/platform/pkg/cache"
)

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return cache.New(rdb, zap.NewNop())
}

func TestSlugify(t *testing.T) {
	t.Run("lowercases and hyphenates punctuation", func(t *testing.T) {
		assert.Equal(t, "world-war-ii", cache.Slugify("World War II"))
	})

	t.Run("collapses repeated separators", func(t *testing.T) {
		assert.Equal(t, "a-b", cache.Slugify("a   --  b"))
	})

	t.Run("trims leading and trailing hyphens", func(t *testing.T) {
		assert.Equal(t, "topic", cache.Slugify("  !topic!  "))
	})
}

func TestGeneratedQuizRoundTrip(t *testing.T) {
	t.Run("returns a miss before any write", func(t *testing.T) {
		c := newTestCache(t)
		key := cache.TopicQuizKey("algebra", 10, "medium", false)

		_, ok := c.GetGeneratedQuiz(context.Background(), key)

		assert.False(t, ok)
	})

	t.Run("returns what was set", func(t *testing.T) {
		c := newTestCache(t)
		key := cache.TopicQuizKey("algebra", 10, "medium", false)
		gq := &cache.GeneratedQuiz{Questions: []byte(`[{"q":"2+2"}]`), GenerationTime: 1500}

		c.SetGeneratedQuiz(context.Background(), key, gq, cache.TopicQuizTTL())
		got, ok := c.GetGeneratedQuiz(context.Background(), key)

		require.True(t, ok)
		assert.Equal(t, int64(1500), got.GenerationTime)
		assert.JSONEq(t, `[{"q":"2+2"}]`, string(got.Questions))
	})
}

func TestQuota(t *testing.T) {
	t.Run("reports zero usage before any increment", func(t *testing.T) {
		c := newTestCache(t)

		snap := c.CheckQuota(context.Background(), "u1", "2026-07-30", 5)

		assert.Equal(t, 0, snap.Count)
		assert.Equal(t, 5, snap.Remaining)
		assert.False(t, snap.Exceeded)
	})

	t.Run("increments and eventually exceeds the limit", func(t *testing.T) {
		c := newTestCache(t)

		for i := 0; i < 5; i++ {
			_, err := c.IncrementQuota(context.Background(), "u1", "2026-07-30")
			require.NoError(t, err)
		}

		snap := c.CheckQuota(context.Background(), "u1", "2026-07-30", 5)
		assert.Equal(t, 5, snap.Count)
		assert.Equal(t, 0, snap.Remaining)
		assert.True(t, snap.Exceeded)
	})
}

func TestPostCache(t *testing.T) {
	t.Run("caches then invalidates a post blob", func(t *testing.T) {
		c := newTestCache(t)

		c.CachePost(context.Background(), "p1", []byte(`{"id":"p1"}`))
		raw, ok := c.GetPost(context.Background(), "p1")
		require.True(t, ok)
		assert.JSONEq(t, `{"id":"p1"}`, string(raw))

		c.InvalidatePost(context.Background(), "p1")
		_, ok = c.GetPost(context.Background(), "p1")
		assert.False(t, ok)
	})
}

func TestNotificationPlane(t *testing.T) {
	t.Run("pushing a notification bumps the unread counter", func(t *testing.T) {
		c := newTestCache(t)

		c.PushNotification(context.Background(), "u1", []byte(`{"type":"like"}`))
		c.PushNotification(context.Background(), "u1", []byte(`{"type":"follow"}`))

		assert.Equal(t, int64(2), c.UnreadCount(context.Background(), "u1"))

		list, ok := c.GetNotifications(context.Background(), "u1", 10)
		require.True(t, ok)
		require.Len(t, list, 2)
		assert.JSONEq(t, `{"type":"follow"}`, string(list[0]), "most recent push comes first")
	})

	t.Run("reset zeroes the unread counter", func(t *testing.T) {
		c := newTestCache(t)
		c.PushNotification(context.Background(), "u1", []byte(`{"type":"like"}`))

		c.ResetUnread(context.Background(), "u1")

		assert.Equal(t, int64(0), c.UnreadCount(context.Background(), "u1"))
	})

	t.Run("decrement drops the unread counter by one and clamps at zero", func(t *testing.T) {
		c := newTestCache(t)
		c.PushNotification(context.Background(), "u1", []byte(`{"type":"like"}`))
		c.PushNotification(context.Background(), "u1", []byte(`{"type":"follow"}`))

		c.DecrementUnread(context.Background(), "u1")
		assert.Equal(t, int64(1), c.UnreadCount(context.Background(), "u1"))

		c.DecrementUnread(context.Background(), "u1")
		assert.Equal(t, int64(0), c.UnreadCount(context.Background(), "u1"))

		c.DecrementUnread(context.Background(), "u1")
		assert.Equal(t, int64(0), c.UnreadCount(context.Background(), "u1"), "never goes negative, per spec.md §3's monotonicity invariant")
	})

	t.Run("caps the cached list at 100 entries", func(t *testing.T) {
		c := newTestCache(t)
		for i := 0; i < 105; i++ {
			c.PushNotification(context.Background(), "u1", []byte(`{"n":1}`))
		}

		list, ok := c.GetNotifications(context.Background(), "u1", 200)
		require.True(t, ok)
		assert.Len(t, list, 100)
	})
}
