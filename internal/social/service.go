package social

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/cognitohub/platform/pkg/cache"
	"github.com/cognitohub/platform/pkg/httpx"
	"github.com/cognitohub/platform/pkg/queue"
	"github.com/cognitohub/platform/pkg/store"
)

// FanoutQueueName is the logical queue fanout jobs are submitted to.
const FanoutQueueName = "fanout"

// NotificationQueueName is the logical queue notification-creation jobs
// are submitted to.
const NotificationQueueName = "notifications"

// Service is the HTTP surface of spec.md §6's post/comment/like/follow
// routes.
type Service struct {
	store     *store.Store
	cache     *cache.Cache
	feed      *FeedStore
	fanoutQ   *queue.Queue
	notifyQ   *queue.Queue
	log       *zap.Logger
}

// NewService builds a Service.
func NewService(s *store.Store, c *cache.Cache, feed *FeedStore, fanoutQ, notifyQ *queue.Queue, log *zap.Logger) *Service {
	return &Service{store: s, cache: c, feed: feed, fanoutQ: fanoutQ, notifyQ: notifyQ, log: log}
}

// FanoutPayload is enqueued for the fanout worker; spec.md §4.F: "full
// post record plus the list of follower ids at enqueue time."
type FanoutPayload struct {
	Post        store.Post `json:"post"`
	FollowerIDs []string   `json:"followerIds"`
}

type createPostRequest struct {
	Content    string            `json:"content"`
	Images     []string          `json:"images,omitempty"`
	Type       store.PostType    `json:"type"`
	Visibility store.PostVisibility `json:"visibility"`
	RelatedQuiz string           `json:"relatedQuiz,omitempty"`
	Mentions   []string          `json:"mentions,omitempty"`
}

var createPostSpecs = []httpx.FieldSpec{
	{Name: "content", Kind: httpx.KindString, Required: true, MinLen: 1, MaxLen: 5000},
}

// Create handles POST /api/posts/create. The document write and cache
// population happen synchronously; fanout to followers is enqueued and
// the handler returns before it runs, per spec.md §8 scenario 4 ("201
// within 50ms").
func (s *Service) Create(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Fail(c, http.StatusBadRequest, "malformed post body")
		return
	}
	if msg := httpx.Validate(httpx.Values{"content": req.Content}, createPostSpecs); msg != "" {
		httpx.Fail(c, http.StatusBadRequest, msg)
		return
	}
	if req.Visibility == "" {
		req.Visibility = store.VisibilityPublic
	}
	if req.Type == "" {
		req.Type = store.PostText
	}

	userID := httpx.UserID(c)
	post := &store.Post{
		AuthorID:    userID,
		AuthorDisplay: userID, // display name denormalization is resolved by the profile service; id stands in until wired
		Content:     req.Content,
		Images:      req.Images,
		Type:        req.Type,
		RelatedQuiz: req.RelatedQuiz,
		Visibility:  req.Visibility,
		Mentions:    req.Mentions,
	}

	if _, err := s.store.Posts().Create(c.Request.Context(), post); err != nil {
		httpx.Fail(c, http.StatusBadRequest, err.Error())
		return
	}

	raw, _ := json.Marshal(post)
	s.cache.CachePost(c.Request.Context(), post.ID.Hex(), raw)

	followerIDs, _ := s.feed.Followers(c.Request.Context(), userID)
	followerIDs = append(followerIDs, userID) // author's own timeline, per spec.md §4.F item 2

	jobID := "fanout-" + post.ID.Hex()
	if _, err := s.fanoutQ.Enqueue(c.Request.Context(), FanoutPayload{Post: *post, FollowerIDs: followerIDs}, queue.EnqueueOptions{JobID: jobID, Attempts: 5}); err != nil {
		s.log.Warn("fanout enqueue failed", zap.String("post", post.ID.Hex()), zap.Error(err))
	}

	httpx.OK(c, http.StatusCreated, gin.H{"post": post}, "")
}

// Feed handles GET /api/posts/feed/{userId}.
func (s *Service) Feed(c *gin.Context) {
	userID := c.Param("userId")
	page := int64(atoiOr(c.Query("page"), 1))
	limit := int64(atoiOr(c.Query("limit"), 20))

	entries, err := s.feed.GetFeed(c.Request.Context(), userID, page, limit+1)
	if err != nil {
		httpx.Fail(c, http.StatusInternalServerError, "could not load feed")
		return
	}
	hasMore := int64(len(entries)) > limit
	if hasMore {
		entries = entries[:limit]
	}

	ids := make([]primitive.ObjectID, 0, len(entries))
	for _, e := range entries {
		if id, err := primitive.ObjectIDFromHex(e.PostID); err == nil {
			ids = append(ids, id)
		}
	}
	posts, err := s.store.Posts().GetMany(c.Request.Context(), ids)
	if err != nil {
		httpx.Fail(c, http.StatusInternalServerError, "could not resolve posts")
		return
	}

	visible := make([]*store.Post, 0, len(entries))
	for _, e := range entries {
		id, err := primitive.ObjectIDFromHex(e.PostID)
		if err != nil {
			continue
		}
		post, ok := posts[id]
		if !ok || post.IsDeleted || !visibleTo(post, userID) {
			continue
		}
		visible = append(visible, post)
	}

	httpx.OK(c, http.StatusOK, gin.H{"posts": visible, "hasMore": hasMore}, "")
}

// visibleTo applies spec.md §4.E's read-time visibility filter.
func visibleTo(post *store.Post, viewerID string) bool {
	switch post.Visibility {
	case store.VisibilityPublic:
		return true
	case store.VisibilityPrivate:
		return post.AuthorID == viewerID
	default: // followers
		return true // follower-set membership already gated this post reaching the viewer's feed
	}
}

// Trending handles GET /api/posts/trending/posts.
func (s *Service) Trending(c *gin.Context) {
	limit := int64(atoiOr(c.Query("limit"), 20))
	ids, err := s.feed.Trending(c.Request.Context(), limit)
	if err != nil {
		httpx.Fail(c, http.StatusInternalServerError, "could not load trending")
		return
	}
	objIDs := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			objIDs = append(objIDs, oid)
		}
	}
	posts, err := s.store.Posts().GetMany(c.Request.Context(), objIDs)
	if err != nil {
		httpx.Fail(c, http.StatusInternalServerError, "could not resolve posts")
		return
	}
	ordered := make([]*store.Post, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			continue
		}
		if post, ok := posts[oid]; ok && !post.IsDeleted {
			ordered = append(ordered, post)
		}
	}
	httpx.OK(c, http.StatusOK, gin.H{"posts": ordered}, "")
}

type followRequest struct {
	FollowingID string `json:"followingId"`
}

// Follow handles POST /api/follows/follow.
func (s *Service) Follow(c *gin.Context) {
	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.FollowingID == "" {
		httpx.Fail(c, http.StatusBadRequest, "followingId is required")
		return
	}
	followerID := httpx.UserID(c)

	if err := s.store.Follows().Create(c.Request.Context(), followerID, req.FollowingID); err != nil {
		switch err {
		case store.ErrSelfFollow:
			httpx.Fail(c, http.StatusBadRequest, err.Error())
		case store.ErrAlreadyFollowing:
			httpx.Fail(c, http.StatusConflict, err.Error())
		default:
			httpx.Fail(c, http.StatusInternalServerError, "could not follow")
		}
		return
	}
	if err := s.feed.Follow(c.Request.Context(), followerID, req.FollowingID); err != nil {
		s.log.Warn("feed follow mirror failed", zap.Error(err))
	}

	s.enqueueNotification(c.Request.Context(), store.Notification{
		RecipientID: req.FollowingID, Type: store.NotifyFollow, ActorID: followerID,
		Message: followerID + " started following you", ActionURL: "/profile/" + followerID,
		Priority: store.PriorityHigh,
	})

	httpx.OK(c, http.StatusCreated, gin.H{}, "followed")
}

// Unfollow handles DELETE /api/follows/follow.
func (s *Service) Unfollow(c *gin.Context) {
	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.FollowingID == "" {
		httpx.Fail(c, http.StatusBadRequest, "followingId is required")
		return
	}
	followerID := httpx.UserID(c)

	if err := s.store.Follows().Delete(c.Request.Context(), followerID, req.FollowingID); err != nil {
		httpx.Fail(c, http.StatusNotFound, "not following")
		return
	}
	if err := s.feed.Unfollow(c.Request.Context(), followerID, req.FollowingID); err != nil {
		s.log.Warn("feed unfollow mirror failed", zap.Error(err))
	}
	httpx.OK(c, http.StatusOK, gin.H{}, "unfollowed")
}

// FollowStats handles GET /api/follows/stats/{userId}.
func (s *Service) FollowStats(c *gin.Context) {
	userID := c.Param("userId")
	followers, following, err := s.feed.Stats(c.Request.Context(), userID)
	if err != nil {
		httpx.Fail(c, http.StatusInternalServerError, "could not load stats")
		return
	}
	httpx.OK(c, http.StatusOK, gin.H{"followers": followers, "following": following}, "")
}

// CheckFollow handles GET /api/follows/check/{followerId}/{followingId}.
func (s *Service) CheckFollow(c *gin.Context) {
	ok, err := s.feed.IsFollowing(c.Request.Context(), c.Param("followerId"), c.Param("followingId"))
	if err != nil {
		httpx.Fail(c, http.StatusInternalServerError, "could not check follow")
		return
	}
	httpx.OK(c, http.StatusOK, gin.H{"following": ok}, "")
}

// Like handles POST /api/posts/{id}/like. Spec.md §8 invariant 4/5.
func (s *Service) Like(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		httpx.Fail(c, http.StatusBadRequest, "invalid post id")
		return
	}
	userID := httpx.UserID(c)

	if err := s.store.Likes().Create(c.Request.Context(), &store.Like{UserID: userID, TargetType: store.LikeTargetPost, TargetID: id}); err != nil {
		if err == store.ErrAlreadyLiked {
			httpx.Fail(c, http.StatusConflict, "already liked")
			return
		}
		httpx.Fail(c, http.StatusInternalServerError, "could not like post")
		return
	}

	if err := s.store.Posts().IncrementCounter(c.Request.Context(), id, "likes", 1); err != nil {
		s.log.Warn("increment like counter failed", zap.Error(err))
	}
	s.cache.InvalidatePost(c.Request.Context(), id.Hex())
	if err := s.feed.TrendingDeltaForLike(c.Request.Context(), id.Hex(), 1); err != nil {
		s.log.Warn("trending update failed", zap.Error(err))
	}

	if post, err := s.store.Posts().GetByID(c.Request.Context(), id); err == nil && post.AuthorID != userID {
		s.enqueueNotification(c.Request.Context(), store.Notification{
			RecipientID: post.AuthorID, Type: store.NotifyLike, ActorID: userID,
			Message: userID + " liked your post", ActionURL: "/posts/" + id.Hex(),
			Priority: store.PriorityNormal,
		})
	}

	httpx.OK(c, http.StatusOK, gin.H{}, "liked")
}

// Unlike handles DELETE /api/posts/{id}/like.
func (s *Service) Unlike(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		httpx.Fail(c, http.StatusBadRequest, "invalid post id")
		return
	}
	userID := httpx.UserID(c)

	if err := s.store.Likes().Delete(c.Request.Context(), userID, store.LikeTargetPost, id); err != nil {
		httpx.Fail(c, http.StatusNotFound, "not liked")
		return
	}
	if err := s.store.Posts().IncrementCounter(c.Request.Context(), id, "likes", -1); err != nil {
		s.log.Warn("decrement like counter failed", zap.Error(err))
	}
	s.cache.InvalidatePost(c.Request.Context(), id.Hex())
	if err := s.feed.TrendingDeltaForLike(c.Request.Context(), id.Hex(), -1); err != nil {
		s.log.Warn("trending update failed", zap.Error(err))
	}
	httpx.OK(c, http.StatusOK, gin.H{}, "unliked")
}

type createCommentRequest struct {
	Content         string `json:"content"`
	ParentCommentID string `json:"parentCommentId,omitempty"`
}

// CreateComment handles POST /api/posts/{id}/comments.
func (s *Service) CreateComment(c *gin.Context) {
	postID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		httpx.Fail(c, http.StatusBadRequest, "invalid post id")
		return
	}
	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Content == "" {
		httpx.Fail(c, http.StatusBadRequest, "content is required")
		return
	}

	comment := &store.Comment{PostID: postID, AuthorID: httpx.UserID(c), Content: req.Content}
	if req.ParentCommentID != "" {
		if parentID, err := primitive.ObjectIDFromHex(req.ParentCommentID); err == nil {
			if isReply, _ := s.store.Comments().IsReply(c.Request.Context(), parentID); isReply {
				// keep nesting one level deep: a reply to a reply is stored
				// without a parent, as a top-level comment
			} else {
				comment.ParentCommentID = &parentID
			}
		}
	}

	if _, err := s.store.Comments().Create(c.Request.Context(), comment); err != nil {
		httpx.Fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.Posts().IncrementCounter(c.Request.Context(), postID, "comments", 1); err != nil {
		s.log.Warn("increment comment counter failed", zap.Error(err))
	}
	s.cache.InvalidatePost(c.Request.Context(), postID.Hex())
	if err := s.feed.TrendingDeltaForComment(c.Request.Context(), postID.Hex()); err != nil {
		s.log.Warn("trending update failed", zap.Error(err))
	}

	if post, err := s.store.Posts().GetByID(c.Request.Context(), postID); err == nil && post.AuthorID != comment.AuthorID {
		s.enqueueNotification(c.Request.Context(), store.Notification{
			RecipientID: post.AuthorID, Type: store.NotifyComment, ActorID: comment.AuthorID,
			Message: comment.AuthorID + " commented on your post",
			ActionURL: "/posts/" + postID.Hex() + "#comment-" + comment.ID.Hex(),
			Priority: store.PriorityHigh,
		})
	}

	httpx.OK(c, http.StatusCreated, gin.H{"comment": comment}, "")
}

// enqueueNotification submits a single-notification creation job to the
// notification worker, decoupling the social handlers from the plane's
// Redis/document writes.
func (s *Service) enqueueNotification(ctx context.Context, n store.Notification) {
	jobID := "notify-" + string(n.Type) + "-" + n.RecipientID + "-" + time.Now().Format(time.RFC3339Nano)
	priority := 0
	if n.Priority == store.PriorityHigh {
		priority = 1
	}
	if _, err := s.notifyQ.Enqueue(ctx, n, queue.EnqueueOptions{JobID: jobID, Priority: priority, Attempts: 3}); err != nil {
		s.log.Warn("notification enqueue failed", zap.Error(err))
	}
}
