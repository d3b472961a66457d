package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PostType enumerates spec.md §3's Post.type values.
type PostType string

const (
	PostText          PostType = "text"
	PostImage         PostType = "image"
	PostAchievement   PostType = "achievement"
	PostQuizResult    PostType = "quiz-result"
	PostChallenge     PostType = "challenge"
)

// PostVisibility enumerates spec.md §3's Post.visibility values.
type PostVisibility string

const (
	VisibilityPublic    PostVisibility = "public"
	VisibilityFollowers PostVisibility = "followers"
	VisibilityPrivate   PostVisibility = "private"
)

// PostCounters tracks spec.md §3's atomic engagement counters. Mutated
// only via IncrementCounter below (a signed delta), never by a blind
// document replace, so concurrent likes/comments/shares never clobber
// one another.
type PostCounters struct {
	Likes    int64 `bson:"likes" json:"likes"`
	Comments int64 `bson:"comments" json:"comments"`
	Shares   int64 `bson:"shares" json:"shares"`
}

// Post is spec.md §3's Post entity, grounded on the Caqil-vyrall
// PostRepository shape (denormalized author fields, lowercase hashtags,
// soft-delete flag, counters as a nested document mutated only via
// atomic pipeline updates).
type Post struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	AuthorID         string             `bson:"authorId" json:"authorId"`
	AuthorDisplay    string             `bson:"authorDisplay" json:"authorDisplay"`
	AuthorAvatar     string             `bson:"authorAvatar,omitempty" json:"authorAvatar,omitempty"`
	Content          string             `bson:"content" json:"content"`
	Images           []string           `bson:"images,omitempty" json:"images,omitempty"`
	Type             PostType           `bson:"type" json:"type"`
	RelatedQuiz      string             `bson:"relatedQuiz,omitempty" json:"relatedQuiz,omitempty"`
	RelatedAchievement string           `bson:"relatedAchievement,omitempty" json:"relatedAchievement,omitempty"`
	Visibility       PostVisibility     `bson:"visibility" json:"visibility"`
	Counters         PostCounters       `bson:"counters" json:"counters"`
	Hashtags         []string           `bson:"hashtags,omitempty" json:"hashtags,omitempty"`
	Mentions         []string           `bson:"mentions,omitempty" json:"mentions,omitempty"`
	IsDeleted        bool               `bson:"isDeleted" json:"isDeleted"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	ExpiresAt        time.Time          `bson:"expiresAt,omitempty" json:"-"`
}

const maxPostContentLen = 5000

// Validate enforces spec.md §3's Post content-length invariant.
func (p Post) Validate() error {
	if len(p.Content) == 0 || len(p.Content) > maxPostContentLen {
		return fmt.Errorf("post: content must be 1..%d chars", maxPostContentLen)
	}
	return nil
}

// ExtractHashtags lowercases every #tag token found in content, matching
// the denormalization spec.md §3 requires at write time.
func ExtractHashtags(content string) []string {
	var tags []string
	for _, word := range strings.Fields(content) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9' || r == '#')
		})
		if strings.HasPrefix(word, "#") && len(word) > 1 {
			tags = append(tags, strings.ToLower(word[1:]))
		}
	}
	return tags
}

var ErrPostNotFound = errors.New("post not found")

// Posts exposes the posts collection.
func (s *Store) Posts() *PostRepo { return &PostRepo{col: s.collection("posts")} }

// PostRepo is the posts collection accessor.
type PostRepo struct{ col *mongo.Collection }

// postTTL is how long a soft-deleted post survives before the store's
// TTL index purges it (spec.md §3).
const postTTL = 30 * 24 * time.Hour

// Create inserts a post. ExpiresAt stays zero until the post is
// soft-deleted; the TTL index is sparse so live posts are never swept.
func (r *PostRepo) Create(ctx context.Context, p *Post) (primitive.ObjectID, error) {
	if err := p.Validate(); err != nil {
		return primitive.NilObjectID, err
	}
	p.CreatedAt = time.Now()
	p.Hashtags = ExtractHashtags(p.Content)
	res, err := r.col.InsertOne(ctx, p)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("post create: %w", err)
	}
	id := res.InsertedID.(primitive.ObjectID)
	p.ID = id
	return id, nil
}

// GetByID returns a post, including soft-deleted ones (callers filter).
func (r *PostRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*Post, error) {
	var p Post
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("post get: %w", err)
	}
	return &p, nil
}

// GetMany batch-resolves posts for feed rendering, preserving no
// particular order (callers reorder by the feed's own scores).
func (r *PostRepo) GetMany(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*Post, error) {
	out := make(map[primitive.ObjectID]*Post, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("post get many: %w", err)
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var p Post
		if err := cur.Decode(&p); err != nil {
			continue
		}
		out[p.ID] = &p
	}
	return out, nil
}

// IncrementCounter applies a signed delta to one counter field
// atomically, per spec.md §5's "counter mutations are individually
// atomic" guarantee. The update is an aggregation pipeline rather than
// a plain $inc so the result is clamped at zero in the same atomic
// write, per spec.md §3: "counters never go negative (clamped at 0)."
func (r *PostRepo) IncrementCounter(ctx context.Context, id primitive.ObjectID, field string, delta int64) error {
	fieldPath := "$counters." + field
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "counters." + field, Value: bson.D{
				{Key: "$max", Value: bson.A{0, bson.D{{Key: "$add", Value: bson.A{fieldPath, delta}}}}},
			}},
		}}},
	}
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, pipeline)
	return err
}

// SoftDelete marks a post deleted and stamps its TTL expiry 30 days
// out; the store's sparse TTL index on expiresAt performs the purge.
func (r *PostRepo) SoftDelete(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"isDeleted": true,
		"expiresAt": time.Now().Add(postTTL),
	}})
	return err
}

// Trending returns the `limit` most-liked posts by (likes + 2*comments +
// 3*shares), as a document-store fallback for the cache-authoritative
// trending sorted set described in spec.md §4.E.
func (r *PostRepo) Trending(ctx context.Context, limit int64) ([]Post, error) {
	pipeline := bson.A{
		bson.M{"$match": bson.M{"isDeleted": false}},
		bson.M{"$addFields": bson.M{
			"score": bson.M{"$add": bson.A{
				"$counters.likes",
				bson.M{"$multiply": bson.A{"$counters.comments", 2}},
				bson.M{"$multiply": bson.A{"$counters.shares", 3}},
			}},
		}},
		bson.M{"$sort": bson.M{"score": -1}},
		bson.M{"$limit": limit},
	}
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("post trending: %w", err)
	}
	defer cur.Close(ctx)
	var posts []Post
	if err := cur.All(ctx, &posts); err != nil {
		return nil, fmt.Errorf("post trending decode: %w", err)
	}
	return posts, nil
}

// Comment is spec.md §3's Comment entity. Nested one level deep: a
// comment with a ParentCommentID is a reply and is not itself eligible
// to be replied to by this model.
type Comment struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	PostID          primitive.ObjectID  `bson:"postId" json:"postId"`
	AuthorID        string              `bson:"authorId" json:"authorId"`
	Content         string              `bson:"content" json:"content"`
	ParentCommentID *primitive.ObjectID `bson:"parentCommentId,omitempty" json:"parentCommentId,omitempty"`
	Likes           int64               `bson:"likes" json:"likes"`
	IsDeleted       bool                `bson:"isDeleted" json:"isDeleted"`
	CreatedAt       time.Time           `bson:"createdAt" json:"createdAt"`
}

const maxCommentContentLen = 2000

// Validate enforces spec.md §3's Comment content-length invariant and
// the one-level-deep nesting rule.
func (c Comment) Validate() error {
	if len(c.Content) == 0 || len(c.Content) > maxCommentContentLen {
		return fmt.Errorf("comment: content must be 1..%d chars", maxCommentContentLen)
	}
	return nil
}

// Comments exposes the comments collection.
func (s *Store) Comments() *CommentRepo { return &CommentRepo{col: s.collection("comments")} }

// CommentRepo is the comments collection accessor.
type CommentRepo struct{ col *mongo.Collection }

// IsReply reports whether parent is itself a reply, used by
// social.Service.CreateComment to refuse building a third nesting level.
func (r *CommentRepo) IsReply(ctx context.Context, parentID primitive.ObjectID) (bool, error) {
	var parent Comment
	err := r.col.FindOne(ctx, bson.M{"_id": parentID}).Decode(&parent)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return parent.ParentCommentID != nil, nil
}

// Create validates and inserts a comment with its ParentCommentID as
// given; it does not check the parent's own nesting level.
func (r *CommentRepo) Create(ctx context.Context, c *Comment) (primitive.ObjectID, error) {
	if err := c.Validate(); err != nil {
		return primitive.NilObjectID, err
	}
	c.CreatedAt = time.Now()
	res, err := r.col.InsertOne(ctx, c)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("comment create: %w", err)
	}
	id := res.InsertedID.(primitive.ObjectID)
	c.ID = id
	return id, nil
}

// ListByPost returns top-level comments and their direct replies for a
// post, newest-first.
func (r *CommentRepo) ListByPost(ctx context.Context, postID primitive.ObjectID, page, limit int64) ([]Comment, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip((page - 1) * limit).SetLimit(limit)
	cur, err := r.col.Find(ctx, bson.M{"postId": postID, "isDeleted": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("comment list: %w", err)
	}
	defer cur.Close(ctx)
	var comments []Comment
	if err := cur.All(ctx, &comments); err != nil {
		return nil, fmt.Errorf("comment list decode: %w", err)
	}
	return comments, nil
}

// IncrementLikes atomically adjusts a comment's like counter, clamped
// at zero per spec.md §3, the same way PostRepo.IncrementCounter is.
func (r *CommentRepo) IncrementLikes(ctx context.Context, id primitive.ObjectID, delta int64) error {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "likes", Value: bson.D{
				{Key: "$max", Value: bson.A{0, bson.D{{Key: "$add", Value: bson.A{"$likes", delta}}}}},
			}},
		}}},
	}
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, pipeline)
	return err
}

// SoftDelete marks a comment deleted.
func (r *CommentRepo) SoftDelete(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"isDeleted": true}})
	return err
}

// LikeTargetType enumerates the entities a Like can attach to.
type LikeTargetType string

const (
	LikeTargetPost    LikeTargetType = "post"
	LikeTargetComment LikeTargetType = "comment"
)

// Like is spec.md §3's Like entity: (userId, targetType, targetId) is
// unique, enforced by a unique compound index on the collection.
type Like struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID     string             `bson:"userId" json:"userId"`
	TargetType LikeTargetType     `bson:"targetType" json:"targetType"`
	TargetID   primitive.ObjectID `bson:"targetId" json:"targetId"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
}

var ErrAlreadyLiked = errors.New("like: already exists")
var ErrLikeNotFound = errors.New("like: not found")

// Likes exposes the likes collection.
func (s *Store) Likes() *LikeRepo { return &LikeRepo{col: s.collection("likes")} }

// LikeRepo is the likes collection accessor.
type LikeRepo struct{ col *mongo.Collection }

// Create inserts a like, relying on a unique index over
// (userId,targetType,targetId) to reject duplicates; callers translate
// the duplicate-key error to ErrAlreadyLiked.
func (r *LikeRepo) Create(ctx context.Context, l *Like) error {
	l.CreatedAt = time.Now()
	_, err := r.col.InsertOne(ctx, l)
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyLiked
	}
	return err
}

// Delete removes a like and reports whether one existed, so the caller
// can decide whether to decrement the target counter.
func (r *LikeRepo) Delete(ctx context.Context, userID string, targetType LikeTargetType, targetID primitive.ObjectID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"userId": userID, "targetType": targetType, "targetId": targetID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrLikeNotFound
	}
	return nil
}

// Exists reports whether userID has already liked the target.
func (r *LikeRepo) Exists(ctx context.Context, userID string, targetType LikeTargetType, targetID primitive.ObjectID) (bool, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"userId": userID, "targetType": targetType, "targetId": targetID})
	return n > 0, err
}

// Follow is spec.md §3's Follow entity: (followerId, followingId) is
// unique, followerId != followingId enforced by FollowRepo.Create.
type Follow struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FollowerID  string             `bson:"followerId" json:"followerId"`
	FollowingID string             `bson:"followingId" json:"followingId"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
}

var ErrSelfFollow = errors.New("follow: cannot follow self")
var ErrAlreadyFollowing = errors.New("follow: already exists")
var ErrFollowNotFound = errors.New("follow: not found")

// Follows exposes the follows collection. This is the durable record;
// the hot-path membership check lives in the feed store's Redis sets
// (spec.md §4.E), kept consistent by writing both on every mutation.
func (s *Store) Follows() *FollowRepo { return &FollowRepo{col: s.collection("follows")} }

// FollowRepo is the follows collection accessor.
type FollowRepo struct{ col *mongo.Collection }

// Create inserts a follow edge.
func (r *FollowRepo) Create(ctx context.Context, followerID, followingID string) error {
	if followerID == followingID {
		return ErrSelfFollow
	}
	_, err := r.col.InsertOne(ctx, &Follow{FollowerID: followerID, FollowingID: followingID, CreatedAt: time.Now()})
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyFollowing
	}
	return err
}

// Delete removes a follow edge.
func (r *FollowRepo) Delete(ctx context.Context, followerID, followingID string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"followerId": followerID, "followingId": followingID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrFollowNotFound
	}
	return nil
}

// Followers returns every id following userID. Used to rebuild the
// Redis follower set after a cache miss or eviction.
func (r *FollowRepo) Followers(ctx context.Context, userID string) ([]string, error) {
	cur, err := r.col.Find(ctx, bson.M{"followingId": userID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var ids []string
	for cur.Next(ctx) {
		var f Follow
		if err := cur.Decode(&f); err == nil {
			ids = append(ids, f.FollowerID)
		}
	}
	return ids, nil
}

// NotificationType enumerates spec.md §3's Notification.type values.
type NotificationType string

const (
	NotifyLike            NotificationType = "like"
	NotifyComment         NotificationType = "comment"
	NotifyFollow          NotificationType = "follow"
	NotifyMention         NotificationType = "mention"
	NotifyAchievement     NotificationType = "achievement"
	NotifyLevelUp         NotificationType = "level-up"
	NotifyStreakMilestone NotificationType = "streak-milestone"
	NotifySystem          NotificationType = "system"
)

// NotificationPriority enumerates spec.md §3's Notification.priority values.
type NotificationPriority string

const (
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
)

// Notification is spec.md §3's Notification entity. The document store
// row is the durable history; the hot unread-count and capped-list view
// live in Redis (spec.md §4.G) and are written alongside this insert.
type Notification struct {
	ID          primitive.ObjectID    `bson:"_id,omitempty" json:"id"`
	RecipientID string                `bson:"recipientId" json:"recipientId"`
	Type        NotificationType      `bson:"type" json:"type"`
	ActorID     string                `bson:"actorId,omitempty" json:"actorId,omitempty"`
	ActorName   string                `bson:"actorName,omitempty" json:"actorName,omitempty"`
	Message     string                `bson:"message" json:"message"`
	ActionURL   string                `bson:"actionUrl,omitempty" json:"actionUrl,omitempty"`
	IsRead      bool                  `bson:"isRead" json:"isRead"`
	Priority    NotificationPriority  `bson:"priority" json:"priority"`
	CreatedAt   time.Time             `bson:"createdAt" json:"createdAt"`
}

// Notifications exposes the notifications collection.
func (s *Store) Notifications() *NotificationRepo {
	return &NotificationRepo{col: s.collection("notifications")}
}

// NotificationRepo is the notifications collection accessor.
type NotificationRepo struct{ col *mongo.Collection }

// Create inserts the durable notification record.
func (r *NotificationRepo) Create(ctx context.Context, n *Notification) (primitive.ObjectID, error) {
	n.CreatedAt = time.Now()
	res, err := r.col.InsertOne(ctx, n)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("notification create: %w", err)
	}
	id := res.InsertedID.(primitive.ObjectID)
	n.ID = id
	return id, nil
}

// CreateMany bulk-inserts a batch of notifications, used by the
// notifications worker's batch path (spec.md §4.G: "same operations
// pipelined for up to 50 recipients per round trip").
func (r *NotificationRepo) CreateMany(ctx context.Context, ns []*Notification) error {
	if len(ns) == 0 {
		return nil
	}
	docs := make([]interface{}, len(ns))
	now := time.Now()
	for i, n := range ns {
		n.CreatedAt = now
		docs[i] = n
	}
	res, err := r.col.InsertMany(ctx, docs)
	if err != nil {
		return fmt.Errorf("notification create-many: %w", err)
	}
	for i, id := range res.InsertedIDs {
		if oid, ok := id.(primitive.ObjectID); ok {
			ns[i].ID = oid
		}
	}
	return nil
}

// MarkRead flips isRead true and reports whether this call performed
// the transition (false->true) or found the notification already read,
// so callers can decrement the unread counter exactly once per spec.md
// §4.G: "only the first transition decrements the counter."
func (r *NotificationRepo) MarkRead(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id, "isRead": false}, bson.M{"$set": bson.M{"isRead": true}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// MarkAllRead flips isRead true for every notification of a recipient.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, recipientID string) error {
	_, err := r.col.UpdateMany(ctx, bson.M{"recipientId": recipientID, "isRead": false}, bson.M{"$set": bson.M{"isRead": true}})
	return err
}

// ListByRecipient returns a recipient's notification history, newest first.
func (r *NotificationRepo) ListByRecipient(ctx context.Context, recipientID string, page, limit int64) ([]Notification, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip((page - 1) * limit).SetLimit(limit)
	cur, err := r.col.Find(ctx, bson.M{"recipientId": recipientID}, opts)
	if err != nil {
		return nil, fmt.Errorf("notification list: %w", err)
	}
	defer cur.Close(ctx)
	var notifications []Notification
	if err := cur.All(ctx, &notifications); err != nil {
		return nil, fmt.Errorf("notification list decode: %w", err)
	}
	return notifications, nil
}
