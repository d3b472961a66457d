// Package events defines the inter-service event envelope published on
// the NATS bus (pkg/messaging), adapted from the teacher's
// shared/events/types.go: the same BaseEvent/Metadata envelope shape,
// with this platform's event types in place of tradeengine's
// order/position/trade events.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type subjects published on the bus.
const (
	TypeQuizGenerationQueued    = "quiz.generation.queued"
	TypeQuizGenerationCompleted = "quiz.generation.completed"
	TypeQuizGenerationFailed    = "quiz.generation.failed"

	TypePostCreated   = "post.created"
	TypePostDeleted   = "post.deleted"
	TypeCommentCreated = "comment.created"
	TypeLikeCreated   = "like.created"
	TypeLikeRemoved   = "like.removed"
	TypeFollowCreated = "follow.created"
	TypeFollowRemoved = "follow.removed"

	TypeNotificationCreated = "notification.created"

	TypeAchievementUnlocked = "achievement.unlocked"
	TypeLevelUp             = "level.up"
	TypeStreakMilestone     = "streak.milestone"
)

// Metadata carries cross-cutting envelope fields every event shares.
type Metadata struct {
	CorrelationID string `json:"correlationId"`
	CausationID   string `json:"causationId,omitempty"`
	UserID        string `json:"userId,omitempty"`
	Source        string `json:"source"`
}

// WithCorrelation returns a copy of m with CorrelationID set.
func (m Metadata) WithCorrelation(id string) Metadata {
	m.CorrelationID = id
	return m
}

// BaseEvent is the envelope every published message shares; Data holds
// the type-specific payload, decoded via ParseData.
type BaseEvent struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	Metadata  Metadata        `json:"metadata"`
}

// New builds a BaseEvent, marshaling data into the envelope.
func New(eventType string, data interface{}, metadata Metadata) (*BaseEvent, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &BaseEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      raw,
		Metadata:  metadata,
	}, nil
}

// ParseData decodes an event's Data into T.
func ParseData[T any](e *BaseEvent) (*T, error) {
	var data T
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// QuizGenerationEvent is published when a generation job finishes or fails.
type QuizGenerationEvent struct {
	JobID  string `json:"jobId"`
	UserID string `json:"userId"`
	QuizID string `json:"quizId,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// PostEvent is published on post lifecycle changes.
type PostEvent struct {
	PostID      string   `json:"postId"`
	AuthorID    string   `json:"authorId"`
	FollowerIDs []string `json:"followerIds,omitempty"`
	Mentions    []string `json:"mentions,omitempty"`
}

// EngagementEvent is published on comment/like/follow mutations.
type EngagementEvent struct {
	ActorID  string `json:"actorId"`
	TargetID string `json:"targetId"`
	PostID   string `json:"postId,omitempty"`
	CommentID string `json:"commentId,omitempty"`
}

// InboundEvent is the payload of the service-to-service event ingress
// (spec.md §6: "POST /api/events/{achievement-unlocked|level-up|streak-milestone}").
type InboundEvent struct {
	UserID  string `json:"userId"`
	Title   string `json:"title,omitempty"`
	Level   int    `json:"level,omitempty"`
	Streak  int    `json:"streak,omitempty"`
	RefID   string `json:"refId,omitempty"`
}
