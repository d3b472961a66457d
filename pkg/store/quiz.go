package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Difficulty enumerates spec.md §3's Quiz.difficulty values.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
	DifficultyExpert Difficulty = "Expert"
	DifficultyMixed  Difficulty = "Mixed"
)

// QuestionType enumerates spec.md §3's Question.type values.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple-choice"
	QuestionTrueFalse      QuestionType = "true-false"
	QuestionDescriptive    QuestionType = "descriptive"
	QuestionFillInBlank    QuestionType = "fill-in-blank"
)

// GenerationMethod enumerates spec.md §3's generation metadata method.
type GenerationMethod string

const (
	MethodManual     GenerationMethod = "manual"
	MethodAITopic    GenerationMethod = "ai-topic"
	MethodAIFile     GenerationMethod = "ai-file"
	MethodAIEnhanced GenerationMethod = "ai-enhanced"
)

// Question is one item of a Quiz, per spec.md §3.
type Question struct {
	Prompt          string       `bson:"prompt" json:"prompt"`
	Type            QuestionType `bson:"type" json:"type"`
	Options         []string     `bson:"options,omitempty" json:"options,omitempty"`
	CorrectAnswer   string       `bson:"correctAnswer" json:"correctAnswer"`
	Explanation     string       `bson:"explanation,omitempty" json:"explanation,omitempty"`
	Points          int          `bson:"points" json:"points"`
	TimeLimitSeconds int         `bson:"timeLimitSeconds" json:"timeLimitSeconds"`
	Difficulty      Difficulty   `bson:"difficulty" json:"difficulty"`
	Tags            []string     `bson:"tags,omitempty" json:"tags,omitempty"`
	Image           string       `bson:"image,omitempty" json:"image,omitempty"`
}

// Validate enforces spec.md §3's per-question invariants.
func (q Question) Validate() error {
	if q.Points < 1 {
		return errors.New("question: points must be >= 1")
	}
	if q.TimeLimitSeconds < 5 {
		return errors.New("question: timeLimitSeconds must be >= 5")
	}
	if q.Type == QuestionMultipleChoice {
		if len(q.Options) < 2 {
			return errors.New("question: multiple-choice requires >= 2 options")
		}
		found := false
		for _, opt := range q.Options {
			if opt == q.CorrectAnswer {
				found = true
				break
			}
		}
		if !found {
			return errors.New("question: correctAnswer must equal one option")
		}
	}
	return nil
}

// GenerationMetadata is spec.md §3's Quiz.generationMetadata.
type GenerationMetadata struct {
	Method             GenerationMethod `bson:"method" json:"method"`
	SourceHash         string           `bson:"sourceHash,omitempty" json:"sourceHash,omitempty"`
	ModelLabel         string           `bson:"modelLabel,omitempty" json:"modelLabel,omitempty"`
	WasAdaptive        bool             `bson:"wasAdaptive" json:"wasAdaptive"`
	OriginalDifficulty Difficulty       `bson:"originalDifficulty,omitempty" json:"originalDifficulty,omitempty"`
	AdaptedDifficulty  Difficulty       `bson:"adaptedDifficulty,omitempty" json:"adaptedDifficulty,omitempty"`
	ElapsedMs          int64            `bson:"elapsedMs" json:"elapsedMs"`
	CreatedAt          time.Time        `bson:"createdAt" json:"createdAt"`
}

// Stats is spec.md §3's Quiz.stats aggregate.
type Stats struct {
	TimesTaken    int       `bson:"timesTaken" json:"timesTaken"`
	AverageScore  float64   `bson:"averageScore" json:"averageScore"`
	AverageTime   float64   `bson:"averageTime" json:"averageTime"`
	LastTaken     time.Time `bson:"lastTaken,omitempty" json:"lastTaken,omitempty"`
}

// Quiz is spec.md §3's Quiz entity.
type Quiz struct {
	ID                primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Title             string              `bson:"title" json:"title"`
	Description       string              `bson:"description,omitempty" json:"description,omitempty"`
	Questions         []Question          `bson:"questions" json:"questions"`
	Difficulty        Difficulty          `bson:"difficulty" json:"difficulty"`
	Category          string              `bson:"category,omitempty" json:"category,omitempty"`
	Tags              []string            `bson:"tags,omitempty" json:"tags,omitempty"`
	OwnerID           string              `bson:"ownerId" json:"ownerId"`
	IsPublic          bool                `bson:"isPublic" json:"isPublic"`
	Stats             Stats               `bson:"stats" json:"stats"`
	GenerationMetadata GenerationMetadata `bson:"generationMetadata" json:"generationMetadata"`
	TotalPoints       int                 `bson:"totalPoints" json:"totalPoints"`
	EstimatedMinutes  int                 `bson:"estimatedMinutes" json:"estimatedMinutes"`
	Version           int                 `bson:"version" json:"version"`
	ReportCount       int                 `bson:"reportCount" json:"reportCount"`
	CreatedAt         time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// Recompute enforces spec.md §3's recomputed-on-mutation invariants:
// totalPoints = Σ points, estimatedMinutes = ceil(Σ timeLimit / 60).
func (q *Quiz) Recompute() {
	var points, seconds int
	for _, question := range q.Questions {
		points += question.Points
		seconds += question.TimeLimitSeconds
	}
	q.TotalPoints = points
	q.EstimatedMinutes = int(math.Ceil(float64(seconds) / 60.0))
}

// Validate enforces spec.md §3's quiz-level invariants.
func (q *Quiz) Validate() error {
	if len(q.Questions) < 1 {
		return errors.New("quiz: must contain at least one question")
	}
	for i, question := range q.Questions {
		if err := question.Validate(); err != nil {
			return fmt.Errorf("quiz: question %d: %w", i, err)
		}
	}
	return nil
}

// StudentView strips answer-revealing fields for the take-quiz flow
// (spec.md §6: "For taking, a student view omits correctAnswer and
// explanation fields").
func (q Quiz) StudentView() Quiz {
	clone := q
	clone.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		sanitized := question
		sanitized.CorrectAnswer = ""
		sanitized.Explanation = ""
		clone.Questions[i] = sanitized
	}
	return clone
}

var ErrQuizNotFound = errors.New("quiz not found")

// Quizzes exposes the quizzes collection.
func (s *Store) Quizzes() *QuizRepo { return &QuizRepo{col: s.collection("quizzes")} }

// QuizRepo is the quizzes collection accessor.
type QuizRepo struct{ col *mongo.Collection }

// Create inserts a new quiz, stamping CreatedAt/UpdatedAt and recomputing
// derived totals.
func (r *QuizRepo) Create(ctx context.Context, q *Quiz) (primitive.ObjectID, error) {
	q.Recompute()
	if err := q.Validate(); err != nil {
		return primitive.NilObjectID, err
	}
	now := time.Now()
	q.CreatedAt, q.UpdatedAt = now, now
	q.Version = 1
	res, err := r.col.InsertOne(ctx, q)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("quiz create: %w", err)
	}
	id := res.InsertedID.(primitive.ObjectID)
	q.ID = id
	return id, nil
}

// GetByID returns a quiz by id.
func (r *QuizRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*Quiz, error) {
	var q Quiz
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&q)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrQuizNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("quiz get: %w", err)
	}
	return &q, nil
}

// Delete hard-deletes a quiz (spec.md §3: "deletion is hard, no
// soft-delete"); results referencing it from another service remain
// dangling and must be tolerated by readers there, not here.
func (r *QuizRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// ListFilter parametrizes the list/search endpoint of spec.md §6.
type ListFilter struct {
	Search     string
	Difficulty Difficulty
	Category   string
	Page       int
	Limit      int
	SortBy     string
	SortOrder  int // 1 asc, -1 desc
}

// List returns a page of quizzes matching filter plus the total count.
func (r *QuizRepo) List(ctx context.Context, f ListFilter) ([]Quiz, int64, error) {
	filter := bson.M{}
	if f.Search != "" {
		filter["$or"] = bson.A{
			bson.M{"title": bson.M{"$regex": f.Search, "$options": "i"}},
			bson.M{"tags": bson.M{"$regex": f.Search, "$options": "i"}},
		}
	}
	if f.Difficulty != "" {
		filter["difficulty"] = f.Difficulty
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}

	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}
	sortBy := f.SortBy
	if sortBy == "" {
		sortBy = "createdAt"
	}
	sortOrder := f.SortOrder
	if sortOrder == 0 {
		sortOrder = -1
	}

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("quiz count: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: sortBy, Value: sortOrder}}).
		SetSkip(int64((f.Page - 1) * f.Limit)).
		SetLimit(int64(f.Limit))

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("quiz list: %w", err)
	}
	defer cur.Close(ctx)

	var quizzes []Quiz
	if err := cur.All(ctx, &quizzes); err != nil {
		return nil, 0, fmt.Errorf("quiz list decode: %w", err)
	}
	return quizzes, total, nil
}

// IncrementStatsOnAttempt updates aggregate stats after a quiz is taken.
// This is invoked by the (out-of-scope) results service via an event, kept
// here since the mutation itself belongs to the quiz document's owner.
func (r *QuizRepo) IncrementStatsOnAttempt(ctx context.Context, id primitive.ObjectID, score, elapsedSeconds float64) error {
	quiz, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	n := float64(quiz.Stats.TimesTaken)
	newAvgScore := (quiz.Stats.AverageScore*n + score) / (n + 1)
	newAvgTime := (quiz.Stats.AverageTime*n + elapsedSeconds) / (n + 1)

	_, err = r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"stats.timesTaken":   quiz.Stats.TimesTaken + 1,
		"stats.averageScore": newAvgScore,
		"stats.averageTime":  newAvgTime,
		"stats.lastTaken":    time.Now(),
		"updatedAt":          time.Now(),
	}})
	return err
}
