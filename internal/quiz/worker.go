package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cognitohub/platform/pkg/aiclient"
	"github.com/cognitohub/platform/pkg/cache"
	"github.com/cognitohub/platform/pkg/queue"
	"github.com/cognitohub/platform/pkg/store"
)

// Worker runs generation jobs enqueued by the Orchestrator, per spec.md
// §4.D's staged worker algorithm.
type Worker struct {
	cache      *cache.Cache
	store      *store.Store
	ai         *aiclient.Client
	modelLabel string
	log        *zap.Logger
}

// NewWorker builds a Worker. modelLabel is stamped onto every generated
// quiz's GenerationMetadata, per spec.md §4.D stage 4.
func NewWorker(c *cache.Cache, s *store.Store, ai *aiclient.Client, modelLabel string, log *zap.Logger) *Worker {
	return &Worker{cache: c, store: s, ai: ai, modelLabel: modelLabel, log: log}
}

// generationResult is the job ReturnValue shape, per spec.md §4.D stage 6.
type generationResult struct {
	QuizID         string          `json:"quizId"`
	Quiz           *store.Quiz     `json:"quiz"`
	FromCache      bool            `json:"fromCache"`
	AdaptiveInfo   json.RawMessage `json:"adaptiveInfo,omitempty"`
	GenerationTime int64           `json:"generationTime"`
}

// Handle implements queue.Handler.
func (w *Worker) Handle(ctx context.Context, job *queue.Job, progress func(int)) (interface{}, error) {
	var payload JobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, queue.Permanent(fmt.Errorf("quiz worker: decode payload: %w", err))
	}

	progress(10)

	var adaptive *aiclient.AdaptiveContext
	if payload.UseAdaptive {
		if raw, ok := w.cache.GetAdaptive(ctx, payload.UserID); ok {
			var ac aiclient.AdaptiveContext
			if json.Unmarshal(raw, &ac) == nil {
				adaptive = &ac
			}
		}
	}

	var prompt, cacheKey string
	var cacheTTL = cache.TopicQuizTTL()
	if payload.Method == "ai-topic" {
		prompt = aiclient.TopicPrompt(payload.Topic, payload.NumQuestions, payload.Difficulty, adaptive)
		cacheKey = cache.TopicQuizKey(payload.Topic, payload.NumQuestions, payload.Difficulty, payload.UseAdaptive)
	} else {
		prompt = aiclient.FilePrompt(payload.ExtractedText, payload.NumQuestions, payload.Difficulty, adaptive)
		cacheKey = cache.FileQuizKey(payload.ContentHash, payload.NumQuestions, payload.Difficulty)
		cacheTTL = cache.FileQuizTTL()
	}

	progress(20)

	fromCache := false
	var questionsRaw json.RawMessage
	var adaptiveInfoRaw json.RawMessage
	var elapsedMs int64

	if gq, ok := w.cache.GetGeneratedQuiz(ctx, cacheKey); ok {
		questionsRaw = gq.Questions
		adaptiveInfoRaw = gq.AdaptiveInfo
		elapsedMs = gq.GenerationTime
		fromCache = true
		progress(60)
	} else {
		result, err := w.ai.GenerateContent(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("quiz worker: ai call: %w", err)
		}
		parsed, n, perr := aiclient.ParseQuestions(result.Text)
		if perr != nil || n == 0 {
			return nil, queue.Permanent(fmt.Errorf("quiz worker: %w", aiclient.ErrBadQuestions))
		}
		questionsRaw = parsed
		elapsedMs = result.ElapsedMs
		if adaptive != nil {
			adaptiveInfoRaw, _ = json.Marshal(adaptive)
		}
		w.cache.SetGeneratedQuiz(ctx, cacheKey, &cache.GeneratedQuiz{
			Questions: questionsRaw, AdaptiveInfo: adaptiveInfoRaw, GenerationTime: elapsedMs,
		}, cacheTTL)
		progress(60)
	}

	var questions []store.Question
	if err := json.Unmarshal(questionsRaw, &questions); err != nil {
		return nil, queue.Permanent(fmt.Errorf("quiz worker: decode questions: %w", err))
	}

	difficulty := store.Difficulty(payload.Difficulty)
	meta := store.GenerationMetadata{
		Method:      store.GenerationMethod(payload.Method),
		SourceHash:  payload.ContentHash,
		ModelLabel:  w.modelLabel,
		WasAdaptive: adaptive != nil,
		ElapsedMs:   elapsedMs,
		CreatedAt:   time.Now(),
	}
	if adaptive != nil {
		meta.OriginalDifficulty = difficulty
		meta.AdaptedDifficulty = adaptedDifficulty(difficulty, adaptive)
		difficulty = meta.AdaptedDifficulty
	}

	title := payload.Topic
	if title == "" {
		title = "Generated Quiz"
	}
	quiz := &store.Quiz{
		Title:              title,
		Questions:          questions,
		Difficulty:         difficulty,
		OwnerID:            payload.UserID,
		IsPublic:           payload.IsPublic,
		GenerationMetadata: meta,
	}

	if _, err := w.store.Quizzes().Create(ctx, quiz); err != nil {
		return nil, fmt.Errorf("quiz worker: persist quiz: %w", err)
	}
	progress(90)

	if _, err := w.cache.IncrementQuota(ctx, payload.UserID, time.Now().UTC().Format("2006-01-02")); err != nil {
		w.log.Warn("quota increment failed", zap.String("user", payload.UserID), zap.Error(err))
	}
	progress(100)

	return generationResult{
		QuizID: quiz.ID.Hex(), Quiz: quiz, FromCache: fromCache,
		AdaptiveInfo: adaptiveInfoRaw, GenerationTime: elapsedMs,
	}, nil
}

// adaptedDifficulty nudges difficulty toward a learner's trend, per
// spec.md §4.D: "adaptive suggestion conflicts with caller difficulty
// → store both ... chosen difficulty is the adapted one."
func adaptedDifficulty(requested store.Difficulty, ctx *aiclient.AdaptiveContext) store.Difficulty {
	ladder := []store.Difficulty{store.DifficultyEasy, store.DifficultyMedium, store.DifficultyHard, store.DifficultyExpert}
	idx := 1
	for i, d := range ladder {
		if d == requested {
			idx = i
		}
	}
	switch {
	case ctx.AvgScore >= 85 && ctx.Trend == "up" && idx < len(ladder)-1:
		idx++
	case ctx.AvgScore < 50 && idx > 0:
		idx--
	}
	return ladder[idx]
}
