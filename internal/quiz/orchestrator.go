// Package quiz is the Async Quiz Generation Engine of spec.md §4.D:
// the HTTP orchestrator that enqueues generation jobs, and the worker
// handler (in worker.go) that runs them. Grounded on tradeengine's
// internal/orders.Service (repository-over-a-driver-handle shape) and
// its cmd/orders gin routes, generalized from order placement to quiz
// generation.
package quiz

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/cognitohub/platform/pkg/aiclient"
	"github.com/cognitohub/platform/pkg/cache"
	"github.com/cognitohub/platform/pkg/config"
	"github.com/cognitohub/platform/pkg/httpx"
	"github.com/cognitohub/platform/pkg/queue"
	"github.com/cognitohub/platform/pkg/store"
)

// Orchestrator implements spec.md §4.D's inbound HTTP contracts.
type Orchestrator struct {
	cfg   *config.Config
	cache *cache.Cache
	store *store.Store
	q     *queue.Queue
	log   *zap.Logger
}

// New builds an Orchestrator.
func New(cfg *config.Config, c *cache.Cache, s *store.Store, q *queue.Queue, log *zap.Logger) *Orchestrator {
	return &Orchestrator{cfg: cfg, cache: c, store: s, q: q, log: log}
}

// JobPayload is what's enqueued for the worker to pick up.
type JobPayload struct {
	Method        string `json:"method"` // ai-topic | ai-file
	UserID        string `json:"userId"`
	Topic         string `json:"topic,omitempty"`
	ExtractedText string `json:"extractedText,omitempty"`
	NumQuestions  int    `json:"numQuestions"`
	Difficulty    string `json:"difficulty"`
	UseAdaptive   bool   `json:"useAdaptive"`
	IsPublic      bool   `json:"isPublic"`
	ContentHash   string `json:"contentHash"`
}

type topicRequest struct {
	Topic        string `json:"topic"`
	NumQuestions int    `json:"numQuestions"`
	Difficulty   string `json:"difficulty"`
	UseAdaptive  bool   `json:"useAdaptive"`
	IsPublic     bool   `json:"isPublic"`
}

var topicSpecs = []httpx.FieldSpec{
	{Name: "topic", Kind: httpx.KindString, Required: true, MinLen: 3, MaxLen: 200},
	{Name: "numQuestions", Kind: httpx.KindInt, Required: true, HasRange: true, MinValue: 1, MaxValue: 50},
	{Name: "difficulty", Kind: httpx.KindString, Required: true, Enum: []string{"Easy", "Medium", "Hard", "Expert", "Mixed"}},
}

// GenerateTopic handles POST /api/generate/topic.
func (o *Orchestrator) GenerateTopic(c *gin.Context) {
	var req topicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Fail(c, http.StatusBadRequest, "malformed request body")
		return
	}
	if msg := httpx.Validate(httpx.Values{
		"topic": req.Topic, "numQuestions": float64(req.NumQuestions), "difficulty": req.Difficulty,
	}, topicSpecs); msg != "" {
		httpx.Fail(c, http.StatusBadRequest, msg)
		return
	}

	userID := httpx.UserID(c)
	role := httpx.Role(c)

	snapshot, limitInfo, ok := o.checkQuota(c.Request.Context(), userID, role)
	if !ok {
		httpx.Fail(c, http.StatusTooManyRequests, quotaMessage(snapshot))
		return
	}

	hash := cache.MD5Hex(req.Topic + "|" + itoa(req.NumQuestions) + "|" + req.Difficulty)
	jobID := "ai-topic-" + userID + "-" + hash[:16]

	job, err := o.q.Enqueue(c.Request.Context(), JobPayload{
		Method: "ai-topic", UserID: userID, Topic: req.Topic,
		NumQuestions: req.NumQuestions, Difficulty: req.Difficulty,
		UseAdaptive: req.UseAdaptive, IsPublic: req.IsPublic, ContentHash: hash,
	}, queue.EnqueueOptions{JobID: jobID, Attempts: 3})
	if err != nil {
		httpx.Fail(c, http.StatusInternalServerError, "could not enqueue generation job")
		return
	}

	httpx.OK(c, http.StatusAccepted, gin.H{
		"jobId": job.ID, "status": "queued",
		"checkStatusUrl": "/api/generate/status/" + job.ID,
		"limitInfo":      limitInfo,
	}, "")
}

const maxUploadMime = 10 << 20

// GenerateFile handles POST /api/generate/file.
func (o *Orchestrator) GenerateFile(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		httpx.Fail(c, http.StatusBadRequest, "malformed multipart upload")
		return
	}
	files := form.File["file"]
	if len(files) == 0 {
		httpx.Fail(c, http.StatusBadRequest, "file is required")
		return
	}
	header := files[0]
	if header.Size > maxUploadMime {
		httpx.Fail(c, http.StatusBadRequest, "file too large")
		return
	}

	text, err := extractText(header)
	if err != nil {
		httpx.Fail(c, http.StatusBadRequest, "unsupported or unreadable file")
		return
	}
	if len(text) == 0 {
		httpx.Fail(c, http.StatusBadRequest, "no extractable text in uploaded file")
		return
	}

	numQuestions := atoiOr(c.PostForm("numQuestions"), 10)
	difficulty := c.DefaultPostForm("difficulty", "Medium")
	useAdaptive := c.PostForm("useAdaptive") == "true"

	userID := httpx.UserID(c)
	role := httpx.Role(c)

	snapshot, limitInfo, ok := o.checkQuota(c.Request.Context(), userID, role)
	if !ok {
		httpx.Fail(c, http.StatusTooManyRequests, quotaMessage(snapshot))
		return
	}

	hash := cache.MD5Hex(text)
	jobID := "ai-file-" + userID + "-" + hash[:16]

	job, err := o.q.Enqueue(c.Request.Context(), JobPayload{
		Method: "ai-file", UserID: userID, ExtractedText: text,
		NumQuestions: numQuestions, Difficulty: difficulty,
		UseAdaptive: useAdaptive, ContentHash: hash,
	}, queue.EnqueueOptions{JobID: jobID, Attempts: 3})
	if err != nil {
		httpx.Fail(c, http.StatusInternalServerError, "could not enqueue generation job")
		return
	}

	httpx.OK(c, http.StatusAccepted, gin.H{
		"jobId": job.ID, "status": "queued",
		"checkStatusUrl": "/api/generate/status/" + job.ID,
		"limitInfo":      limitInfo,
	}, "")
}

// extractText pulls text out of an uploaded pdf/txt file and discards
// the file immediately, per spec.md §4.D/§5: "no file outlives request
// handling."
func extractText(header *multipart.FileHeader) (string, error) {
	f, err := header.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	switch ext := fileExt(header.Filename); ext {
	case ".txt":
		raw, err := io.ReadAll(io.LimitReader(f, maxUploadMime))
		return string(raw), err
	case ".pdf":
		return extractPDFText(f, header.Size)
	default:
		return "", errUnsupportedMime
	}
}

// Status handles GET /api/generate/status/{jobId}.
func (o *Orchestrator) Status(c *gin.Context) {
	jobID := c.Param("jobId")
	job := o.q.GetStatus(c.Request.Context(), jobID)
	httpx.OK(c, http.StatusOK, gin.H{
		"jobId": job.ID, "status": job.State, "progress": job.Progress,
		"result": job.ReturnValue, "error": job.FailureReason, "attempts": job.Attempts,
		"timestamps": gin.H{"created": job.CreatedAt, "processed": job.StartedAt, "finished": job.FinishedAt},
	}, "")
}

// Limits handles GET /api/generate/limits.
func (o *Orchestrator) Limits(c *gin.Context) {
	userID := httpx.UserID(c)
	role := httpx.Role(c)
	snapshot := o.cache.CheckQuota(c.Request.Context(), userID, dayKey(time.Now()), o.cfg.LimitForRole(role))
	httpx.OK(c, http.StatusOK, gin.H{
		"usage": snapshot.Count, "limit": snapshot.Limit,
		"remaining": snapshot.Remaining, "hasExceeded": snapshot.Exceeded, "role": role,
	}, "")
}

func (o *Orchestrator) checkQuota(ctx context.Context, userID, role string) (cache.QuotaSnapshot, gin.H, bool) {
	limit := o.cfg.LimitForRole(role)
	snapshot := o.cache.CheckQuota(ctx, userID, dayKey(time.Now()), limit)
	limitInfo := gin.H{"count": snapshot.Count, "limit": snapshot.Limit, "remaining": snapshot.Remaining}
	return snapshot, limitInfo, !snapshot.Exceeded
}

func quotaMessage(s cache.QuotaSnapshot) string {
	return "Daily generation limit reached (" + itoa(s.Count) + "/" + itoa(s.Limit) + "). Try again tomorrow."
}

func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

// CreateManual handles POST /api/quizzes.
func (o *Orchestrator) CreateManual(c *gin.Context) {
	var quiz store.Quiz
	if err := c.ShouldBindJSON(&quiz); err != nil {
		httpx.Fail(c, http.StatusBadRequest, "malformed quiz body")
		return
	}
	quiz.OwnerID = httpx.UserID(c)
	quiz.GenerationMetadata = store.GenerationMetadata{Method: store.MethodManual, CreatedAt: time.Now()}

	if _, err := o.store.Quizzes().Create(c.Request.Context(), &quiz); err != nil {
		httpx.Fail(c, http.StatusBadRequest, err.Error())
		return
	}
	httpx.OK(c, http.StatusCreated, gin.H{"quiz": quiz}, "")
}

// List handles GET /api/quizzes.
func (o *Orchestrator) List(c *gin.Context) {
	filter := store.ListFilter{
		Search:     c.Query("search"),
		Difficulty: store.Difficulty(c.Query("difficulty")),
		Category:   c.Query("category"),
		Page:       atoiOr(c.Query("page"), 1),
		Limit:      atoiOr(c.Query("limit"), 20),
		SortBy:     c.Query("sortBy"),
		SortOrder:  sortOrderOf(c.Query("sortOrder")),
	}
	quizzes, total, err := o.store.Quizzes().List(c.Request.Context(), filter)
	if err != nil {
		httpx.Fail(c, http.StatusInternalServerError, "could not list quizzes")
		return
	}
	pages := (total + int64(filter.Limit) - 1) / int64(filter.Limit)
	httpx.OK(c, http.StatusOK, gin.H{
		"quizzes": quizzes,
		"pagination": gin.H{"total": total, "page": filter.Page, "limit": filter.Limit, "pages": pages},
	}, "")
}

// Get handles GET /api/quizzes/{id}, returning the student view unless
// the caller owns the quiz and sets the `full` query flag for editing.
func (o *Orchestrator) Get(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		httpx.Fail(c, http.StatusBadRequest, "invalid quiz id")
		return
	}
	quiz, err := o.store.Quizzes().GetByID(c.Request.Context(), id)
	if err != nil {
		httpx.Fail(c, http.StatusNotFound, "quiz not found")
		return
	}
	if c.Query("full") == "true" && quiz.OwnerID == httpx.UserID(c) {
		httpx.OK(c, http.StatusOK, gin.H{"quiz": quiz}, "")
		return
	}
	httpx.OK(c, http.StatusOK, gin.H{"quiz": quiz.StudentView()}, "")
}

func sortOrderOf(s string) int {
	if s == "asc" {
		return 1
	}
	return -1
}
