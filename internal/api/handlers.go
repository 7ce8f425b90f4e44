package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/whisper-vault/internal/domain"
	"github.com/jonesrussell/whisper-vault/internal/logger"
	"github.com/jonesrussell/whisper-vault/internal/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Handler handles HTTP requests for the whisper-vault API
type Handler struct {
	svc    *service.Service
	logger logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(svc *service.Service, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Handler{svc: svc, logger: log}
}

// SubmitConfession handles POST /api/v1/confessions
func (h *Handler) SubmitConfession(c *gin.Context) {
	var req SubmitConfessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid confession request", logger.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	confession, err := h.svc.SubmitConfession(c.Request.Context(), service.SubmitConfessionInput{
		Content:   req.Content,
		Age:       req.Age,
		Gender:    req.Gender,
		Language:  req.Language,
		Anonymous: req.Anonymous == nil || *req.Anonymous,
		UserID:    req.UserID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidConfession) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, domain.ErrDuplicateContent) {
			c.JSON(http.StatusConflict, gin.H{"error": "identical confession was submitted recently"})
			return
		}
		h.logger.Error("Confession submission failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store confession"})
		return
	}

	c.JSON(http.StatusCreated, toConfessionResponse(confession))
}

// GetConfession handles GET /api/v1/confessions/:id
func (h *Handler) GetConfession(c *gin.Context) {
	confession, err := h.svc.GetConfession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "failed to load confession")
		return
	}
	c.JSON(http.StatusOK, toConfessionResponse(confession))
}

// ListConfessions handles GET /api/v1/confessions
func (h *Handler) ListConfessions(c *gin.Context) {
	confessions, err := h.svc.ListConfessions(c.Request.Context(), listLimit(c))
	if err != nil {
		h.logger.Error("Failed to list confessions", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list confessions"})
		return
	}

	responses := make([]ConfessionResponse, 0, len(confessions))
	for i := range confessions {
		responses = append(responses, toConfessionResponse(&confessions[i]))
	}
	c.JSON(http.StatusOK, ConfessionListResponse{Confessions: responses, Total: len(responses)})
}

// EnqueuePublish handles POST /api/v1/publish/:confession_id
func (h *Handler) EnqueuePublish(c *gin.Context) {
	var req EnqueuePublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid publish request", logger.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.svc.EnqueuePublish(c.Request.Context(), c.Param("confession_id"), req.Platforms)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "confession not found"})
		case errors.Is(err, domain.ErrUnknownPlatform),
			errors.Is(err, domain.ErrInvalidPublishJob):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrInvalidState):
			// Only approved confessions may be published.
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Failed to enqueue publish job", logger.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue publish job"})
		}
		return
	}

	c.JSON(http.StatusAccepted, toJobResponse(job))
}

// GetJob handles GET /api/v1/publish/jobs/:id
func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.svc.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "failed to load job")
		return
	}
	c.JSON(http.StatusOK, toJobResponse(job))
}

// ListJobs handles GET /api/v1/publish/jobs
func (h *Handler) ListJobs(c *gin.Context) {
	jobs, err := h.svc.ListJobs(c.Request.Context(), listLimit(c))
	if err != nil {
		h.logger.Error("Failed to list jobs", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}

	responses := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, toJobResponse(job))
	}
	c.JSON(http.StatusOK, JobListResponse{Jobs: responses, Total: len(responses)})
}

// CancelJob handles DELETE /api/v1/publish/jobs/:id
func (h *Handler) CancelJob(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.CancelJob(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		case errors.Is(err, domain.ErrInvalidState):
			c.JSON(http.StatusConflict, gin.H{"error": "job already finished"})
		default:
			h.logger.Error("Failed to cancel job",
				logger.String("job_id", id), logger.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel job"})
		}
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cancel_requested", "job_id": id})
}

// GetStats handles GET /api/v1/stats
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.svc.GetStats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load stats", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetRecentPosts handles GET /api/v1/stats/recent
func (h *Handler) GetRecentPosts(c *gin.Context) {
	posts, err := h.svc.GetRecentPosts(c.Request.Context(), listLimit(c))
	if err != nil {
		h.logger.Error("Failed to load recent posts", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load recent posts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "total": len(posts)})
}

func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	h.logger.Error(fallback, logger.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
}

func listLimit(c *gin.Context) int {
	raw := c.DefaultQuery("limit", "")
	if raw == "" {
		return defaultListLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
