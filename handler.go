package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arunvm123/concerttrack/cache"
	"github.com/arunvm123/concerttrack/logger"
	"github.com/arunvm123/concerttrack/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ConcertOrchestrator is what the handlers need from the orchestrator package.
type ConcertOrchestrator interface {
	Create(ctx context.Context, req model.CreateConcertRequest) (*model.Concert, error)
	Update(ctx context.Context, req model.UpdateConcertRequest) (*model.Concert, error)
	Delete(ctx context.Context, id int64) (*model.CascadeReport, error)

	GetAll(ctx context.Context) ([]model.Concert, error)
	GetByStage(ctx context.Context, stage string) ([]model.Concert, error)
	GetByID(ctx context.Context, id int64) (*model.Concert, error)
	GetByPerformer(ctx context.Context, performerID int64) ([]model.Concert, error)
	GetBefore(ctx context.Context, date time.Time) ([]model.Concert, error)
	GetAfter(ctx context.Context, date time.Time) ([]model.Concert, error)
	GetPast(ctx context.Context) ([]model.Concert, error)
	GetUpcoming(ctx context.Context) ([]model.Concert, error)

	CheckReviewEligibility(ctx context.Context, id int64) (*model.ReviewEligibility, error)
	CanDeletePerformer(ctx context.Context, performerID int64) (bool, error)
}

// HealthChecker is satisfied by the concert repository and the cache.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type ConcertHandler struct {
	concerts   ConcertOrchestrator
	cache      cache.ConcertCache
	store      HealthChecker
	concertTTL time.Duration
	listTTL    time.Duration
}

func NewConcertHandler(concerts ConcertOrchestrator, concertCache cache.ConcertCache, store HealthChecker, concertTTL, listTTL time.Duration) *ConcertHandler {
	return &ConcertHandler{
		concerts:   concerts,
		cache:      concertCache,
		store:      store,
		concertTTL: concertTTL,
		listTTL:    listTTL,
	}
}

// CreateConcert handles concert creation
func (h *ConcertHandler) CreateConcert(c *gin.Context) {
	var req model.CreateConcertAPIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "validation_failed",
			Message: err.Error(),
		})
		return
	}

	createReq, err := req.ToCreateConcertRequest()
	if err != nil {
		h.writeError(c, err)
		return
	}

	concert, err := h.concerts.Create(c.Request.Context(), createReq)
	if err != nil {
		h.writeError(c, err)
		return
	}

	// New concert changes list membership
	h.invalidateLists(c.Request.Context())

	c.JSON(http.StatusCreated, concert.ToConcertResponse())
}

// UpdateConcert handles partial concert updates
func (h *ConcertHandler) UpdateConcert(c *gin.Context) {
	concertID, ok := parseID(c, c.Param("id"), "concert")
	if !ok {
		return
	}

	var req model.UpdateConcertAPIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "validation_failed",
			Message: err.Error(),
		})
		return
	}

	updateReq, err := req.ToUpdateConcertRequest(concertID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	concert, err := h.concerts.Update(c.Request.Context(), updateReq)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.invalidateConcert(c.Request.Context(), concertID)

	c.JSON(http.StatusOK, concert.ToConcertResponse())
}

// DeleteConcert handles concert deletion and its review cascade
func (h *ConcertHandler) DeleteConcert(c *gin.Context) {
	concertID, ok := parseID(c, c.Param("id"), "concert")
	if !ok {
		return
	}

	report, err := h.concerts.Delete(c.Request.Context(), concertID)
	if report != nil {
		// The concert row may be gone even when the cascade was partial
		h.invalidateConcert(c.Request.Context(), concertID)
	}

	if err != nil {
		var partial *model.PartialCascadeError
		if errors.As(err, &partial) {
			c.JSON(http.StatusMultiStatus, model.ErrorResponse{
				Error:   "partial_cascade",
				Message: err.Error(),
				Details: report,
			})
			return
		}
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetConcert handles retrieving a single concert by ID
func (h *ConcertHandler) GetConcert(c *gin.Context) {
	concertID, ok := parseID(c, c.Param("id"), "concert")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	// Try to get concert from cache first
	concert, err := h.cache.GetConcert(ctx, concertID)
	if err != nil || concert == nil {
		// Cache miss, get from the store
		concert, err = h.concerts.GetByID(ctx, concertID)
		if err != nil {
			h.writeError(c, err)
			return
		}

		if err := h.cache.SetConcert(ctx, concert, h.concertTTL); err != nil {
			logger.Warn("Failed to cache concert", zap.Int64("concert_id", concertID), zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, concert.ToConcertResponse())
}

// ListConcerts handles listing every concert
func (h *ConcertHandler) ListConcerts(c *gin.Context) {
	h.respondCachedList(c, "all", func(ctx context.Context) ([]model.Concert, error) {
		return h.concerts.GetAll(ctx)
	})
}

// ListByStage handles case-insensitive stage search
func (h *ConcertHandler) ListByStage(c *gin.Context) {
	stage := c.Query("stage")
	if strings.TrimSpace(stage) == "" {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "validation_failed",
			Message: "stage query parameter is required",
		})
		return
	}

	h.respondCachedList(c, "stage:"+strings.ToLower(stage), func(ctx context.Context) ([]model.Concert, error) {
		return h.concerts.GetByStage(ctx, stage)
	})
}

// ListBefore handles concerts strictly before a date
func (h *ConcertHandler) ListBefore(c *gin.Context) {
	date, ok := parseDateQuery(c)
	if !ok {
		return
	}
	h.respondCachedList(c, "before:"+date.Format(model.DateLayout), func(ctx context.Context) ([]model.Concert, error) {
		return h.concerts.GetBefore(ctx, date)
	})
}

// ListAfter handles concerts strictly after a date
func (h *ConcertHandler) ListAfter(c *gin.Context) {
	date, ok := parseDateQuery(c)
	if !ok {
		return
	}
	h.respondCachedList(c, "after:"+date.Format(model.DateLayout), func(ctx context.Context) ([]model.Concert, error) {
		return h.concerts.GetAfter(ctx, date)
	})
}

// ListByPerformer is never cached because the performer is re-checked on every call.
func (h *ConcertHandler) ListByPerformer(c *gin.Context) {
	performerID, ok := parseID(c, c.Query("performerId"), "performer")
	if !ok {
		return
	}

	concerts, err := h.concerts.GetByPerformer(c.Request.Context(), performerID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse(concerts))
}

func (h *ConcertHandler) ListPast(c *gin.Context) {
	concerts, err := h.concerts.GetPast(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse(concerts))
}

func (h *ConcertHandler) ListUpcoming(c *gin.Context) {
	concerts, err := h.concerts.GetUpcoming(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse(concerts))
}

// ValidReview answers whether a concert can be reviewed today.
// Used by the review store before it accepts a review.
func (h *ConcertHandler) ValidReview(c *gin.Context) {
	concertID, ok := parseID(c, c.Query("id"), "concert")
	if !ok {
		return
	}

	eligibility, err := h.concerts.CheckReviewEligibility(c.Request.Context(), concertID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if !eligibility.Eligible {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "review_not_allowed",
			Message: "Concert has not taken place yet",
			Details: eligibility,
		})
		return
	}
	c.JSON(http.StatusOK, eligibility)
}

// CheckDeletePerformer answers whether the performer registry may delete a performer.
func (h *ConcertHandler) CheckDeletePerformer(c *gin.Context) {
	performerID, ok := parseID(c, c.Query("performerId"), "performer")
	if !ok {
		return
	}

	deletable, err := h.concerts.CanDeletePerformer(c.Request.Context(), performerID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.PerformerDeletableResponse{PerformerID: performerID, Deletable: deletable})
}

// HealthCheck handles health check endpoint
func (h *ConcertHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"database": "ok", "cache": "ok"}
	status := http.StatusOK

	if err := h.store.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.cache.Ping(ctx); err != nil {
		checks["cache"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	response := model.HealthResponse{
		Status:    "healthy",
		Service:   "concert-service",
		Checks:    checks,
		Timestamp: time.Now(),
	}
	if status != http.StatusOK {
		response.Status = "unhealthy"
	}

	c.JSON(status, response)
}

func (h *ConcertHandler) respondCachedList(c *gin.Context, key string, load func(ctx context.Context) ([]model.Concert, error)) {
	ctx := c.Request.Context()

	concerts, err := h.cache.GetConcertList(ctx, key)
	if err == nil && concerts != nil {
		// Cache hit
		c.JSON(http.StatusOK, listResponse(concerts))
		return
	}

	concerts, err = load(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if err := h.cache.SetConcertList(ctx, key, concerts, h.listTTL); err != nil {
		logger.Warn("Failed to cache concert list", zap.String("key", key), zap.Error(err))
	}

	c.JSON(http.StatusOK, listResponse(concerts))
}

func (h *ConcertHandler) invalidateConcert(ctx context.Context, concertID int64) {
	if err := h.cache.InvalidateConcert(ctx, concertID); err != nil {
		logger.Warn("Failed to invalidate cached concert", zap.Int64("concert_id", concertID), zap.Error(err))
	}
	h.invalidateLists(ctx)
}

func (h *ConcertHandler) invalidateLists(ctx context.Context) {
	if err := h.cache.InvalidateConcertLists(ctx); err != nil {
		logger.Warn("Failed to invalidate cached concert lists", zap.Error(err))
	}
}

// writeError maps orchestrator errors to status codes.
func (h *ConcertHandler) writeError(c *gin.Context, err error) {
	var validationErr *model.ValidationError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "validation_failed",
			Message: validationErr.Error(),
		})
	case errors.Is(err, model.ErrConcertNotFound):
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Error:   "not_found",
			Message: "Concert not found",
		})
	case errors.Is(err, model.ErrInvalidPerformer):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "invalid_performer",
			Message: err.Error(),
		})
	case errors.Is(err, model.ErrPerformerRegistryUnavailable):
		c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{
			Error:   "performer_registry_unavailable",
			Message: "Performer could not be verified, try again later",
		})
	case errors.Is(err, model.ErrConcertHasReviews):
		c.JSON(http.StatusConflict, model.ErrorResponse{
			Error:   "concert_has_reviews",
			Message: "Performer cannot be changed once the concert has reviews",
		})
	case errors.Is(err, model.ErrReviewServiceUnavailable):
		c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{
			Error:   "review_service_unavailable",
			Message: "Review service could not be reached, try again later",
		})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "internal_error",
			Message: "Internal server error",
		})
	}
}

func listResponse(concerts []model.Concert) model.ConcertListResponse {
	return model.ConcertListResponse{
		Concerts: model.ToConcertResponses(concerts),
		Total:    len(concerts),
	}
}

func parseID(c *gin.Context, raw, kind string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "invalid_id",
			Message: fmt.Sprintf("Invalid %s ID format", kind),
		})
		return 0, false
	}
	return id, true
}

func parseDateQuery(c *gin.Context) (time.Time, bool) {
	date, err := model.ParseDay(c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "invalid_date",
			Message: "date must be formatted as YYYY-MM-DD",
		})
		return time.Time{}, false
	}
	return date, true
}
