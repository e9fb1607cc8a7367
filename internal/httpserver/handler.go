package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dailyverse/internal/delivery"
	"dailyverse/internal/model"
	"dailyverse/internal/repository"
	"dailyverse/internal/trigger"
	"dailyverse/pkg/outbox"
)

type RunTrigger interface {
	Trigger(ctx context.Context) (*model.RunSummary, error)
	TriggerTest(ctx context.Context, userID string) (*delivery.TestResult, error)
}

type RunHandler struct {
	trigger RunTrigger
	logger  *zap.Logger
}

func NewRunHandler(t RunTrigger, logger *zap.Logger) *RunHandler {
	return &RunHandler{
		trigger: t,
		logger:  logger,
	}
}

// TriggerRun runs one full cycle synchronously.
// POST /v1/runs
func (h *RunHandler) TriggerRun(c *gin.Context) {
	summary, err := h.trigger.Trigger(c.Request.Context())
	if err != nil {
		h.logger.Error("Triggered run failed", zap.String("requested_by", c.GetString(subjectKey)), zap.Error(err))
		c.JSON(runErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("Run triggered over HTTP",
		zap.String("requested_by", c.GetString(subjectKey)),
		zap.String("run_id", summary.ID),
	)
	c.JSON(http.StatusOK, summary)
}

type testRunRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// TriggerTest sends a test notification to one user.
// POST /v1/runs/test {"user_id": "..."}
func (h *RunHandler) TriggerTest(c *gin.Context) {
	var req testRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	res, err := h.trigger.TriggerTest(c.Request.Context(), req.UserID)
	if err != nil {
		h.logger.Error("Test run failed",
			zap.String("user_id", req.UserID),
			zap.String("requested_by", c.GetString(subjectKey)),
			zap.Error(err),
		)
		c.JSON(runErrorStatus(err), gin.H{"error": err.Error(), "result": res})
		return
	}
	c.JSON(http.StatusOK, res)
}

func runErrorStatus(err error) int {
	switch {
	case errors.Is(err, trigger.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, delivery.ErrSystemFailure), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type Replayer interface {
	ReplayEvent(ctx context.Context, eventID int64) error
	ReplayFailedEvents(ctx context.Context, limit int) (int, error)
}

type AdminHandler struct {
	replayer Replayer
	logger   *zap.Logger
}

func NewAdminHandler(replayer Replayer, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		replayer: replayer,
		logger:   logger,
	}
}

// ReplayOutboxEvent republishes one outbox event.
// POST /admin/outbox/replay?id=xxx
func (h *AdminHandler) ReplayOutboxEvent(c *gin.Context) {
	idStr := c.Query("id")
	if idStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing id parameter"})
		return
	}
	eventID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id parameter"})
		return
	}

	if err := h.replayer.ReplayEvent(c.Request.Context(), eventID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, outbox.ErrEventNotFound) {
			status = http.StatusNotFound
		}
		h.logger.Error("Failed to replay event", zap.Int64("event_id", eventID), zap.Error(err))
		c.JSON(status, gin.H{"error": "failed to replay event", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "replayed", "event_id": eventID})
}

// ReplayFailedEvents republishes events parked as failed.
// POST /admin/outbox/replay-failed?limit=100
func (h *AdminHandler) ReplayFailedEvents(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		limit = 100
	}

	n, err := h.replayer.ReplayFailedEvents(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to replay failed events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to replay failed events", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed", "success_count": n, "limit": limit})
}
