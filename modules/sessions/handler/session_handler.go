package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/protocorn/launchway/internal/platform/auth"
	httpPlatform "github.com/protocorn/launchway/internal/platform/http"
	rlmodel "github.com/protocorn/launchway/modules/ratelimit/model"
	rlservice "github.com/protocorn/launchway/modules/ratelimit/service"
	"github.com/protocorn/launchway/modules/sessions/model"
	"github.com/protocorn/launchway/modules/sessions/service"
)

// SessionHandler handles session API requests
type SessionHandler struct {
	service *service.SessionService
	limiter *rlservice.Limiter
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(svc *service.SessionService, limiter *rlservice.Limiter) *SessionHandler {
	return &SessionHandler{service: svc, limiter: limiter}
}

// RegisterRoutes registers session routes
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	batches := rg.Group("/batches")
	batches.Use(authMiddleware)
	{
		batches.POST("", h.Start)
		batches.GET("/:id/status", h.Status)
		batches.POST("/:id/slots/:job_id/submitted", h.MarkSubmitted)
		batches.DELETE("/:id", h.Close)
	}
}

// Start godoc
// @Summary Start a batch of job applications
// @Description Queue up to N job URLs for automated application
// @Tags sessions
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body model.StartBatchRequest true "Job URLs"
// @Success 202 {object} model.Batch
// @Failure 400 {object} httpPlatform.ErrorResponse
// @Failure 401 {object} httpPlatform.ErrorResponse
// @Failure 429 {object} httpPlatform.RateLimitResponse
// @Failure 500 {object} httpPlatform.ErrorResponse
// @Router /batches [post]
func (h *SessionHandler) Start(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		httpPlatform.RespondWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	var req model.StartBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpPlatform.RespondWithError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request payload")
		return
	}

	// Admission: daily application budget covers the whole batch.
	res, err := h.limiter.Check(c.Request.Context(), rlmodel.LimitApplicationsPerUserDay, userID)
	if err == nil && (!res.Allowed || res.Remaining < len(req.JobURLs)) {
		httpPlatform.RespondWithRateLimit(c, string(rlmodel.LimitApplicationsPerUserDay),
			res.RetryAfter(time.Now()), res.ResetAt.Unix())
		return
	}

	batch, err := h.service.StartBatch(c.Request.Context(), userID, &req)
	if err != nil {
		code := model.GetErrorCode(err)
		status := http.StatusInternalServerError
		switch code {
		case model.CodeEmptyBatch, model.CodeBatchTooLarge, model.CodeInvalidURL:
			status = http.StatusBadRequest
		}
		httpPlatform.RespondWithError(c, status, string(code), model.GetErrorMessage(err))
		return
	}

	httpPlatform.RespondWithData(c, http.StatusAccepted, batch)
}

// Status godoc
// @Summary Batch status
// @Description Poll per-slot progress, viewer URLs and terminal states
// @Tags sessions
// @Security BearerAuth
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} model.BatchStatusResponse
// @Failure 401 {object} httpPlatform.ErrorResponse
// @Failure 404 {object} httpPlatform.ErrorResponse
// @Router /batches/{id}/status [get]
func (h *SessionHandler) Status(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		httpPlatform.RespondWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	status, err := h.service.Status(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, model.ErrBatchNotFound) {
			httpPlatform.RespondWithError(c, http.StatusNotFound, string(model.CodeBatchNotFound), model.GetErrorMessage(err))
			return
		}
		httpPlatform.RespondWithError(c, http.StatusInternalServerError, string(model.CodeInternalError), "An internal error occurred")
		return
	}

	httpPlatform.RespondWithData(c, http.StatusOK, status)
}

// MarkSubmitted godoc
// @Summary Mark a slot manually submitted
// @Description The user confirms they completed the application through the viewer
// @Tags sessions
// @Security BearerAuth
// @Produce json
// @Param id path string true "Batch ID"
// @Param job_id path string true "Job slot ID"
// @Success 200 {object} map[string]string
// @Failure 401 {object} httpPlatform.ErrorResponse
// @Failure 404 {object} httpPlatform.ErrorResponse
// @Failure 409 {object} httpPlatform.ErrorResponse
// @Router /batches/{id}/slots/{job_id}/submitted [post]
func (h *SessionHandler) MarkSubmitted(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		httpPlatform.RespondWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	err := h.service.MarkSubmitted(c.Request.Context(), userID, c.Param("id"), c.Param("job_id"))
	if err != nil {
		code := model.GetErrorCode(err)
		status := http.StatusInternalServerError
		switch code {
		case model.CodeBatchNotFound, model.CodeSlotNotFound:
			status = http.StatusNotFound
		case model.CodeSlotNotReviewable:
			status = http.StatusConflict
		}
		httpPlatform.RespondWithError(c, status, string(code), model.GetErrorMessage(err))
		return
	}

	httpPlatform.RespondWithData(c, http.StatusOK, gin.H{"status": "completed"})
}

// Close godoc
// @Summary Close a batch
// @Description Terminates every open VNC session and removes sandbox homes
// @Tags sessions
// @Security BearerAuth
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} map[string]string
// @Failure 401 {object} httpPlatform.ErrorResponse
// @Failure 404 {object} httpPlatform.ErrorResponse
// @Failure 409 {object} httpPlatform.ErrorResponse
// @Router /batches/{id} [delete]
func (h *SessionHandler) Close(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		httpPlatform.RespondWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	err := h.service.CloseBatch(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		code := model.GetErrorCode(err)
		status := http.StatusInternalServerError
		switch code {
		case model.CodeBatchNotFound:
			status = http.StatusNotFound
		case model.CodeBatchClosed:
			status = http.StatusConflict
		}
		httpPlatform.RespondWithError(c, status, string(code), model.GetErrorMessage(err))
		return
	}

	httpPlatform.RespondWithData(c, http.StatusOK, gin.H{"status": "closed"})
}
