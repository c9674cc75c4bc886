package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/protocorn/launchway/internal/platform/auth"
	httpPlatform "github.com/protocorn/launchway/internal/platform/http"
	"github.com/protocorn/launchway/modules/ratelimit/model"
	"github.com/protocorn/launchway/modules/ratelimit/service"
	userPorts "github.com/protocorn/launchway/modules/users/ports"
)

// RateLimitHandler exposes operator visibility into the limiter
type RateLimitHandler struct {
	limiter *service.Limiter
	quota   *service.QuotaManager
	users   userPorts.UserRepository
}

// NewRateLimitHandler creates the handler
func NewRateLimitHandler(limiter *service.Limiter, quota *service.QuotaManager, users userPorts.UserRepository) *RateLimitHandler {
	return &RateLimitHandler{limiter: limiter, quota: quota, users: users}
}

// RegisterRoutes registers rate limit routes
func (h *RateLimitHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	limits := rg.Group("/ratelimit")
	limits.Use(authMiddleware)
	{
		limits.GET("/status", h.Status)
	}
}

// StatusResponse is the operator view of the current windows
type StatusResponse struct {
	LLMMinuteUsed  int `json:"llm_minute_used"`
	LLMMinuteLimit int `json:"llm_minute_limit"`
	LLMDayUsed     int `json:"llm_day_used"`
	LLMDayLimit    int `json:"llm_day_limit"`
	QueueWaiting   int `json:"queue_waiting"`
	QueueInFlight  int `json:"queue_in_flight"`
}

// Status godoc
// @Summary Rate limit status
// @Description Current global LLM window usage and reservation queue depth (admin only)
// @Tags ratelimit
// @Security BearerAuth
// @Produce json
// @Success 200 {object} StatusResponse
// @Failure 401 {object} httpPlatform.ErrorResponse
// @Failure 403 {object} httpPlatform.ErrorResponse
// @Router /ratelimit/status [get]
func (h *RateLimitHandler) Status(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		httpPlatform.RespondWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil || !h.limiter.IsAdmin(auth.Identity{UserID: userID, Email: user.Email}) {
		httpPlatform.RespondWithError(c, http.StatusForbidden, "FORBIDDEN", "Admin access required")
		return
	}

	ctx := c.Request.Context()
	minuteUsed, minuteLimit, _ := h.limiter.Usage(ctx, model.LimitLLMPerMinute, model.GlobalIdentifier)
	dayUsed, dayLimit, _ := h.limiter.Usage(ctx, model.LimitLLMPerDay, model.GlobalIdentifier)
	waiting, inFlight := h.quota.QueueDepth()

	httpPlatform.RespondWithData(c, http.StatusOK, StatusResponse{
		LLMMinuteUsed:  minuteUsed,
		LLMMinuteLimit: minuteLimit,
		LLMDayUsed:     dayUsed,
		LLMDayLimit:    dayLimit,
		QueueWaiting:   waiting,
		QueueInFlight:  inFlight,
	})
}

// APILimitMiddleware enforces the generic per-user API admission limit
func APILimitMiddleware(limiter *service.Limiter, users userPorts.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := auth.GetUserID(c)
		if !exists {
			c.Next()
			return
		}
		if user, err := users.GetByID(c.Request.Context(), userID); err == nil {
			if limiter.IsAdmin(auth.Identity{UserID: userID, Email: user.Email}) {
				c.Next()
				return
			}
		}
		res, err := limiter.Check(c.Request.Context(), model.LimitAPIPerUserMinute, userID)
		if err == nil && !res.Allowed {
			httpPlatform.RespondWithRateLimit(c, string(model.LimitAPIPerUserMinute),
				res.RetryAfter(time.Now()), res.ResetAt.Unix())
			c.Abort()
			return
		}
		_ = limiter.Consume(c.Request.Context(), model.LimitAPIPerUserMinute, userID, 1)
		c.Next()
	}
}
