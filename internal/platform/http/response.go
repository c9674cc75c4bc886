package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// SuccessResponse represents a standard success response
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, errorMessage string) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode:    errorCode,
		ErrorMessage: errorMessage,
	})
}

// RespondWithSuccess sends a standardized success response
func RespondWithSuccess(c *gin.Context, statusCode int, data interface{}) {
	if data == nil {
		c.JSON(statusCode, gin.H{})
		return
	}
	c.JSON(statusCode, SuccessResponse{Data: data})
}

// RespondWithData sends data directly without wrapping
func RespondWithData(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// Health response structure
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Services map[string]string `json:"services"`
}

// RespondWithHealth sends a health check response
func RespondWithHealth(c *gin.Context, services map[string]string) {
	status := "healthy"
	for _, serviceStatus := range services {
		if serviceStatus != "up" {
			status = "degraded"
			break
		}
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:   status,
		Version:  "1.0.0",
		Services: services,
	})
}

// RateLimitResponse is returned when an admission check denies a request
type RateLimitResponse struct {
	ErrorCode         string `json:"error_code"`
	ErrorMessage      string `json:"error_message"`
	Limit             string `json:"limit"`
	RetryAfterSeconds int64  `json:"retry_after_seconds"`
	ResetAt           int64  `json:"reset_at"`
}

// RespondWithRateLimit sends a 429 response with retry metadata
func RespondWithRateLimit(c *gin.Context, limit string, retryAfterSeconds, resetAt int64) {
	c.Header("Retry-After", strconv.FormatInt(retryAfterSeconds, 10))
	c.JSON(http.StatusTooManyRequests, RateLimitResponse{
		ErrorCode:         "RATE_LIMITED",
		ErrorMessage:      "Rate limit exceeded",
		Limit:             limit,
		RetryAfterSeconds: retryAfterSeconds,
		ResetAt:           resetAt,
	})
}
