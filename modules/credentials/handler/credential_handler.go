package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/protocorn/launchway/internal/platform/auth"
	httpPlatform "github.com/protocorn/launchway/internal/platform/http"
	"github.com/protocorn/launchway/modules/credentials/model"
	"github.com/protocorn/launchway/modules/credentials/service"
)

// CredentialHandler handles company credential requests
type CredentialHandler struct {
	service *service.CredentialService
}

// NewCredentialHandler creates a new credential handler
func NewCredentialHandler(svc *service.CredentialService) *CredentialHandler {
	return &CredentialHandler{service: svc}
}

// RegisterRoutes registers credential routes
func (h *CredentialHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	creds := rg.Group("/credentials")
	creds.Use(authMiddleware)
	{
		creds.PUT("", h.Upsert)
		creds.DELETE("/:host", h.Delete)
	}
}

// Upsert godoc
// @Summary Store a company portal credential
// @Description Saves a per-company login, encrypted at rest, used to pass login walls during automation
// @Tags credentials
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body model.UpsertCredentialRequest true "Credential"
// @Success 200 {object} model.CompanyCredential
// @Failure 400 {object} httpPlatform.ErrorResponse
// @Failure 401 {object} httpPlatform.ErrorResponse
// @Router /credentials [put]
func (h *CredentialHandler) Upsert(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		httpPlatform.RespondWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	var req model.UpsertCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpPlatform.RespondWithError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request payload")
		return
	}

	cred, err := h.service.Upsert(c.Request.Context(), userID, &req)
	if err != nil {
		httpPlatform.RespondWithError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	httpPlatform.RespondWithData(c, http.StatusOK, cred)
}

// Delete godoc
// @Summary Delete a company portal credential
// @Tags credentials
// @Security BearerAuth
// @Produce json
// @Param host path string true "Company host"
// @Success 200 {object} map[string]string
// @Failure 401 {object} httpPlatform.ErrorResponse
// @Failure 404 {object} httpPlatform.ErrorResponse
// @Router /credentials/{host} [delete]
func (h *CredentialHandler) Delete(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		httpPlatform.RespondWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	if err := h.service.Delete(c.Request.Context(), userID, c.Param("host")); err != nil {
		httpPlatform.RespondWithError(c, http.StatusNotFound, string(model.GetErrorCode(err)), "Credential not found")
		return
	}

	httpPlatform.RespondWithData(c, http.StatusOK, gin.H{"status": "deleted"})
}
