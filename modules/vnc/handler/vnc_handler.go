package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/protocorn/launchway/internal/platform/auth"
	httpPlatform "github.com/protocorn/launchway/internal/platform/http"
	"github.com/protocorn/launchway/internal/platform/logger"
	"github.com/protocorn/launchway/modules/vnc/bridge"
	"github.com/protocorn/launchway/modules/vnc/fleet"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// VNCHandler exposes the viewer stream endpoint
type VNCHandler struct {
	fleet *fleet.Fleet
	repo  *fleet.SessionRepository
	log   *logger.Logger
}

// NewVNCHandler creates the handler
func NewVNCHandler(f *fleet.Fleet, repo *fleet.SessionRepository, log *logger.Logger) *VNCHandler {
	return &VNCHandler{fleet: f, repo: repo, log: log}
}

// RegisterRoutes registers the stream route. The route authenticates via
// the standard bearer middleware, which reads the token from the
// Authorization header only; a token in a query parameter is not accepted.
func (h *VNCHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	rg.GET("/vnc-stream/:session_id", authMiddleware, h.Stream)
}

// Stream godoc
// @Summary VNC viewer stream
// @Description Tunnels the session's remote-framebuffer bytes over WebSocket
// @Tags vnc
// @Security BearerAuth
// @Param session_id path string true "VNC session ID"
// @Success 101 {string} string "switching protocols"
// @Failure 401 {object} httpPlatform.ErrorResponse
// @Failure 404 {object} httpPlatform.ErrorResponse
// @Router /vnc-stream/{session_id} [get]
func (h *VNCHandler) Stream(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		httpPlatform.RespondWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	sessionID := c.Param("session_id")
	row, err := h.repo.GetByID(c.Request.Context(), sessionID)
	if err != nil || row.UserID != userID {
		httpPlatform.RespondWithError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found")
		return
	}

	coord, ok := h.fleet.Get(sessionID)
	if !ok {
		httpPlatform.RespondWithError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session is no longer live")
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("viewer upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	h.fleet.Touch(sessionID)
	if err := bridge.Tunnel(c.Request.Context(), ws, coord.VNCAddr()); err != nil {
		h.log.Debug("viewer tunnel ended", zap.String("session_id", sessionID), zap.Error(err))
	}
}
