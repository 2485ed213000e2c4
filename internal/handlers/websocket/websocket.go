// internal/handlers/websocket/websocket.go
package websocket

import (
	"net/http"

	"finditnow-auth/internal/middleware"
	"finditnow-auth/internal/pkg/response"
	ws "finditnow-auth/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Auth happens via the bearer token, not the Origin header.
		return true
	},
}

// Handler upgrades authenticated requests onto the session-event hub.
type Handler struct {
	hub    *ws.Hub
	logger *zap.Logger
}

func NewHandler(hub *ws.Hub, logger *zap.Logger) *Handler {
	return &Handler{hub: hub, logger: logger}
}

// Serve handles GET /ws. MUST run behind the auth middleware.
func (h *Handler) Serve(c *gin.Context) {
	credID, ok := middleware.GetCredentialID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}
	sessionID, _ := middleware.GetSessionID(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	ws.NewClient(h.hub, conn, credID, sessionID, h.logger)
}
