package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"chat-presence/internal/api/middleware"
	"chat-presence/internal/models"
	"chat-presence/internal/repositories"
	"chat-presence/internal/websocket"

	"github.com/gin-gonic/gin"
)

type WSHandler struct {
	hub   *websocket.Hub
	users repositories.UserStore
}

func NewWSHandler(hub *websocket.Hub, users repositories.UserStore) *WSHandler {
	return &WSHandler{hub: hub, users: users}
}

// HandleWebSocket upgrades an authenticated request to a realtime channel.
// The token's user must exist.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	username := middleware.Username(c)

	if _, err := h.users.GetUserByUsername(c.Request.Context(), username); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			return
		}
		slog.Error("WebSocket user lookup failed", "username", username, "error", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Code:    http.StatusInternalServerError,
			Message: "Failed to resolve user",
			Details: err.Error(),
		})
		return
	}

	slog.Debug("New WebSocket connection request", "username", username)
	websocket.ServeWS(h.hub, c.Writer, c.Request, username)
}
