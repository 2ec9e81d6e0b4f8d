package handlers

import (
	"errors"
	"net/http"

	"chat-presence/internal/models"
	"chat-presence/internal/repositories"

	"github.com/gin-gonic/gin"
)

// PresenceReader answers presence queries.
type PresenceReader interface {
	OnlineUsers() []string
	IsOnline(username string) bool
}

type PresenceHandler struct {
	presence PresenceReader
	users    repositories.UserStore
}

func NewPresenceHandler(presence PresenceReader, users repositories.UserStore) *PresenceHandler {
	return &PresenceHandler{presence: presence, users: users}
}

// GetOnlineUsers returns the usernames with at least one open channel.
func (h *PresenceHandler) GetOnlineUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": h.presence.OnlineUsers()})
}

// GetUserPresence returns whether a user is online and, if not, when they
// were last active.
func (h *PresenceHandler) GetUserPresence(c *gin.Context) {
	username := models.NormalizeUsername(c.Param("username"))

	user, err := h.users.GetUserByUsername(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Code:    http.StatusInternalServerError,
			Message: "Failed to get user",
			Details: err.Error(),
		})
		return
	}

	resp := models.PresenceResponse{
		Username: user.Username,
		Online:   h.presence.IsOnline(user.Username),
	}
	if !resp.Online && !user.LastActive.IsZero() {
		lastSeen := user.LastActive
		resp.LastSeen = &lastSeen
	}
	c.JSON(http.StatusOK, resp)
}
