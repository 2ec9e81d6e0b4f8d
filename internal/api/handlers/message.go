package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"chat-presence/internal/api/middleware"
	"chat-presence/internal/models"
	"chat-presence/internal/repositories"
	"chat-presence/internal/services"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	messageService *services.MessageService
}

func NewMessageHandler(messageService *services.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

// GetMessageThread returns the conversation with :username, newest first,
// and marks the caller's unread messages in it as read.
func (h *MessageHandler) GetMessageThread(c *gin.Context) {
	thread, err := h.messageService.Thread(c.Request.Context(), middleware.Username(c), c.Param("username"))
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Code:    http.StatusInternalServerError,
			Message: "Failed to get messages",
			Details: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, thread)
}

// DeleteMessage deletes message :id for the caller.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message ID"})
		return
	}

	err = h.messageService.Delete(c.Request.Context(), middleware.Username(c), uint(id))
	switch {
	case err == nil:
		c.Status(http.StatusOK)
	case errors.Is(err, repositories.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
	case errors.Is(err, repositories.ErrNotParticipant):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not a participant of this message"})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Code:    http.StatusInternalServerError,
			Message: "Problem deleting the message",
			Details: err.Error(),
		})
	}
}
