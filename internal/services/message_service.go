package services

import (
	"context"
	"fmt"
	"time"

	"chat-presence/internal/models"
	"chat-presence/internal/repositories"
)

// ReadNotifier is told when a thread was read outside a realtime channel.
type ReadNotifier interface {
	NotifyMessagesRead(reader, sender string, readAt time.Time, count int64)
}

// MessageService backs the REST message endpoints.
type MessageService struct {
	messages repositories.MessageStore
	users    repositories.UserStore
	notifier ReadNotifier
	now      func() time.Time
}

func NewMessageService(messages repositories.MessageStore, users repositories.UserStore, notifier ReadNotifier) *MessageService {
	return &MessageService{
		messages: messages,
		users:    users,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Thread marks the messages other sent to username as read and returns the
// conversation newest first.
func (s *MessageService) Thread(ctx context.Context, username, other string) ([]models.MessageResponse, error) {
	username = models.NormalizeUsername(username)
	other = models.NormalizeUsername(other)
	if _, err := s.users.GetUserByUsername(ctx, other); err != nil {
		return nil, err
	}

	readAt := s.now()
	count, err := s.messages.MarkThreadRead(ctx, username, other, readAt)
	if err != nil {
		return nil, fmt.Errorf("mark thread read: %w", err)
	}
	if count > 0 && s.notifier != nil {
		s.notifier.NotifyMessagesRead(username, other, readAt, count)
	}

	thread, err := s.messages.GetThread(ctx, username, other)
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}
	return models.ToResponses(thread), nil
}

// Delete removes message id for username. It is removed for good once both
// participants have deleted it.
func (s *MessageService) Delete(ctx context.Context, username string, id uint) error {
	username = models.NormalizeUsername(username)
	message, err := s.messages.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if !message.IsParticipant(username) {
		return repositories.ErrNotParticipant
	}
	return s.messages.DeleteMessage(ctx, message, username)
}
