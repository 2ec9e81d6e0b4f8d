// Package memory keeps messages and users in process memory. It backs the
// server when no database is configured and the realtime tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"chat-presence/internal/models"
	"chat-presence/internal/repositories"
)

type MessageRepository struct {
	mu       sync.RWMutex
	nextID   uint
	messages map[uint]*models.Message
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{
		messages: make(map[uint]*models.Message),
	}
}

func (r *MessageRepository) AddMessage(_ context.Context, message *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	message.ID = r.nextID
	if message.MessageSent.IsZero() {
		message.MessageSent = time.Now().UTC()
	}
	stored := *message
	r.messages[message.ID] = &stored
	return nil
}

func (r *MessageRepository) GetMessage(_ context.Context, id uint) (*models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	message, ok := r.messages[id]
	if !ok {
		return nil, repositories.ErrMessageNotFound
	}
	out := *message
	return &out, nil
}

func (r *MessageRepository) GetThread(_ context.Context, username, other string) ([]*models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	thread := make([]*models.Message, 0)
	for _, message := range r.messages {
		if !message.IsBetween(username, other) || !message.VisibleTo(username) {
			continue
		}
		out := *message
		thread = append(thread, &out)
	}

	sort.Slice(thread, func(i, j int) bool {
		if thread[i].MessageSent.Equal(thread[j].MessageSent) {
			return thread[i].ID > thread[j].ID
		}
		return thread[i].MessageSent.After(thread[j].MessageSent)
	})
	return thread, nil
}

func (r *MessageRepository) MarkThreadRead(_ context.Context, username, other string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, message := range r.messages {
		if message.RecipientUsername != username || message.SenderUsername != other || message.DateRead != nil {
			continue
		}
		readAt := at
		message.DateRead = &readAt
		count++
	}
	return count, nil
}

func (r *MessageRepository) DeleteMessage(_ context.Context, message *models.Message, username string) error {
	if !message.IsParticipant(username) {
		return repositories.ErrNotParticipant
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.messages[message.ID]
	if !ok {
		return repositories.ErrMessageNotFound
	}
	if stored.MarkDeletedBy(username) {
		delete(r.messages, message.ID)
	}
	message.SenderDeleted = stored.SenderDeleted
	message.RecipientDeleted = stored.RecipientDeleted
	return nil
}
