// Package repositories declares the persistence collaborators of the
// realtime layer. Implementations live in the postgres and memory
// subpackages.
package repositories

//go:generate mockgen -destination=../mocks/mock_repositories.go -package=mocks chat-presence/internal/repositories MessageStore,UserStore

import (
	"context"
	"errors"
	"time"

	"chat-presence/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrNotParticipant  = errors.New("user is not a participant of the message")
)

// MessageStore persists direct messages.
type MessageStore interface {
	// AddMessage stores a new message and assigns its ID.
	AddMessage(ctx context.Context, message *models.Message) error
	GetMessage(ctx context.Context, id uint) (*models.Message, error)
	// GetThread returns the conversation between username and other, newest
	// first, without the messages username has deleted.
	GetThread(ctx context.Context, username, other string) ([]*models.Message, error)
	// MarkThreadRead stamps every unread message other sent to username.
	MarkThreadRead(ctx context.Context, username, other string, at time.Time) (int64, error)
	// DeleteMessage soft-deletes the message for username and removes it
	// once both parties have deleted it.
	DeleteMessage(ctx context.Context, message *models.Message, username string) error
}

// UserStore resolves the accounts the realtime layer talks about.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateLastActive(ctx context.Context, username string, at time.Time) error
}
