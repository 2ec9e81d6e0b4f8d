package memory

import (
	"context"
	"sync"
	"time"

	"chat-presence/internal/models"
	"chat-presence/internal/repositories"
)

type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

// NewUserRepository returns a store pre-populated with users.
func NewUserRepository(users ...*models.User) *UserRepository {
	r := &UserRepository{users: make(map[string]*models.User)}
	for _, u := range users {
		r.Put(u)
	}
	return r
}

// Put adds or replaces a user.
func (r *UserRepository) Put(user *models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *user
	stored.Username = models.NormalizeUsername(user.Username)
	r.users[stored.Username] = &stored
}

func (r *UserRepository) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[username]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	out := *user
	return &out, nil
}

func (r *UserRepository) UpdateLastActive(_ context.Context, username string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[username]
	if !ok {
		return repositories.ErrUserNotFound
	}
	user.LastActive = at
	return nil
}
