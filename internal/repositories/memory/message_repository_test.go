package memory

import (
	"context"
	"testing"
	"time"

	"chat-presence/internal/models"
	"chat-presence/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addMessage(t *testing.T, repo *MessageRepository, from, to, content string, sent time.Time) *models.Message {
	t.Helper()
	msg := &models.Message{
		SenderUsername:    from,
		RecipientUsername: to,
		Content:           content,
		MessageSent:       sent,
	}
	require.NoError(t, repo.AddMessage(context.Background(), msg))
	return msg
}

func TestAddAndGetMessage(t *testing.T) {
	repo := NewMessageRepository()
	msg := addMessage(t, repo, "bob", "alice", "hi", time.Now())

	assert.NotZero(t, msg.ID)

	got, err := repo.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Content)
	assert.Nil(t, got.DateRead)

	_, err = repo.GetMessage(context.Background(), 999)
	assert.ErrorIs(t, err, repositories.ErrMessageNotFound)
}

func TestGetThreadNewestFirst(t *testing.T) {
	repo := NewMessageRepository()
	base := time.Now()
	addMessage(t, repo, "bob", "alice", "first", base)
	addMessage(t, repo, "alice", "bob", "second", base.Add(time.Second))
	addMessage(t, repo, "carol", "alice", "other thread", base.Add(2*time.Second))
	addMessage(t, repo, "bob", "alice", "third", base.Add(3*time.Second))

	thread, err := repo.GetThread(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.Len(t, thread, 3)
	assert.Equal(t, "third", thread[0].Content)
	assert.Equal(t, "second", thread[1].Content)
	assert.Equal(t, "first", thread[2].Content)

	reverse, err := repo.GetThread(context.Background(), "bob", "alice")
	require.NoError(t, err)
	assert.Len(t, reverse, 3)
}

func TestMarkThreadRead(t *testing.T) {
	repo := NewMessageRepository()
	now := time.Now()
	addMessage(t, repo, "bob", "alice", "one", now)
	addMessage(t, repo, "bob", "alice", "two", now)
	own := addMessage(t, repo, "alice", "bob", "mine", now)

	count, err := repo.MarkThreadRead(context.Background(), "alice", "bob", now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Already read messages are not counted twice.
	count, err = repo.MarkThreadRead(context.Background(), "alice", "bob", now)
	require.NoError(t, err)
	assert.Zero(t, count)

	got, err := repo.GetMessage(context.Background(), own.ID)
	require.NoError(t, err)
	assert.Nil(t, got.DateRead)
}

func TestDeleteMessageSoftThenHard(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository()
	msg := addMessage(t, repo, "bob", "alice", "hi", time.Now())

	require.NoError(t, repo.DeleteMessage(ctx, msg, "alice"))

	// alice no longer sees it, bob still does
	aliceThread, err := repo.GetThread(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Empty(t, aliceThread)

	bobThread, err := repo.GetThread(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Len(t, bobThread, 1)

	_, err = repo.GetMessage(ctx, msg.ID)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteMessage(ctx, msg, "bob"))
	_, err = repo.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, repositories.ErrMessageNotFound)
}

func TestDeleteMessageWithStaleCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository()
	msg := addMessage(t, repo, "bob", "alice", "hi", time.Now())

	senderCopy, err := repo.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	recipientCopy, err := repo.GetMessage(ctx, msg.ID)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteMessage(ctx, senderCopy, "bob"))
	require.NoError(t, repo.DeleteMessage(ctx, recipientCopy, "alice"))

	_, err = repo.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, repositories.ErrMessageNotFound)
}

func TestDeleteMessageNotParticipant(t *testing.T) {
	repo := NewMessageRepository()
	msg := addMessage(t, repo, "bob", "alice", "hi", time.Now())

	err := repo.DeleteMessage(context.Background(), msg, "carol")
	assert.ErrorIs(t, err, repositories.ErrNotParticipant)

	_, err = repo.GetMessage(context.Background(), msg.ID)
	assert.NoError(t, err)
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(&models.User{Username: "Alice", KnownAs: "Ali"})

	user, err := repo.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Ali", user.DisplayName())

	_, err = repo.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, repositories.ErrUserNotFound)

	at := time.Now()
	require.NoError(t, repo.UpdateLastActive(ctx, "alice", at))
	user, err = repo.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, user.LastActive.Equal(at))

	assert.ErrorIs(t, repo.UpdateLastActive(ctx, "nobody", at), repositories.ErrUserNotFound)
}
