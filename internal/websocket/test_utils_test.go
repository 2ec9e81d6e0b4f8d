package websocket

import (
	"encoding/json"
	"testing"

	"chat-presence/internal/group"
	"chat-presence/internal/models"
	"chat-presence/internal/presence"
	"chat-presence/internal/repositories"
	"chat-presence/internal/repositories/memory"

	"github.com/stretchr/testify/require"
)

type received struct {
	ID      string          `json:"id"`
	Type    MessageType     `json:"type"`
	Data    json.RawMessage `json:"data"`
	ReplyTo string          `json:"replyTo"`
}

type testEnv struct {
	hub      *Hub
	messages *memory.MessageRepository
	users    *memory.UserRepository
}

func newTestUsers() *memory.UserRepository {
	return memory.NewUserRepository(
		&models.User{Username: "alice", KnownAs: "Alice"},
		&models.User{Username: "bob", KnownAs: "Bob"},
		&models.User{Username: "carol"},
	)
}

func newTestEnv() *testEnv {
	messages := memory.NewMessageRepository()
	users := newTestUsers()
	return &testEnv{
		hub:      newHubWithStores(messages, users),
		messages: messages,
		users:    users,
	}
}

func newHubWithStores(messages repositories.MessageStore, users repositories.UserStore) *Hub {
	tracker := presence.NewTracker(presence.NewRegistry(), nil)
	return NewHub(tracker, group.NewManager(), messages, users, DefaultOptions(), nil)
}

// connect opens a client without a socket; pushes stay in its send queue.
func connect(h *Hub, username string) *Client {
	c := NewClient(h, nil, username)
	h.Connect(c)
	return c
}

// drain returns every event queued on the client so far.
func drain(t *testing.T, c *Client) []received {
	t.Helper()
	var out []received
	for {
		select {
		case data := <-c.send:
			var msg received
			require.NoError(t, json.Unmarshal(data, &msg))
			out = append(out, msg)
		default:
			return out
		}
	}
}

func ofType(events []received, msgType MessageType) []received {
	var out []received
	for _, e := range events {
		if e.Type == msgType {
			out = append(out, e)
		}
	}
	return out
}

func decodeData[T any](t *testing.T, e received) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(e.Data, &v))
	return v
}
