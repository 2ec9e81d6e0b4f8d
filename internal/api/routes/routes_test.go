package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chat-presence/internal/auth"
	"chat-presence/internal/group"
	"chat-presence/internal/logger"
	"chat-presence/internal/models"
	"chat-presence/internal/presence"
	"chat-presence/internal/repositories/memory"
	"chat-presence/internal/services"
	"chat-presence/internal/websocket"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiEnv struct {
	engine   http.Handler
	hub      *websocket.Hub
	messages *memory.MessageRepository
	users    *memory.UserRepository
	tokens   *auth.TokenService
}

type fakeLimiter struct{ allow bool }

func (f fakeLimiter) CheckRateLimit(context.Context, string, int, time.Duration) (bool, error) {
	return f.allow, nil
}

func newAPIEnv(t *testing.T, limiter *fakeLimiter) *apiEnv {
	t.Helper()
	messages := memory.NewMessageRepository()
	users := memory.NewUserRepository(
		&models.User{Username: "alice", KnownAs: "Alice"},
		&models.User{Username: "bob", KnownAs: "Bob"},
		&models.User{Username: "carol", LastActive: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
	)
	tracker := presence.NewTracker(presence.NewRegistry(), logger.Discard())
	hub := websocket.NewHub(tracker, group.NewManager(), messages, users, websocket.DefaultOptions(), logger.Discard())
	tokens := auth.NewTokenService("test-secret", time.Hour)

	deps := Dependencies{
		Hub:      hub,
		Users:    users,
		Messages: services.NewMessageService(messages, users, hub),
		Tokens:   tokens,
	}
	if limiter != nil {
		deps.Limiter = limiter
	}
	router := NewRouter(deps)
	router.SetupRoutes()
	t.Cleanup(hub.Close)

	return &apiEnv{engine: router.GetEngine(), hub: hub, messages: messages, users: users, tokens: tokens}
}

func (e *apiEnv) do(t *testing.T, method, path, username string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if username != "" {
		token, err := e.tokens.Issue(username)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	env := newAPIEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestAuthRequired(t *testing.T) {
	env := newAPIEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/presence/online", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/presence/online", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPresenceEndpoints(t *testing.T) {
	env := newAPIEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/presence/online", "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"users":[]}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/v1/presence/carol", "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.PresenceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Online)
	require.NotNil(t, resp.LastSeen)

	rec = env.do(t, http.MethodGet, "/api/v1/presence/nobody", "alice")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessageThreadMarksRead(t *testing.T) {
	env := newAPIEnv(t, nil)
	ctx := context.Background()
	require.NoError(t, env.messages.AddMessage(ctx, &models.Message{SenderUsername: "bob", RecipientUsername: "alice", Content: "hi"}))

	rec := env.do(t, http.MethodGet, "/api/v1/messages/thread/Bob", "alice")
	require.Equal(t, http.StatusOK, rec.Code)

	var thread []models.MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &thread))
	require.Len(t, thread, 1)
	assert.NotNil(t, thread[0].DateRead)

	rec = env.do(t, http.MethodGet, "/api/v1/messages/thread/nobody", "alice")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteMessage(t *testing.T) {
	env := newAPIEnv(t, nil)
	m := &models.Message{SenderUsername: "alice", RecipientUsername: "bob", Content: "oops"}
	require.NoError(t, env.messages.AddMessage(context.Background(), m))
	path := fmt.Sprintf("/api/v1/messages/%d", m.ID)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodDelete, path, "carol").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, path, "alice").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, path, "bob").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, path, "bob").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodDelete, "/api/v1/messages/abc", "bob").Code)
}

func TestRateLimitRejects(t *testing.T) {
	env := newAPIEnv(t, &fakeLimiter{allow: false})
	rec := env.do(t, http.MethodGet, "/api/v1/presence/online", "alice")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestWebSocketWithQueryToken(t *testing.T) {
	env := newAPIEnv(t, nil)
	srv := httptest.NewServer(env.engine)
	defer srv.Close()

	token, err := env.tokens.Issue("alice")
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?access_token=" + token

	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var first struct {
		Type string `json:"type"`
	}
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "connected", first.Type)
	assert.Eventually(t, func() bool { return env.hub.IsOnline("alice") }, time.Second, 10*time.Millisecond)

	unknown, err := env.tokens.Issue("mallory")
	require.NoError(t, err)
	_, resp, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/ws?access_token="+unknown, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
