package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"chat-presence/internal/group"
	"chat-presence/internal/models"
	"chat-presence/internal/presence"
	"chat-presence/internal/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// Options tunes the channels served by a Hub.
type Options struct {
	SendBufferSize int
	MaxMessageSize int64
	PongWait       time.Duration
	WriteWait      time.Duration
	StoreTimeout   time.Duration
	AllowedOrigins []string
}

// MinMessageSize is the smallest read limit that still admits every frame
// the payload validator accepts: content and usernames written entirely as
// escaped surrogate pairs (12 bytes per rune) plus the envelope.
const MinMessageSize = (MaxContentLength+2*MaxUsernameLength)*12 + 1024

func DefaultOptions() Options {
	return Options{
		SendBufferSize: 256,
		MaxMessageSize: 64 * 1024,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		StoreTimeout:   5 * time.Second,
	}
}

// pingPeriod must be less than PongWait.
func (o Options) pingPeriod() time.Duration {
	return (o.PongWait * 9) / 10
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = d.SendBufferSize
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if o.MaxMessageSize < MinMessageSize {
		o.MaxMessageSize = MinMessageSize
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = d.StoreTimeout
	}
	return o
}

// Hub is the realtime gateway. It owns the open clients and composes the
// presence tracker, the group manager and the message store. No lock is
// held while a store is called or a client is pushed to.
type Hub struct {
	clients map[string]*Client // connID -> client
	mu      sync.RWMutex

	tracker  *presence.Tracker
	groups   *group.Manager
	messages repositories.MessageStore
	users    repositories.UserStore

	opts     Options
	upgrader websocket.Upgrader
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewHub(
	tracker *presence.Tracker,
	groups *group.Manager,
	messages repositories.MessageStore,
	users repositories.UserStore,
	opts Options,
	logger *slog.Logger,
) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()

	h := &Hub{
		clients:  make(map[string]*Client),
		tracker:  tracker,
		groups:   groups,
		messages: messages,
		users:    users,
		opts:     opts,
		validate: validator.New(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(opts.AllowedOrigins),
	}
	tracker.AddPublisher(h)
	return h
}

// checkOrigin allows every origin when none are configured.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || lo.Contains(allowed, origin)
	}
}

// Connect registers an opened channel, pushes it the online users and lets
// every other online user know if this is the user's first channel.
func (h *Hub) Connect(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.logger.Info("Client registered", "connID", c.id, "username", c.username)

	online, _ := h.tracker.UserConnected(c.username, c.id)

	h.push(c, NewMessage(MessageTypeConnected, ConnectedData{ConnectionID: c.id, Username: c.username}))
	h.push(c, NewMessage(MessageTypeOnlineUsers, OnlineUsersData{Users: lo.Without(online, c.username)}))
}

// Disconnect runs the cleanup of a closed channel. It is safe to call more
// than once and after partial cleanup.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()

	h.groups.LeaveGroup(c.id)

	// Registry and group removal are done before the offline broadcast.
	if !h.tracker.UserDisconnected(c.username, c.id) {
		return
	}

	h.logger.Info("Client unregistered, user offline", "connID", c.id, "username", c.username)

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.StoreTimeout)
	defer cancel()
	if err := h.users.UpdateLastActive(ctx, c.username, h.now()); err != nil {
		h.logger.Warn("Failed to update last active", "username", c.username, "error", err)
	}
}

// Publish pushes presence transitions to the given connections.
func (h *Hub) Publish(event presence.Event, recipients []string) {
	msgType := MessageTypeUserOnline
	if event.Type == presence.UserOffline {
		msgType = MessageTypeUserOffline
	}
	h.pushTo(recipients, NewMessage(msgType, PresenceData{Username: event.Username}))
}

// HandleRequest routes one inbound event. Failures are answered with an
// error event on the same channel and never close it.
func (h *Hub) HandleRequest(ctx context.Context, c *Client, req *Request) {
	if !req.Type.IsInbound() {
		c.sendError(req.ID, ErrCodeUnknownEvent, fmt.Sprintf("unknown event type %q", req.Type))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.opts.StoreTimeout)
	defer cancel()

	var err error
	switch req.Type {
	case MessageTypeJoinConversation:
		var data JoinConversationData
		if err = h.decode(req.Data, &data); err == nil {
			err = h.JoinConversation(ctx, c, data.Username)
		}

	case MessageTypeLeaveConversation:
		h.LeaveConversation(c)

	case MessageTypeSendMessage:
		var data SendMessageData
		if err = h.decode(req.Data, &data); err == nil {
			var sent *models.MessageResponse
			sent, err = h.SendMessage(ctx, c, data.RecipientUsername, data.Content)
			if err == nil {
				ack := NewMessage(MessageTypeMessageSent, sent)
				ack.ReplyTo = req.ID
				h.push(c, ack)
			}
		}
	}

	if err != nil {
		h.logger.Debug("Request failed", "connID", c.id, "username", c.username, "type", req.Type, "error", err)
		c.sendError(req.ID, errorCode(err), err.Error())
	}
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "invalid payload: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func (h *Hub) decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &decodeError{err: err}
	}
	if err := h.validate.Struct(v); err != nil {
		return &decodeError{err: err}
	}
	return nil
}

func errorCode(err error) string {
	var de *decodeError
	switch {
	case errors.As(err, &de):
		return ErrCodeInvalidMessage
	case IsValidationError(err):
		return ErrCodeValidation
	case errors.Is(err, repositories.ErrUserNotFound), errors.Is(err, repositories.ErrMessageNotFound):
		return ErrCodeNotFound
	default:
		return ErrCodeSendFailed
	}
}

// JoinConversation puts the channel into the conversation with other. When
// other is viewing the conversation too, the caller's unread messages are
// marked read and other is told. The caller receives the thread.
func (h *Hub) JoinConversation(ctx context.Context, c *Client, other string) error {
	other = models.NormalizeUsername(other)
	if other == "" {
		return ErrEmptyRecipient
	}
	if other == c.username {
		return ErrSelfMessage
	}
	if _, err := h.users.GetUserByUsername(ctx, other); err != nil {
		return fmt.Errorf("join conversation with %s: %w", other, err)
	}

	name := h.groups.JoinGroup(c.id, c.username, other)
	h.logger.Debug("Joined conversation", "connID", c.id, "username", c.username, "group", name)

	if h.groups.HasMember(name, other) {
		readAt := h.now()
		count, err := h.messages.MarkThreadRead(ctx, c.username, other, readAt)
		if err != nil {
			h.logger.Error("Failed to mark thread read", "username", c.username, "other", other, "error", err)
		} else if count > 0 {
			h.pushTo(h.groups.ConnectionsOf(name, other), NewMessage(MessageTypeMessagesRead, MessagesReadData{
				ReaderUsername: c.username,
				SenderUsername: other,
				ReadAt:         readAt,
				Count:          count,
			}))
		}
	}

	thread, err := h.messages.GetThread(ctx, c.username, other)
	if err != nil {
		return fmt.Errorf("load thread with %s: %w", other, err)
	}
	h.push(c, NewMessage(MessageTypeMessageThread, MessageThreadData{
		Username: other,
		Messages: models.ToResponses(thread),
	}))
	return nil
}

// LeaveConversation removes the channel from its conversation, if any.
func (h *Hub) LeaveConversation(c *Client) {
	if name, ok := h.groups.LeaveGroup(c.id); ok {
		h.logger.Debug("Left conversation", "connID", c.id, "username", c.username, "group", name)
	}
}

// SendMessage persists a message from the channel's user to recipient and
// delivers it. A recipient viewing the conversation gets it live and it is
// stored as read; an online recipient elsewhere gets a notification. The
// sender's other channels in the conversation get the message too.
func (h *Hub) SendMessage(ctx context.Context, c *Client, recipient, content string) (*models.MessageResponse, error) {
	recipient = models.NormalizeUsername(recipient)
	if recipient == "" {
		return nil, ErrEmptyRecipient
	}
	if recipient == c.username {
		return nil, ErrSelfMessage
	}
	if content == "" {
		return nil, ErrEmptyContent
	}

	sender, err := h.users.GetUserByUsername(ctx, c.username)
	if err != nil {
		return nil, fmt.Errorf("resolve sender %s: %w", c.username, err)
	}
	target, err := h.users.GetUserByUsername(ctx, recipient)
	if err != nil {
		return nil, fmt.Errorf("resolve recipient %s: %w", recipient, err)
	}

	message := &models.Message{
		SenderUsername:    sender.Username,
		SenderKnownAs:     sender.DisplayName(),
		RecipientUsername: target.Username,
		Content:           content,
		MessageSent:       h.now(),
	}

	name := group.NameFor(sender.Username, target.Username)
	recipientInGroup := h.groups.HasMember(name, target.Username)
	if recipientInGroup {
		readAt := message.MessageSent
		message.DateRead = &readAt
	}

	if err := h.messages.AddMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	resp := message.ToResponse()
	live := lo.Without(h.groups.ConnectionsInGroup(name), c.id)
	h.pushTo(live, NewMessage(MessageTypeMessageReceived, resp))

	if !recipientInGroup && h.tracker.IsOnline(target.Username) {
		h.pushTo(h.tracker.ConnectionsFor(target.Username), NewMessage(MessageTypeNewMessage, NewMessageData{
			Username: sender.Username,
			KnownAs:  sender.DisplayName(),
		}))
	}
	return &resp, nil
}

// NotifyMessagesRead tells sender's channels in the conversation that
// reader has read the thread. It backs reads made outside a channel.
func (h *Hub) NotifyMessagesRead(reader, sender string, readAt time.Time, count int64) {
	if count == 0 {
		return
	}
	name := group.NameFor(reader, sender)
	h.pushTo(h.groups.ConnectionsOf(name, sender), NewMessage(MessageTypeMessagesRead, MessagesReadData{
		ReaderUsername: reader,
		SenderUsername: sender,
		ReadAt:         readAt,
		Count:          count,
	}))
}

// OnlineUsers returns the users with at least one open channel.
func (h *Hub) OnlineUsers() []string {
	return h.tracker.OnlineUsers()
}

// IsOnline reports whether username has an open channel.
func (h *Hub) IsOnline(username string) bool {
	return h.tracker.IsOnline(username)
}

// ClientCount returns the number of open channels.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close closes every channel and runs its cleanup.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := lo.Values(h.clients)
	h.mu.RUnlock()

	h.logger.Info("WebSocket hub shutting down", "clients", len(clients))
	for _, c := range clients {
		c.close()
		h.Disconnect(c)
	}
}

func (h *Hub) push(c *Client, msg *Message) {
	if err := c.Send(msg); err != nil {
		h.logger.Debug("Push failed", "connID", c.id, "username", c.username, "type", msg.Type, "error", err)
	}
}

// pushTo encodes msg once and queues it on every listed connection that is
// still open.
func (h *Hub) pushTo(connIDs []string, msg *Message) {
	if len(connIDs) == 0 {
		return
	}
	data, err := encode(msg)
	if err != nil {
		h.logger.Error("Failed to encode event", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(connIDs))
	for _, id := range connIDs {
		if c, ok := h.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.sendRaw(data); err != nil {
			h.logger.Debug("Push failed", "connID", c.id, "username", c.username, "type", msg.Type, "error", err)
		}
	}
}
