// Package presence tracks which users hold open realtime channels and
// publishes online/offline transitions.
package presence

import (
	"log/slog"
	"sync"
	"time"
)

type EventType string

const (
	UserOnline  EventType = "user-online"
	UserOffline EventType = "user-offline"
)

// Event is a presence transition of one user.
type Event struct {
	Type     EventType `json:"type"`
	Username string    `json:"username"`
	At       time.Time `json:"at"`
}

// Publisher receives presence transitions together with the snapshot of
// connection IDs that should be told about them. Publish is called in
// transition order and must not block.
type Publisher interface {
	Publish(event Event, recipients []string)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(event Event, recipients []string)

func (f PublisherFunc) Publish(event Event, recipients []string) { f(event, recipients) }

// Tracker reference-counts connections per user on top of a Registry. Only
// the 0->1 and 1->0 transitions are published.
type Tracker struct {
	// mu serializes connect/disconnect so a transition is decided atomically.
	mu sync.Mutex
	// emit is taken before mu is released so publishes keep transition order.
	emit sync.Mutex

	registry   *Registry
	publishers []Publisher
	logger     *slog.Logger
	now        func() time.Time
}

func NewTracker(registry *Registry, logger *slog.Logger, publishers ...Publisher) *Tracker {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		registry:   registry,
		publishers: publishers,
		logger:     logger,
		now:        time.Now,
	}
}

// AddPublisher subscribes p to future transitions. It must be called before
// the tracker is shared with connection handlers.
func (t *Tracker) AddPublisher(p Publisher) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.publishers = append(t.publishers, p)
}

// UserConnected registers connID for username. When this is the user's first
// connection every other online connection is told the user came online.
// It returns the full list of online users and whether the user just came
// online.
func (t *Tracker) UserConnected(username, connID string) (onlineUsers []string, cameOnline bool) {
	t.mu.Lock()
	_, known := t.registry.Owner(connID)
	count, err := t.registry.Add(username, connID)
	onlineUsers = t.registry.OnlineUsers()
	if err != nil {
		t.mu.Unlock()
		t.logger.Warn("Connection registration rejected", "username", username, "connID", connID, "error", err)
		return onlineUsers, false
	}
	cameOnline = count == 1 && !known
	if !cameOnline {
		t.mu.Unlock()
		return onlineUsers, false
	}

	recipients := t.registry.ConnectionsExcept(username)
	publishers := t.publishers
	t.emit.Lock()
	t.mu.Unlock()
	defer t.emit.Unlock()

	t.logger.Info("User online", "username", username, "connID", connID)
	t.publish(publishers, Event{Type: UserOnline, Username: username, At: t.now()}, recipients)
	return onlineUsers, true
}

// UserDisconnected removes connID. Unknown or already removed connections
// are ignored. It reports whether the removed connection was the user's
// last one, in which case every other online connection is told the user
// went offline.
func (t *Tracker) UserDisconnected(username, connID string) (wasLastConnection bool) {
	t.mu.Lock()
	owner, ok := t.registry.Remove(connID)
	if !ok {
		t.mu.Unlock()
		t.logger.Debug("Disconnect for unknown connection ignored", "username", username, "connID", connID)
		return false
	}
	if owner != username {
		t.logger.Warn("Connection owner mismatch on disconnect", "username", username, "owner", owner, "connID", connID)
	}
	if t.registry.Count(owner) > 0 {
		t.mu.Unlock()
		return false
	}

	recipients := t.registry.ConnectionsExcept(owner)
	publishers := t.publishers
	t.emit.Lock()
	t.mu.Unlock()
	defer t.emit.Unlock()

	t.logger.Info("User offline", "username", owner, "connID", connID)
	t.publish(publishers, Event{Type: UserOffline, Username: owner, At: t.now()}, recipients)
	return true
}

func (t *Tracker) publish(publishers []Publisher, event Event, recipients []string) {
	for _, p := range publishers {
		p.Publish(event, recipients)
	}
}

func (t *Tracker) IsOnline(username string) bool {
	return t.registry.IsOnline(username)
}

func (t *Tracker) OnlineUsers() []string {
	return t.registry.OnlineUsers()
}

func (t *Tracker) ConnectionsFor(username string) []string {
	return t.registry.ConnectionsFor(username)
}
